package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/room-access-api/internal/dto"
	"github.com/noah-isme/room-access-api/internal/models"
	"github.com/noah-isme/room-access-api/internal/repository"
	appErrors "github.com/noah-isme/room-access-api/pkg/errors"
)

const roomCachePrefix = "rooms:"

type roomStore interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, id string) (*models.RoomDetail, error)
	List(ctx context.Context, filter models.RoomFilter) ([]models.RoomDetail, int, error)
	Update(ctx context.Context, room *models.Room) error
	SoftDelete(ctx context.Context, id, deletedBy string, at time.Time) error
	DistinctRegions(ctx context.Context) ([]string, error)
	DistinctCenters(ctx context.Context, region string) ([]string, error)
}

type managerDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListManagersByRegion(ctx context.Context, region string) ([]models.RoomManager, error)
}

type roomListCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Invalidate(ctx context.Context, pattern string)
}

type cachedRoomPage struct {
	Items []models.RoomDetail `json:"items"`
	Total int                 `json:"total"`
}

// RoomService is the room registry. Rooms are referenced by the access
// workflow but never mutated by it.
type RoomService struct {
	rooms     roomStore
	users     managerDirectory
	cache     roomListCache
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	clock     Clock
}

// NewRoomService constructs the registry. cache may be nil.
func NewRoomService(rooms roomStore, users managerDirectory, cache roomListCache, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *RoomService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomService{rooms: rooms, users: users, cache: cache, audit: audit, validator: validate, logger: logger, clock: systemClock}
}

// List returns live rooms filtered by region and center. Managers only see
// rooms they manage.
func (s *RoomService) List(ctx context.Context, query dto.RoomQuery, actor *models.JWTClaims) ([]models.RoomDetail, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	filter := models.RoomFilter{
		Region:   strings.TrimSpace(query.Region),
		Center:   strings.TrimSpace(query.Center),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if actor.Role == models.RoleManager {
		filter.ManagerID = actor.UserID
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	key := fmt.Sprintf("%slist:%s:%s:%s:%d:%d", roomCachePrefix, filter.Region, filter.Center, filter.ManagerID, page, size)
	var cached cachedRoomPage
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		return cached.Items, pagination(page, size, cached.Total), nil
	}

	items, total, err := s.rooms.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, cachedRoomPage{Items: items, Total: total}, 0)
	}
	return items, pagination(page, size, total), nil
}

// Get returns a room, tombstoned or not.
func (s *RoomService) Get(ctx context.Context, id string) (*models.RoomDetail, error) {
	room, err := s.rooms.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	return room, nil
}

// Create registers a room. Manager contact details are copied from the
// directory at write time.
func (s *RoomService) Create(ctx context.Context, req dto.RoomRequest, actor *models.JWTClaims) (*models.RoomDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid room payload")
	}
	room := &models.Room{CreatedBy: actor.UserID, UpdatedBy: actor.UserID, CreatedAt: s.clock()}
	if err := s.apply(ctx, room, req); err != nil {
		return nil, err
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a room with this name already exists in the center")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create room")
	}
	s.invalidate(ctx)

	payload, _ := json.Marshal(room)
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionRoomCreate,
		Resource:   "room",
		ResourceID: &room.ID,
		NewValues:  payload,
	})
	return s.Get(ctx, room.ID)
}

// Update replaces a live room's mutable fields.
func (s *RoomService) Update(ctx context.Context, id string, req dto.RoomRequest, actor *models.JWTClaims) (*models.RoomDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid room payload")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Deleted() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
	}
	if err := authorizeRoomWrite(&current.Room, actor); err != nil {
		return nil, err
	}

	before, _ := json.Marshal(current.Room)
	room := current.Room
	room.UpdatedBy = actor.UserID
	if err := s.apply(ctx, &room, req); err != nil {
		return nil, err
	}
	if err := s.rooms.Update(ctx, &room); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		case repository.IsUniqueViolation(err):
			return nil, appErrors.Clone(appErrors.ErrConflict, "a room with this name already exists in the center")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update room")
	}
	s.invalidate(ctx)

	after, _ := json.Marshal(room)
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionRoomUpdate,
		Resource:   "room",
		ResourceID: &room.ID,
		OldValues:  before,
		NewValues:  after,
	})
	return s.Get(ctx, room.ID)
}

// Delete tombstones a room. It fails with a conflict while pending or
// approved requests reference it.
func (s *RoomService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Deleted() {
		return appErrors.Clone(appErrors.ErrNotFound, "room not found")
	}
	if err := authorizeRoomWrite(&current.Room, actor); err != nil {
		return err
	}

	if err := s.rooms.SoftDelete(ctx, id, actor.UserID, s.clock()); err != nil {
		switch {
		case errors.Is(err, repository.ErrRoomInUse):
			return appErrors.Clone(appErrors.ErrConflict, "room has pending or approved access requests")
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete room")
	}
	s.invalidate(ctx)

	before, _ := json.Marshal(current.Room)
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionRoomDelete,
		Resource:   "room",
		ResourceID: &current.ID,
		OldValues:  before,
	})
	return nil
}

// Managers returns the candidate approvers of a room.
func (s *RoomService) Managers(ctx context.Context, id string) ([]models.RoomManager, error) {
	room, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	managers := []models.RoomManager{{UserID: room.ManagerID, Nickname: room.ManagerName, Tel: room.ManagerPhone}}
	if room.BackupManagerID != nil && *room.BackupManagerID != "" {
		managers = append(managers, models.RoomManager{UserID: *room.BackupManagerID, Nickname: room.BackupManagerName, Tel: room.BackupManagerPhone})
	}
	return managers, nil
}

// ManagersByRegion lists users who may be assigned as room managers.
func (s *RoomService) ManagersByRegion(ctx context.Context, region string) ([]models.RoomManager, error) {
	managers, err := s.users.ListManagersByRegion(ctx, strings.TrimSpace(region))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list managers")
	}
	return managers, nil
}

// Regions lists regions with live rooms.
func (s *RoomService) Regions(ctx context.Context) ([]string, error) {
	regions, err := s.rooms.DistinctRegions(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list regions")
	}
	return regions, nil
}

// Centers lists centers with live rooms, optionally within region.
func (s *RoomService) Centers(ctx context.Context, region string) ([]string, error) {
	centers, err := s.rooms.DistinctCenters(ctx, strings.TrimSpace(region))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list centers")
	}
	return centers, nil
}

func (s *RoomService) apply(ctx context.Context, room *models.Room, req dto.RoomRequest) error {
	manager, err := s.resolveManager(ctx, req.ManagerID, "managerId")
	if err != nil {
		return err
	}
	room.Region = strings.TrimSpace(req.Region)
	room.Center = strings.TrimSpace(req.Center)
	room.Name = strings.TrimSpace(req.Name)
	room.ManagerID = manager.ID
	room.ManagerName = manager.Nickname
	room.ManagerPhone = manager.Tel
	room.BackupManagerID = nil
	room.BackupManagerName = ""
	room.BackupManagerPhone = ""
	if req.BackupManagerID != nil && strings.TrimSpace(*req.BackupManagerID) != "" {
		backupID := strings.TrimSpace(*req.BackupManagerID)
		if backupID == manager.ID {
			return appErrors.WithDetails(appErrors.ErrValidation, "invalid room payload", map[string]string{"backupManagerId": "must differ from managerId"})
		}
		backup, err := s.resolveManager(ctx, backupID, "backupManagerId")
		if err != nil {
			return err
		}
		room.BackupManagerID = &backup.ID
		room.BackupManagerName = backup.Nickname
		room.BackupManagerPhone = backup.Tel
	}
	room.LockDeviceSN = nil
	if req.LockDeviceFlag {
		room.LockDeviceSN = optionalString(req.LockDeviceSN)
	}
	room.Remarks = optionalString(req.Remarks)
	return nil
}

func (s *RoomService) resolveManager(ctx context.Context, id, field string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid room payload", map[string]string{field: "user not found"})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load manager")
	}
	if !user.Active || (user.Role != models.RoleManager && user.Role != models.RoleAdmin) {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid room payload", map[string]string{field: "user cannot manage rooms"})
	}
	return user, nil
}

func (s *RoomService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, roomCachePrefix+"*")
	}
}

func authorizeRoomWrite(room *models.Room, actor *models.JWTClaims) error {
	if actor.Role == models.RoleAdmin || room.IsManagedBy(actor.UserID) {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "only the room's managers may modify it")
}
