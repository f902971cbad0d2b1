package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/room-access-api/internal/models"
)

const roomDetailSelect = `SELECT r.id, r.region, r.center, r.name, r.manager_id, r.manager_name, r.manager_phone,
       r.backup_manager_id, r.backup_manager_name, r.backup_manager_phone, r.lock_device_sn, r.remarks,
       r.created_by, r.updated_by, r.created_at, r.updated_at, r.deleted_at,
       COALESCE(cu.nickname, '') AS created_by_name, COALESCE(uu.nickname, '') AS updated_by_name
FROM rooms r
LEFT JOIN users cu ON cu.id = r.created_by
LEFT JOIN users uu ON uu.id = r.updated_by`

// RoomRepository persists rooms. Rows are tombstoned, never removed.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository constructs the repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// Create inserts a new room.
func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = room.CreatedAt
	const query = `INSERT INTO rooms
	(id, region, center, name, manager_id, manager_name, manager_phone, backup_manager_id, backup_manager_name, backup_manager_phone,
	 lock_device_sn, remarks, created_by, updated_by, created_at, updated_at)
	VALUES (:id, :region, :center, :name, :manager_id, :manager_name, :manager_phone, :backup_manager_id, :backup_manager_name, :backup_manager_phone,
	 :lock_device_sn, :remarks, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

// GetByID fetches a room including tombstoned rows.
func (r *RoomRepository) GetByID(ctx context.Context, id string) (*models.RoomDetail, error) {
	query := roomDetailSelect + ` WHERE r.id = $1`
	var room models.RoomDetail
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		return nil, err
	}
	return &room, nil
}

// List returns rooms matching the filter with the total count.
func (r *RoomRepository) List(ctx context.Context, filter models.RoomFilter) ([]models.RoomDetail, int, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	if !filter.IncludeDeleted {
		conditions = append(conditions, "r.deleted_at IS NULL")
	}
	if filter.Region != "" {
		args = append(args, filter.Region)
		conditions = append(conditions, fmt.Sprintf("r.region = $%d", len(args)))
	}
	if filter.Center != "" {
		args = append(args, filter.Center)
		conditions = append(conditions, fmt.Sprintf("r.center = $%d", len(args)))
	}
	if filter.ManagerID != "" {
		args = append(args, filter.ManagerID)
		conditions = append(conditions, fmt.Sprintf("(r.manager_id = $%d OR r.backup_manager_id = $%d)", len(args), len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("%s%s ORDER BY r.updated_at DESC LIMIT %d OFFSET %d", roomDetailSelect, where, size, (page-1)*size)

	var rooms []models.RoomDetail
	if err := r.db.SelectContext(ctx, &rooms, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list rooms: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM rooms r"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count rooms: %w", err)
	}
	return rooms, total, nil
}

// Update persists mutable room fields. Tombstoned rooms are not updated.
func (r *RoomRepository) Update(ctx context.Context, room *models.Room) error {
	room.UpdatedAt = time.Now().UTC()
	const query = `UPDATE rooms SET region = :region, center = :center, name = :name, manager_id = :manager_id,
	manager_name = :manager_name, manager_phone = :manager_phone, backup_manager_id = :backup_manager_id,
	backup_manager_name = :backup_manager_name, backup_manager_phone = :backup_manager_phone,
	lock_device_sn = :lock_device_sn, remarks = :remarks, updated_by = :updated_by, updated_at = :updated_at
	WHERE id = :id AND deleted_at IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, room)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check room update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete tombstones a room once no pending or approved request references it.
// The room row stays locked while live requests are counted so a concurrent
// submission cannot slip in between the check and the tombstone.
func (r *RoomRepository) SoftDelete(ctx context.Context, id, deletedBy string, at time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin room delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked string
	if err = tx.GetContext(ctx, &locked, `SELECT id FROM rooms WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock room: %w", err)
	}

	var live int
	const countQuery = `SELECT COUNT(*) FROM access_requests WHERE room_id = $1 AND status IN ($2, $3)`
	if err = tx.GetContext(ctx, &live, countQuery, id, models.AccessStatusPending, models.AccessStatusApproved); err != nil {
		return fmt.Errorf("count live requests: %w", err)
	}
	if live > 0 {
		err = ErrRoomInUse
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE rooms SET deleted_at = $2, updated_by = $3, updated_at = $2 WHERE id = $1`, id, at, deletedBy); err != nil {
		return fmt.Errorf("tombstone room: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit room delete: %w", err)
	}
	return nil
}

// DistinctRegions lists regions that have at least one live room.
func (r *RoomRepository) DistinctRegions(ctx context.Context) ([]string, error) {
	var regions []string
	const query = `SELECT DISTINCT region FROM rooms WHERE deleted_at IS NULL ORDER BY region`
	if err := r.db.SelectContext(ctx, &regions, query); err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	return regions, nil
}

// DistinctCenters lists centers with live rooms, optionally within a region.
func (r *RoomRepository) DistinctCenters(ctx context.Context, region string) ([]string, error) {
	query := `SELECT DISTINCT center FROM rooms WHERE deleted_at IS NULL`
	args := []interface{}{}
	if region != "" {
		args = append(args, region)
		query += " AND region = $1"
	}
	query += " ORDER BY center"

	var centers []string
	if err := r.db.SelectContext(ctx, &centers, query, args...); err != nil {
		return nil, fmt.Errorf("list centers: %w", err)
	}
	return centers, nil
}
