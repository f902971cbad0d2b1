package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/room-access-api/internal/dto"
	"github.com/noah-isme/room-access-api/internal/models"
	"github.com/noah-isme/room-access-api/internal/repository"
	appErrors "github.com/noah-isme/room-access-api/pkg/errors"
	"github.com/noah-isme/room-access-api/pkg/events"
)

type accessRecordStore interface {
	Append(ctx context.Context, record *models.AccessRecord) error
	FindByEvent(ctx context.Context, deviceID, eventID string) (*models.AccessRecord, error)
	List(ctx context.Context, filter models.AccessRecordFilter) ([]models.AccessRecordDetail, int, error)
}

type eventDeduper interface {
	Claim(ctx context.Context, deviceID, eventID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, deviceID, eventID string) error
}

type codeConsumer interface {
	Consume(ctx context.Context, code string, at time.Time, grant *models.AccessRecord) (*models.AccessCode, error)
}

// AccessRecordService correlates physical entry events with issued codes and
// keeps the append-only access record log.
type AccessRecordService struct {
	records      accessRecordStore
	codes        codeConsumer
	dedupe       eventDeduper
	dedupeWindow time.Duration
	events       eventSink
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
}

// AccessRecordOption configures the service.
type AccessRecordOption func(*AccessRecordService)

// WithRecordDedupe enables the event id dedupe window.
func WithRecordDedupe(dedupe eventDeduper, window time.Duration) AccessRecordOption {
	return func(s *AccessRecordService) {
		s.dedupe = dedupe
		if window > 0 {
			s.dedupeWindow = window
		}
	}
}

// WithRecordEvents sets the event sink.
func WithRecordEvents(sink eventSink) AccessRecordOption {
	return func(s *AccessRecordService) {
		if sink != nil {
			s.events = sink
		}
	}
}

// WithRecordMetrics sets the metrics collector.
func WithRecordMetrics(metrics *MetricsService) AccessRecordOption {
	return func(s *AccessRecordService) {
		s.metrics = metrics
	}
}

// NewAccessRecordService constructs the correlator.
func NewAccessRecordService(records accessRecordStore, codes codeConsumer, validate *validator.Validate, logger *zap.Logger, opts ...AccessRecordOption) *AccessRecordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	svc := &AccessRecordService{
		records:      records,
		codes:        codes,
		dedupeWindow: 10 * time.Minute,
		events:       nopSink{},
		validator:    validate,
		logger:       logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// RecordEntry consumes the presented code and appends exactly one access
// record describing the attempt. A repeated device event id returns the
// record stored for the first delivery.
func (s *AccessRecordService) RecordEntry(ctx context.Context, req dto.GateEntryRequest) (*dto.GateEntryResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid gate entry")
	}
	code := strings.ToUpper(strings.TrimSpace(req.AccessCode))
	deviceID := strings.TrimSpace(req.DeviceID)
	eventID := strings.TrimSpace(req.EventID)
	observed := req.ObservedTime.UTC()

	if eventID != "" {
		if existing, err := s.findEvent(ctx, deviceID, eventID); err != nil || existing != nil {
			if err != nil {
				return nil, err
			}
			return duplicateResponse(existing), nil
		}
		claimed, err := s.claim(ctx, deviceID, eventID)
		if err != nil {
			return nil, err
		}
		if !claimed {
			return nil, appErrors.Clone(appErrors.ErrConflict, "entry event is already being processed")
		}
	}

	record := &models.AccessRecord{
		Code:      code,
		DeviceID:  deviceID,
		EventID:   optionalString(eventID),
		VisitTime: observed,
		Status:    models.RecordStatusGranted,
	}

	// A granted record is written by Consume in the same transaction as the code.
	consumed, err := s.codes.Consume(ctx, code, observed, record)
	reason := ""
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEvent) {
			return s.duplicate(ctx, deviceID, eventID, err)
		}
		outcome, isCodeErr := outcomeFromError(err)
		if !isCodeErr {
			s.logger.Error("failed to consume access code",
				zap.String("code", code),
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
			s.release(ctx, deviceID, eventID)
			return nil, err
		}

		reason = string(outcome)
		record = &models.AccessRecord{
			Code:      code,
			DeviceID:  deviceID,
			EventID:   optionalString(eventID),
			VisitTime: observed,
			Status:    models.RecordStatusDenied,
			Reason:    &reason,
		}
		if consumed != nil {
			record.RequestID = &consumed.RequestID
		}
		if aerr := s.records.Append(ctx, record); aerr != nil {
			if errors.Is(aerr, repository.ErrDuplicateEvent) {
				return s.duplicate(ctx, deviceID, eventID, aerr)
			}
			s.logger.Error("failed to append access record",
				zap.String("code", code),
				zap.String("device_id", deviceID),
				zap.String("status", string(record.Status)),
				zap.Error(aerr),
			)
			s.release(ctx, deviceID, eventID)
			return nil, appErrors.Wrap(aerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append access record")
		}
	}

	s.metrics.RecordEntry(string(record.Status), reason)
	s.events.Emit(ctx, events.TypeAccessRecorded, record.ID, record)
	if record.Status == models.RecordStatusDenied {
		s.logger.Info("gate entry denied", zap.String("device_id", deviceID), zap.String("reason", reason))
	}
	return &dto.GateEntryResponse{Record: record, Granted: record.Status == models.RecordStatusGranted}, nil
}

// ListRecords returns access records scoped by role: managers see rooms they
// manage, applicants see their own visits.
func (s *AccessRecordService) ListRecords(ctx context.Context, query dto.AccessRecordQuery, actor *models.JWTClaims) ([]models.AccessRecordDetail, *models.Pagination, error) {
	filter, err := recordFilter(query, actor)
	if err != nil {
		return nil, nil, err
	}
	items, total, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list access records")
	}
	return items, pagination(query.Page, query.PageSize, total), nil
}

func recordFilter(query dto.AccessRecordQuery, actor *models.JWTClaims) (models.AccessRecordFilter, error) {
	if actor == nil {
		return models.AccessRecordFilter{}, appErrors.ErrUnauthorized
	}
	if query.Status != "" && query.Status != models.RecordStatusGranted && query.Status != models.RecordStatusDenied {
		return models.AccessRecordFilter{}, appErrors.WithDetails(appErrors.ErrValidation, "invalid status filter", map[string]string{"accessStatus": string(query.Status)})
	}
	if query.StartTime != nil && query.EndTime != nil && query.EndTime.Before(*query.StartTime) {
		return models.AccessRecordFilter{}, appErrors.WithDetails(appErrors.ErrValidation, "invalid time range", map[string]string{"endTime": "must not be before startTime"})
	}
	filter := models.AccessRecordFilter{
		RoomID:   query.RoomID,
		Status:   query.Status,
		From:     query.StartTime,
		To:       query.EndTime,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleManager:
		filter.ManagerID = actor.UserID
	case models.RoleApplicant:
		filter.ApplicantID = actor.UserID
	default:
		return models.AccessRecordFilter{}, appErrors.ErrForbidden
	}
	return filter, nil
}

func (s *AccessRecordService) findEvent(ctx context.Context, deviceID, eventID string) (*models.AccessRecord, error) {
	record, err := s.records.FindByEvent(ctx, deviceID, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up entry event")
	}
	return record, nil
}

func (s *AccessRecordService) claim(ctx context.Context, deviceID, eventID string) (bool, error) {
	if s.dedupe == nil {
		return true, nil
	}
	ok, err := s.dedupe.Claim(ctx, deviceID, eventID, s.dedupeWindow)
	if err != nil {
		// The unique index on (device_id, event_id) still rejects duplicates.
		s.logger.Warn("dedupe claim failed", zap.String("device_id", deviceID), zap.String("event_id", eventID), zap.Error(err))
		return true, nil
	}
	return ok, nil
}

func (s *AccessRecordService) release(ctx context.Context, deviceID, eventID string) {
	if s.dedupe == nil || eventID == "" {
		return
	}
	if err := s.dedupe.Release(ctx, deviceID, eventID); err != nil {
		s.logger.Warn("dedupe release failed", zap.String("device_id", deviceID), zap.String("event_id", eventID), zap.Error(err))
	}
}

// duplicate resolves a unique index hit on (device, event) to the record the
// first delivery stored.
func (s *AccessRecordService) duplicate(ctx context.Context, deviceID, eventID string, cause error) (*dto.GateEntryResponse, error) {
	existing, err := s.findEvent(ctx, deviceID, eventID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, appErrors.Wrap(cause, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append access record")
	}
	return duplicateResponse(existing), nil
}

func duplicateResponse(record *models.AccessRecord) *dto.GateEntryResponse {
	return &dto.GateEntryResponse{Record: record, Granted: record.Status == models.RecordStatusGranted, Duplicate: true}
}
