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
	"github.com/noah-isme/room-access-api/pkg/events"
)

type accessRequestStore interface {
	Create(ctx context.Context, req *models.AccessRequest) error
	GetByID(ctx context.Context, id string) (*models.AccessRequestDetail, error)
	List(ctx context.Context, filter models.AccessRequestFilter) ([]models.AccessRequestDetail, int, error)
	Cancel(ctx context.Context, id, applicantID string, at time.Time) error
	Decide(ctx context.Context, params repository.DecideParams) error
}

type approvalStore interface {
	List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalDetail, int, error)
}

type roomLookup interface {
	GetByID(ctx context.Context, id string) (*models.RoomDetail, error)
}

type codeExpirer interface {
	ExpireLapsed(ctx context.Context, now time.Time) ([]string, error)
}

type codeIssuer interface {
	Issue(ctx context.Context, requestID string, entry, exit time.Time, persist PersistCodeFunc) (*models.AccessCode, error)
}

// AccessService is the approval engine: it owns the access request state
// machine and the read views over requests and decisions.
type AccessService struct {
	requests  accessRequestStore
	approvals approvalStore
	rooms     roomLookup
	expirer   codeExpirer
	issuer    codeIssuer
	audit     auditLogger
	events    eventSink
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	clock     Clock
}

// AccessServiceOption configures the service.
type AccessServiceOption func(*AccessService)

// WithAccessClock overrides the clock.
func WithAccessClock(clock Clock) AccessServiceOption {
	return func(s *AccessService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithAccessEvents sets the event sink.
func WithAccessEvents(sink eventSink) AccessServiceOption {
	return func(s *AccessService) {
		if sink != nil {
			s.events = sink
		}
	}
}

// WithAccessMetrics sets the metrics collector.
func WithAccessMetrics(metrics *MetricsService) AccessServiceOption {
	return func(s *AccessService) {
		s.metrics = metrics
	}
}

// NewAccessService constructs the approval engine.
func NewAccessService(
	requests accessRequestStore,
	approvals approvalStore,
	rooms roomLookup,
	expirer codeExpirer,
	issuer codeIssuer,
	audit auditLogger,
	validate *validator.Validate,
	logger *zap.Logger,
	opts ...AccessServiceOption,
) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	svc := &AccessService{
		requests:  requests,
		approvals: approvals,
		rooms:     rooms,
		expirer:   expirer,
		issuer:    issuer,
		audit:     audit,
		events:    nopSink{},
		validator: validate,
		logger:    logger,
		clock:     systemClock,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Submit creates a pending request for the applicant.
func (s *AccessService) Submit(ctx context.Context, req dto.SubmitAccessRequest, actor *models.JWTClaims) (*models.AccessRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid access request")
	}
	now := s.clock()
	entry, exit := req.PlannedEntryTime.UTC(), req.PlannedExitTime.UTC()
	details := map[string]string{}
	if !entry.Before(exit) {
		details["plannedExitTime"] = "must be after plannedEntryTime"
	}
	if !entry.After(now) {
		details["plannedEntryTime"] = "must be in the future"
	}
	if len(details) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid access window", details)
	}

	room, err := s.rooms.GetByID(ctx, req.RoomID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	if room == nil || room.Deleted() {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid access request", map[string]string{"roomId": "room not found"})
	}

	request := &models.AccessRequest{
		ApplicantID:        actor.UserID,
		RoomID:             room.ID,
		Contact:            strings.TrimSpace(req.Contact),
		RequestType:        strings.TrimSpace(req.RequestType),
		VisitPurpose:       strings.TrimSpace(req.VisitPurpose),
		PurposeDescription: optionalString(req.PurposeDescription),
		PlannedEntryTime:   entry,
		PlannedExitTime:    exit,
		Status:             models.AccessStatusPending,
		CreatedAt:          now,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		if errors.Is(err, repository.ErrRoomUnavailable) {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid access request", map[string]string{"roomId": "room not found"})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access request")
	}

	payload, _ := json.Marshal(request)
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionAccessSubmit,
		Resource:   "access_request",
		ResourceID: &request.ID,
		NewValues:  payload,
	})
	s.events.Emit(ctx, events.TypeRequestSubmitted, request.ID, request)
	return request, nil
}

// Get returns a request visible to the actor.
func (s *AccessService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.AccessRequestDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleAdmin || request.ApplicantID == actor.UserID {
		return request, nil
	}
	room, err := s.rooms.GetByID(ctx, request.RoomID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	if room != nil && room.IsManagedBy(actor.UserID) {
		return request, nil
	}
	return nil, appErrors.ErrForbidden
}

// Cancel withdraws a pending request. Cancelling an already cancelled request
// succeeds without change; any other non-pending state is an invalid state.
func (s *AccessService) Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.AccessRequestDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	now := s.clock()
	err := s.requests.Cancel(ctx, id, actor.UserID, now)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel access request")
	}

	current, lerr := s.load(ctx, id)
	if lerr != nil {
		return nil, lerr
	}
	if current.ApplicantID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the applicant may cancel a request")
	}
	if err == nil {
		emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     models.AuditActionAccessCancel,
			Resource:   "access_request",
			ResourceID: &current.ID,
			NewValues:  []byte(`{"status":"CANCELLED"}`),
		})
		s.events.Emit(ctx, events.TypeRequestCancelled, current.ID, current.AccessRequest)
		return current, nil
	}
	if current.Status == models.AccessStatusCancelled {
		return current, nil
	}
	return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("request is %s and can no longer be cancelled", current.Status))
}

// Decide records an approver's decision. At most one decision wins per
// request; an approval commits only together with its access code.
func (s *AccessService) Decide(ctx context.Context, req dto.ProcessApprovalRequest, actor *models.JWTClaims) (*dto.ProcessApprovalResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid approval payload")
	}

	request, err := s.load(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeApprover(ctx, request.RoomID, actor); err != nil {
		return nil, err
	}
	if request.Status != models.AccessStatusPending {
		s.metrics.RecordDecision("refused")
		return nil, decidedError(request.Status)
	}

	now := s.clock()
	approval := &models.Approval{
		RequestID:  request.ID,
		ApproverID: actor.UserID,
		Decision:   req.ApprovalResult,
		Remarks:    optionalString(req.Remarks),
		CreatedAt:  now,
	}
	response := &dto.ProcessApprovalResponse{RequestID: request.ID, ApprovalResult: req.ApprovalResult}

	switch req.ApprovalResult {
	case models.DecisionApproved:
		code, ierr := s.issuer.Issue(ctx, request.ID, request.PlannedEntryTime, request.PlannedExitTime, func(ctx context.Context, code *models.AccessCode) error {
			return s.requests.Decide(ctx, repository.DecideParams{Approval: approval, Code: code, At: now})
		})
		if ierr != nil {
			return nil, s.decideFailure(ctx, request.ID, ierr)
		}
		response.RequestStatus = models.AccessStatusApproved
		response.AccessCode = code.Code
		response.ValidFrom = &code.ValidFrom
		response.ValidUntil = &code.ValidUntil
	default:
		if derr := s.requests.Decide(ctx, repository.DecideParams{Approval: approval, At: now}); derr != nil {
			return nil, s.decideFailure(ctx, request.ID, derr)
		}
		response.RequestStatus = models.AccessStatusRejected
	}

	s.metrics.RecordDecision(strings.ToLower(string(req.ApprovalResult)))
	payload, _ := json.Marshal(response)
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionAccessDecide,
		Resource:   "access_request",
		ResourceID: &request.ID,
		OldValues:  []byte(`{"status":"PENDING"}`),
		NewValues:  payload,
	})
	s.events.Emit(ctx, events.TypeRequestDecided, request.ID, map[string]interface{}{
		"requestId":      request.ID,
		"roomId":         request.RoomID,
		"applicantId":    request.ApplicantID,
		"approverId":     actor.UserID,
		"approvalResult": req.ApprovalResult,
		"requestStatus":  response.RequestStatus,
	})
	return response, nil
}

func (s *AccessService) decideFailure(ctx context.Context, requestID string, err error) error {
	var appErr *appErrors.Error
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.metrics.RecordDecision("refused")
		current, lerr := s.load(ctx, requestID)
		if lerr != nil {
			return lerr
		}
		return decidedError(current.Status)
	case errors.As(err, &appErr):
		if errors.Is(err, appErrors.ErrIssuance) {
			s.metrics.RecordDecision("issuance_failed")
			s.logger.Error("approval rolled back: access code issuance failed", zap.String("request_id", requestID), zap.Error(err))
		}
		return appErr
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}
}

func decidedError(status models.AccessRequestStatus) error {
	if status.Decided() {
		return appErrors.Clone(appErrors.ErrAlreadyDecided, fmt.Sprintf("request already decided: %s", status))
	}
	return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("request is %s and can no longer be decided", status))
}

func (s *AccessService) authorizeApprover(ctx context.Context, roomID string, actor *models.JWTClaims) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrForbidden
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	if !room.IsManagedBy(actor.UserID) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the room's managers may decide this request")
	}
	return nil
}

// ListOwn returns the actor's requests. Admins see every request.
func (s *AccessService) ListOwn(ctx context.Context, query dto.AccessRequestQuery, actor *models.JWTClaims) ([]models.AccessRequestDetail, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	for _, status := range query.Status {
		if !status.Valid() {
			return nil, nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid status filter", map[string]string{"status": string(status)})
		}
	}
	filter := models.AccessRequestFilter{
		RoomID:   query.RoomID,
		Status:   query.Status,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if actor.Role != models.RoleAdmin {
		filter.ApplicantID = actor.UserID
	}
	items, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list access requests")
	}
	return items, pagination(query.Page, query.PageSize, total), nil
}

// Pending returns the pending queue of rooms the actor manages. Admins see all rooms.
func (s *AccessService) Pending(ctx context.Context, query dto.PendingQuery, actor *models.JWTClaims) ([]models.AccessRequestDetail, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	filter := models.AccessRequestFilter{
		RoomID:   query.RoomID,
		Status:   []models.AccessRequestStatus{models.AccessStatusPending},
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if actor.Role != models.RoleAdmin {
		filter.ManagerID = actor.UserID
	}
	items, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending requests")
	}
	return items, pagination(query.Page, query.PageSize, total), nil
}

// Results returns approval history scoped by role: managers see decisions on
// rooms they manage, applicants see decisions on their own requests.
func (s *AccessService) Results(ctx context.Context, query dto.ApprovalResultQuery, actor *models.JWTClaims) ([]models.ApprovalDetail, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if query.Decision != "" && !query.Decision.Valid() {
		return nil, nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid decision filter", map[string]string{"approvalResult": string(query.Decision)})
	}
	filter := models.ApprovalFilter{Decision: query.Decision, Page: query.Page, PageSize: query.PageSize}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleManager:
		filter.ManagerID = actor.UserID
	case models.RoleApplicant:
		filter.ApplicantID = actor.UserID
	default:
		return nil, nil, appErrors.ErrForbidden
	}
	items, total, err := s.approvals.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approval results")
	}
	return items, pagination(query.Page, query.PageSize, total), nil
}

// ExpireLapsed expires approved requests whose code window ended unused.
func (s *AccessService) ExpireLapsed(ctx context.Context) (int, error) {
	now := s.clock()
	expired, err := s.expirer.ExpireLapsed(ctx, now)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire lapsed requests")
	}
	s.metrics.RecordExpired(len(expired))
	for _, id := range expired {
		requestID := id
		emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
			Action:     models.AuditActionAccessExpire,
			Resource:   "access_request",
			ResourceID: &requestID,
			OldValues:  []byte(`{"status":"APPROVED"}`),
			NewValues:  []byte(`{"status":"EXPIRED"}`),
		})
		s.events.Emit(ctx, events.TypeRequestExpired, requestID, map[string]interface{}{"requestId": requestID, "expiredAt": now})
	}
	return len(expired), nil
}

func (s *AccessService) load(ctx context.Context, id string) (*models.AccessRequestDetail, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "access request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load access request")
	}
	return request, nil
}
