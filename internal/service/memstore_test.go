package service

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/room-access-api/internal/dto"
	"github.com/noah-isme/room-access-api/internal/models"
	"github.com/noah-isme/room-access-api/internal/repository"
)

// memStore keeps workflow state in memory. Every mutation runs under one
// mutex and applies the same conditions as the SQL repositories.
type memStore struct {
	mu        sync.Mutex
	rooms     map[string]*models.RoomDetail
	requests  map[string]*models.AccessRequest
	approvals map[string]*models.Approval
	codes     map[string]*models.AccessCode
	records   []*models.AccessRecord
	// appendErr, when set, fails every record insert.
	appendErr error
}

func newMemStore() *memStore {
	return &memStore{
		rooms:     map[string]*models.RoomDetail{},
		requests:  map[string]*models.AccessRequest{},
		approvals: map[string]*models.Approval{},
		codes:     map[string]*models.AccessCode{},
	}
}

type memRequests struct{ *memStore }
type memApprovals struct{ *memStore }
type memRooms struct{ *memStore }
type memCodes struct{ *memStore }
type memRecords struct{ *memStore }

func (s memRequests) Create(_ context.Context, req *models.AccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[req.RoomID]
	if !ok || room.Deleted() {
		return repository.ErrRoomUnavailable
	}
	req.ID = uuid.NewString()
	req.UpdatedAt = req.CreatedAt
	stored := *req
	s.requests[req.ID] = &stored
	return nil
}

func (s memRequests) GetByID(_ context.Context, id string) (*models.AccessRequestDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.AccessRequestDetail{AccessRequest: *req, RoomName: s.rooms[req.RoomID].Name}, nil
}

func (s memRequests) List(_ context.Context, filter models.AccessRequestFilter) ([]models.AccessRequestDetail, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]models.AccessRequestDetail, 0)
	for _, req := range s.requests {
		if filter.ApplicantID != "" && req.ApplicantID != filter.ApplicantID {
			continue
		}
		if filter.RoomID != "" && req.RoomID != filter.RoomID {
			continue
		}
		if filter.ManagerID != "" && !s.rooms[req.RoomID].IsManagedBy(filter.ManagerID) {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, req.Status) {
			continue
		}
		items = append(items, models.AccessRequestDetail{AccessRequest: *req})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAt.After(items[j].UpdatedAt) })
	return items, len(items), nil
}

func containsStatus(list []models.AccessRequestStatus, status models.AccessRequestStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

func (s memRequests) Cancel(_ context.Context, id, applicantID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok || req.ApplicantID != applicantID || req.Status != models.AccessStatusPending {
		return sql.ErrNoRows
	}
	req.Status = models.AccessStatusCancelled
	req.UpdatedAt = at
	return nil
}

func (s memRequests) Decide(_ context.Context, params repository.DecideParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[params.Approval.RequestID]
	if !ok || req.Status != models.AccessStatusPending {
		return sql.ErrNoRows
	}
	if params.Code != nil {
		if _, taken := s.codes[params.Code.Code]; taken {
			return repository.ErrCodeCollision
		}
		code := *params.Code
		s.codes[code.Code] = &code
		req.Status = models.AccessStatusApproved
		req.AccessCode = &code.Code
	} else {
		req.Status = models.AccessStatusRejected
	}
	req.ApprovalRemarks = params.Approval.Remarks
	req.UpdatedAt = params.At
	params.Approval.ID = uuid.NewString()
	approval := *params.Approval
	s.approvals[req.ID] = &approval
	return nil
}

func (s memApprovals) List(_ context.Context, filter models.ApprovalFilter) ([]models.ApprovalDetail, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]models.ApprovalDetail, 0)
	for _, approval := range s.approvals {
		req := s.requests[approval.RequestID]
		if filter.ManagerID != "" && !s.rooms[req.RoomID].IsManagedBy(filter.ManagerID) {
			continue
		}
		if filter.ApplicantID != "" && req.ApplicantID != filter.ApplicantID {
			continue
		}
		if filter.Decision != "" && approval.Decision != filter.Decision {
			continue
		}
		items = append(items, models.ApprovalDetail{Approval: *approval})
	}
	return items, len(items), nil
}

func (s memRooms) GetByID(_ context.Context, id string) (*models.RoomDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *room
	return &copied, nil
}

func (s memCodes) GetByCode(_ context.Context, code string) (*models.AccessCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ac, ok := s.codes[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *ac
	return &copied, nil
}

func (s memCodes) Consume(_ context.Context, code string, at time.Time, grant *models.AccessRecord) (*models.AccessCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ac, ok := s.codes[code]
	if !ok || ac.Status != models.CodeStatusUnused || !ac.Covers(at) {
		return nil, sql.ErrNoRows
	}
	req := s.requests[ac.RequestID]
	if grant != nil {
		if req != nil {
			if room := s.rooms[req.RoomID]; room != nil && room.LockDeviceSN != nil && *room.LockDeviceSN != "" &&
				!strings.EqualFold(*room.LockDeviceSN, grant.DeviceID) {
				copied := *ac
				return &copied, repository.ErrWrongDevice
			}
		}
		grant.RequestID = &ac.RequestID
		if approval := s.approvals[ac.RequestID]; approval != nil {
			grant.ApprovalID = &approval.ID
		}
		if err := s.insertRecord(grant); err != nil {
			grant.RequestID, grant.ApprovalID = nil, nil
			return nil, err
		}
	}
	ac.Status = models.CodeStatusUsed
	ac.UsedAt = &at
	if req != nil && req.Status == models.AccessStatusApproved {
		req.Status = models.AccessStatusCompleted
		req.UpdatedAt = at
	}
	copied := *ac
	return &copied, nil
}

func (s memCodes) ExpireLapsed(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []string
	for _, ac := range s.codes {
		if ac.Status != models.CodeStatusUnused || !ac.ValidUntil.Before(now) {
			continue
		}
		ac.Status = models.CodeStatusExpired
		if req := s.requests[ac.RequestID]; req != nil && req.Status == models.AccessStatusApproved {
			req.Status = models.AccessStatusExpired
			req.UpdatedAt = now
			expired = append(expired, req.ID)
		}
	}
	return expired, nil
}

func (s memRecords) Append(_ context.Context, record *models.AccessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertRecord(record)
}

// insertRecord must be called with mu held.
func (s *memStore) insertRecord(record *models.AccessRecord) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	if record.EventID != nil {
		for _, existing := range s.records {
			if existing.EventID != nil && *existing.EventID == *record.EventID && existing.DeviceID == record.DeviceID {
				return repository.ErrDuplicateEvent
			}
		}
	}
	record.ID = uuid.NewString()
	copied := *record
	s.records = append(s.records, &copied)
	return nil
}

func (s memRecords) FindByEvent(_ context.Context, deviceID, eventID string) (*models.AccessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.EventID != nil && *existing.EventID == eventID && existing.DeviceID == deviceID {
			copied := *existing
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s memRecords) List(_ context.Context, filter models.AccessRecordFilter) ([]models.AccessRecordDetail, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]models.AccessRecordDetail, 0, len(s.records))
	for _, record := range s.records {
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		items = append(items, models.AccessRecordDetail{AccessRecord: *record})
	}
	return items, len(items), nil
}

func (s *memStore) request(t *testing.T, id string) models.AccessRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	require.True(t, ok, "request %s not stored", id)
	return *req
}

func (s *memStore) codeStatus(t *testing.T, code string) models.AccessCodeStatus {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	ac, ok := s.codes[code]
	require.True(t, ok, "code %s not stored", code)
	return ac.Status
}

func (s *memStore) failAppends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendErr = err
}

func (s *memStore) approvalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.approvals)
}

func (s *memStore) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

const (
	roomID      = "11111111-1111-4111-8111-111111111111"
	managerID   = "22222222-2222-4222-8222-222222222222"
	applicantID = "33333333-3333-4333-8333-333333333333"
	otherUserID = "44444444-4444-4444-8444-444444444444"
	testGrace   = 30 * time.Minute
)

var (
	adminActor     = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	managerActor   = &models.JWTClaims{UserID: managerID, Role: models.RoleManager}
	applicantActor = &models.JWTClaims{UserID: applicantID, Role: models.RoleApplicant}
	otherActor     = &models.JWTClaims{UserID: otherUserID, Role: models.RoleApplicant}
	otherManager   = &models.JWTClaims{UserID: otherUserID, Role: models.RoleManager}
)

type workflow struct {
	store   *memStore
	clock   *testClock
	base    time.Time
	issuer  *AccessCodeIssuer
	access  *AccessService
	records *AccessRecordService
	events  *recordingSink
}

type recordedEvent struct {
	Type    string
	Subject string
}

type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingSink) Emit(_ context.Context, eventType, subject string, _ interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Subject: subject})
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func newWorkflow(t *testing.T, issuerOpts ...IssuerOption) *workflow {
	t.Helper()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	clock := &testClock{now: base}
	store := newMemStore()
	store.rooms[roomID] = &models.RoomDetail{Room: models.Room{ID: roomID, Name: "Lab A", Region: "north", Center: "hq", ManagerID: managerID}}

	sink := &recordingSink{}
	opts := append([]IssuerOption{WithIssuerClock(clock.Now)}, issuerOpts...)
	issuer := NewAccessCodeIssuer(memCodes{store}, IssuerConfig{GracePeriod: testGrace, MaxAttempts: 5, Timeout: time.Second}, nil, zap.NewNop(), opts...)
	access := NewAccessService(memRequests{store}, memApprovals{store}, memRooms{store}, memCodes{store}, issuer, nil, nil, zap.NewNop(),
		WithAccessClock(clock.Now), WithAccessEvents(sink))
	records := NewAccessRecordService(memRecords{store}, issuer, nil, zap.NewNop(), WithRecordEvents(sink))
	return &workflow{store: store, clock: clock, base: base, issuer: issuer, access: access, records: records, events: sink}
}

func (w *workflow) submit(t *testing.T, entry, exit time.Duration) *models.AccessRequest {
	t.Helper()
	req, err := w.access.Submit(context.Background(), dto.SubmitAccessRequest{
		RoomID:           roomID,
		Contact:          "13800000000",
		RequestType:      "VISIT",
		VisitPurpose:     "maintenance",
		PlannedEntryTime: w.base.Add(entry),
		PlannedExitTime:  w.base.Add(exit),
	}, applicantActor)
	require.NoError(t, err)
	return req
}

func (w *workflow) decide(ctx context.Context, id string, decision models.ApprovalDecision, actor *models.JWTClaims) (*dto.ProcessApprovalResponse, error) {
	return w.access.Decide(ctx, dto.ProcessApprovalRequest{RequestID: id, ApprovalResult: decision}, actor)
}

func (w *workflow) enter(t *testing.T, code string, at time.Time, eventID string) *dto.GateEntryResponse {
	t.Helper()
	res, err := w.records.RecordEntry(context.Background(), dto.GateEntryRequest{AccessCode: code, DeviceID: "gate-1", ObservedTime: at, EventID: eventID})
	require.NoError(t, err)
	return res
}
