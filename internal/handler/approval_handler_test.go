package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/room-access-api/internal/dto"
	"github.com/noah-isme/room-access-api/internal/models"
	appErrors "github.com/noah-isme/room-access-api/pkg/errors"
)

type approvalServiceMock struct {
	decideResp  *dto.ProcessApprovalResponse
	decideErr   error
	lastDecide  dto.ProcessApprovalRequest
	lastResults dto.ApprovalResultQuery
	lastPending dto.PendingQuery
}

func (m *approvalServiceMock) Pending(_ context.Context, query dto.PendingQuery, _ *models.JWTClaims) ([]models.AccessRequestDetail, *models.Pagination, error) {
	m.lastPending = query
	return nil, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *approvalServiceMock) Decide(_ context.Context, req dto.ProcessApprovalRequest, _ *models.JWTClaims) (*dto.ProcessApprovalResponse, error) {
	m.lastDecide = req
	return m.decideResp, m.decideErr
}

func (m *approvalServiceMock) Results(_ context.Context, query dto.ApprovalResultQuery, _ *models.JWTClaims) ([]models.ApprovalDetail, *models.Pagination, error) {
	m.lastResults = query
	return nil, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func TestApprovalHandlerProcessReturnsCode(t *testing.T) {
	svc := &approvalServiceMock{decideResp: &dto.ProcessApprovalResponse{
		RequestID: "req-1", RequestStatus: models.AccessStatusApproved, ApprovalResult: models.DecisionApproved, AccessCode: "ABCD2345",
	}}
	h := NewApprovalHandler(svc)

	c, w := newTestContext(t, http.MethodPost, "/approvals/process", `{"requestId":"req-1","approvalResult":"APPROVED","approvalRemarks":"ok"}`, adminClaims)
	h.Process(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", svc.lastDecide.Remarks)

	var res dto.ProcessApprovalResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &res))
	assert.Equal(t, "ABCD2345", res.AccessCode)
}

func TestApprovalHandlerProcessErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"already decided", appErrors.ErrAlreadyDecided, http.StatusConflict, appErrors.ErrAlreadyDecided.Code},
		{"issuance", appErrors.ErrIssuance, http.StatusServiceUnavailable, appErrors.ErrIssuance.Code},
		{"forbidden", appErrors.ErrForbidden, http.StatusForbidden, appErrors.ErrForbidden.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewApprovalHandler(&approvalServiceMock{decideErr: tc.err})
			c, w := newTestContext(t, http.MethodPost, "/approvals/process", `{"requestId":"req-1","approvalResult":"REJECTED"}`, adminClaims)
			h.Process(c)
			require.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decodeEnvelope(t, w).Error.Code)
		})
	}
}

func TestApprovalHandlerResultsFilter(t *testing.T) {
	svc := &approvalServiceMock{}
	h := NewApprovalHandler(svc)

	c, w := newTestContext(t, http.MethodGet, "/approvals/results?approvalResult=rejected&page=3", nil, adminClaims)
	h.Results(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.DecisionRejected, svc.lastResults.Decision)
	assert.Equal(t, 3, svc.lastResults.Page)
}

func TestApprovalHandlerPendingRoomFilter(t *testing.T) {
	svc := &approvalServiceMock{}
	h := NewApprovalHandler(svc)

	c, w := newTestContext(t, http.MethodGet, "/approvals/pending?roomId=room-9", nil, adminClaims)
	h.Pending(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "room-9", svc.lastPending.RoomID)
}
