package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-access-api/internal/dto"
	"github.com/noah-isme/room-access-api/internal/models"
	"github.com/noah-isme/room-access-api/pkg/response"
)

type approvalService interface {
	Pending(ctx context.Context, query dto.PendingQuery, actor *models.JWTClaims) ([]models.AccessRequestDetail, *models.Pagination, error)
	Decide(ctx context.Context, req dto.ProcessApprovalRequest, actor *models.JWTClaims) (*dto.ProcessApprovalResponse, error)
	Results(ctx context.Context, query dto.ApprovalResultQuery, actor *models.JWTClaims) ([]models.ApprovalDetail, *models.Pagination, error)
}

// ApprovalHandler serves the approver queue and decisions.
type ApprovalHandler struct {
	service approvalService
}

// NewApprovalHandler builds an approval handler.
func NewApprovalHandler(service approvalService) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// Pending godoc
// @Summary List requests awaiting the caller's decision
// @Tags Approvals
// @Produce json
// @Param roomId query string false "Room ID"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /approvals/pending [get]
func (h *ApprovalHandler) Pending(c *gin.Context) {
	query := dto.PendingQuery{
		RoomID:   strings.TrimSpace(c.Query("roomId")),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "pageSize", 20),
	}
	items, pagination, err := h.service.Pending(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, items, pagination)
}

// Process godoc
// @Summary Approve or reject a pending request
// @Tags Approvals
// @Accept json
// @Produce json
// @Param payload body dto.ProcessApprovalRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /approvals/process [post]
func (h *ApprovalHandler) Process(c *gin.Context) {
	var req dto.ProcessApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid approval payload"))
		return
	}
	res, err := h.service.Decide(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Results godoc
// @Summary List approval history
// @Tags Approvals
// @Produce json
// @Param approvalResult query string false "APPROVED or REJECTED"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /approvals/results [get]
func (h *ApprovalHandler) Results(c *gin.Context) {
	query := dto.ApprovalResultQuery{
		Decision: models.ApprovalDecision(strings.ToUpper(strings.TrimSpace(c.Query("approvalResult")))),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "pageSize", 20),
	}
	items, pagination, err := h.service.Results(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, items, pagination)
}
