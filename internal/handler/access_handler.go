package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-access-api/internal/dto"
	"github.com/noah-isme/room-access-api/internal/models"
	"github.com/noah-isme/room-access-api/internal/service"
	"github.com/noah-isme/room-access-api/pkg/response"
)

type accessService interface {
	Submit(ctx context.Context, req dto.SubmitAccessRequest, actor *models.JWTClaims) (*models.AccessRequest, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.AccessRequestDetail, error)
	Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.AccessRequestDetail, error)
	ListOwn(ctx context.Context, query dto.AccessRequestQuery, actor *models.JWTClaims) ([]models.AccessRequestDetail, *models.Pagination, error)
}

type recordLister interface {
	ListRecords(ctx context.Context, query dto.AccessRecordQuery, actor *models.JWTClaims) ([]models.AccessRecordDetail, *models.Pagination, error)
}

type recordExporter interface {
	ExportRecords(ctx context.Context, query dto.AccessRecordQuery, format service.ExportFormat, actor *models.JWTClaims) (*service.ExportFile, error)
}

// AccessHandler serves applicant requests and the access record history.
type AccessHandler struct {
	access   accessService
	records  recordLister
	exporter recordExporter
}

// NewAccessHandler builds an access handler.
func NewAccessHandler(access accessService, records recordLister, exporter recordExporter) *AccessHandler {
	return &AccessHandler{access: access, records: records, exporter: exporter}
}

// Submit godoc
// @Summary Submit an access request
// @Tags Access
// @Accept json
// @Produce json
// @Param payload body dto.SubmitAccessRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /access [post]
func (h *AccessHandler) Submit(c *gin.Context) {
	var req dto.SubmitAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid access request payload"))
		return
	}
	created, err := h.access.Submit(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List the caller's access requests
// @Tags Access
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param roomId query string false "Room ID"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /access [get]
func (h *AccessHandler) List(c *gin.Context) {
	query := dto.AccessRequestQuery{
		Status:   splitStatuses(c),
		RoomID:   strings.TrimSpace(c.Query("roomId")),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "pageSize", 20),
	}
	items, pagination, err := h.access.ListOwn(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, items, pagination)
}

// Get godoc
// @Summary Get an access request
// @Tags Access
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /access/{id} [get]
func (h *AccessHandler) Get(c *gin.Context) {
	req, err := h.access.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req, nil)
}

// Cancel godoc
// @Summary Withdraw a pending access request
// @Tags Access
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /access/{id}/cancel [post]
func (h *AccessHandler) Cancel(c *gin.Context) {
	req, err := h.access.Cancel(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req, nil)
}

// Records godoc
// @Summary List access records
// @Tags Access
// @Produce json
// @Param roomId query string false "Room ID"
// @Param status query string false "GRANTED or DENIED"
// @Param startTime query string false "RFC3339 or YYYY-MM-DD"
// @Param endTime query string false "RFC3339 or YYYY-MM-DD"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /access/records [get]
func (h *AccessHandler) Records(c *gin.Context) {
	query, err := parseRecordQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.records.ListRecords(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, items, pagination)
}

// Export godoc
// @Summary Export access records
// @Tags Access
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param roomId query string false "Room ID"
// @Param status query string false "GRANTED or DENIED"
// @Param startTime query string false "RFC3339 or YYYY-MM-DD"
// @Param endTime query string false "RFC3339 or YYYY-MM-DD"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /access/records/export [get]
func (h *AccessHandler) Export(c *gin.Context) {
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	query, err := parseRecordQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exporter.ExportRecords(c.Request.Context(), query, format, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}

func parseRecordQuery(c *gin.Context) (dto.AccessRecordQuery, error) {
	start, err := parseTimeParam("startTime", c.Query("startTime"))
	if err != nil {
		return dto.AccessRecordQuery{}, err
	}
	end, err := parseTimeParam("endTime", c.Query("endTime"))
	if err != nil {
		return dto.AccessRecordQuery{}, err
	}
	return dto.AccessRecordQuery{
		RoomID:    strings.TrimSpace(c.Query("roomId")),
		Status:    models.AccessRecordStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		StartTime: start,
		EndTime:   end,
		Page:      parseQueryInt(c, "page", 1),
		PageSize:  parseQueryInt(c, "pageSize", 20),
	}, nil
}
