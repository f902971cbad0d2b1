package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-access-api/internal/dto"
	"github.com/noah-isme/room-access-api/pkg/response"
)

type entryRecorder interface {
	RecordEntry(ctx context.Context, req dto.GateEntryRequest) (*dto.GateEntryResponse, error)
}

type codeChecker interface {
	Check(ctx context.Context, code string) (*dto.CodeValidationResponse, error)
}

// GateHandler receives lock device events.
type GateHandler struct {
	recorder entryRecorder
	codes    codeChecker
}

// NewGateHandler builds a gate handler.
func NewGateHandler(recorder entryRecorder, codes codeChecker) *GateHandler {
	return &GateHandler{recorder: recorder, codes: codes}
}

// Entry godoc
// @Summary Record a physical entry attempt
// @Description Consumes the presented code and appends an access record. Denied entries are recorded too and reported with granted=false.
// @Tags Gate
// @Accept json
// @Produce json
// @Param payload body dto.GateEntryRequest true "Entry event"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /gate/entries [post]
func (h *GateHandler) Entry(c *gin.Context) {
	var req dto.GateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid entry payload"))
		return
	}
	res, err := h.recorder.RecordEntry(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	response.JSON(c, status, res, nil)
}

// Validate godoc
// @Summary Check an access code without consuming it
// @Tags Gate
// @Produce json
// @Param code path string true "Access code"
// @Success 200 {object} response.Envelope
// @Router /codes/{code}/validate [get]
func (h *GateHandler) Validate(c *gin.Context) {
	res, err := h.codes.Check(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
