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

type roomService interface {
	List(ctx context.Context, query dto.RoomQuery, actor *models.JWTClaims) ([]models.RoomDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.RoomDetail, error)
	Create(ctx context.Context, req dto.RoomRequest, actor *models.JWTClaims) (*models.RoomDetail, error)
	Update(ctx context.Context, id string, req dto.RoomRequest, actor *models.JWTClaims) (*models.RoomDetail, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
	Managers(ctx context.Context, id string) ([]models.RoomManager, error)
	ManagersByRegion(ctx context.Context, region string) ([]models.RoomManager, error)
}

// RoomHandler exposes the room registry.
type RoomHandler struct {
	service roomService
}

// NewRoomHandler builds a room handler.
func NewRoomHandler(service roomService) *RoomHandler {
	return &RoomHandler{service: service}
}

// List godoc
// @Summary List rooms
// @Tags Rooms
// @Produce json
// @Param roomRegion query string false "Region"
// @Param roomCenter query string false "Center"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /rooms [get]
func (h *RoomHandler) List(c *gin.Context) {
	query := dto.RoomQuery{
		Region:   strings.TrimSpace(c.Query("roomRegion")),
		Center:   strings.TrimSpace(c.Query("roomCenter")),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "pageSize", 20),
	}
	items, pagination, err := h.service.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, items, pagination)
}

// Get godoc
// @Summary Get room
// @Tags Rooms
// @Produce json
// @Param id path string true "Room ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /rooms/{id} [get]
func (h *RoomHandler) Get(c *gin.Context) {
	room, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, room, nil)
}

// Create godoc
// @Summary Register a room
// @Tags Rooms
// @Accept json
// @Produce json
// @Param payload body dto.RoomRequest true "Room payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /rooms [post]
func (h *RoomHandler) Create(c *gin.Context) {
	var req dto.RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid room payload"))
		return
	}
	room, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, room)
}

// Update godoc
// @Summary Update a room
// @Tags Rooms
// @Accept json
// @Produce json
// @Param id path string true "Room ID"
// @Param payload body dto.RoomRequest true "Room payload"
// @Success 200 {object} response.Envelope
// @Router /rooms/{id} [put]
func (h *RoomHandler) Update(c *gin.Context) {
	var req dto.RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid room payload"))
		return
	}
	room, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, room, nil)
}

// Delete godoc
// @Summary Retire a room
// @Tags Rooms
// @Param id path string true "Room ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /rooms/{id} [delete]
func (h *RoomHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Managers godoc
// @Summary List a room's approvers
// @Tags Rooms
// @Produce json
// @Param id path string true "Room ID"
// @Success 200 {object} response.Envelope
// @Router /rooms/{id}/managers [get]
func (h *RoomHandler) Managers(c *gin.Context) {
	managers, err := h.service.Managers(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, managers, nil)
}

// Candidates godoc
// @Summary List candidate approvers in a region
// @Tags Rooms
// @Produce json
// @Param region query string false "Region"
// @Success 200 {object} response.Envelope
// @Router /rooms/managers [get]
func (h *RoomHandler) Candidates(c *gin.Context) {
	managers, err := h.service.ManagersByRegion(c.Request.Context(), strings.TrimSpace(c.Query("region")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, managers, nil)
}
