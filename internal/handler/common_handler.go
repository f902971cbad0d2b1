package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-access-api/pkg/response"
)

type locationDirectory interface {
	Regions(ctx context.Context) ([]string, error)
	Centers(ctx context.Context, region string) ([]string, error)
}

// CommonHandler serves region and center lookups.
type CommonHandler struct {
	directory locationDirectory
}

// NewCommonHandler builds a lookup handler.
func NewCommonHandler(directory locationDirectory) *CommonHandler {
	return &CommonHandler{directory: directory}
}

// Regions godoc
// @Summary List regions with registered rooms
// @Tags Common
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /common/regions [get]
func (h *CommonHandler) Regions(c *gin.Context) {
	regions, err := h.directory.Regions(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, regions, nil)
}

// Centers godoc
// @Summary List centers, optionally within one region
// @Tags Common
// @Produce json
// @Param region query string false "Region"
// @Success 200 {object} response.Envelope
// @Router /common/centers [get]
func (h *CommonHandler) Centers(c *gin.Context) {
	centers, err := h.directory.Centers(c.Request.Context(), strings.TrimSpace(c.Query("region")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, centers, nil)
}
