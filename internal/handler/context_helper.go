package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-access-api/internal/middleware"
	"github.com/noah-isme/room-access-api/internal/models"
	appErrors "github.com/noah-isme/room-access-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

// parseTimeParam accepts RFC3339 timestamps or plain YYYY-MM-DD dates.
func parseTimeParam(key, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return &parsed, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid time parameter", map[string]string{key: "expected RFC3339 or YYYY-MM-DD"})
	}
	return &parsed, nil
}

// splitStatuses reads ?status=A,B or repeated ?status= parameters.
func splitStatuses(c *gin.Context) []models.AccessRequestStatus {
	var statuses []models.AccessRequestStatus
	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
				statuses = append(statuses, models.AccessRequestStatus(part))
			}
		}
	}
	return statuses
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
