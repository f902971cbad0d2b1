package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-access-api/internal/models"
	"github.com/noah-isme/room-access-api/pkg/middleware/requestid"
)

// AuditContext stamps caller details on the request context so audit
// entries written by services record where a change came from.
func AuditContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := models.ClientMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
			RequestID: requestid.Value(c),
		}
		c.Request = c.Request.WithContext(models.WithClientMeta(c.Request.Context(), meta))
		c.Next()
	}
}
