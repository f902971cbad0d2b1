package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-access-api/internal/models"
	appErrors "github.com/noah-isme/room-access-api/pkg/errors"
	"github.com/noah-isme/room-access-api/pkg/response"
)

// RequireRoles admits the listed roles. ADMIN is always admitted.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles)+1)
	allowed[models.RoleAdmin] = struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := CurrentUser(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" may not access this resource"))
			c.Abort()
			return
		}
		c.Next()
	}
}
