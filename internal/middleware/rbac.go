package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/pbcdev/attend-sync/internal/models"
	"github.com/pbcdev/attend-sync/internal/service"
	appErrors "github.com/pbcdev/attend-sync/pkg/errors"
	"github.com/pbcdev/attend-sync/pkg/response"
)

// RequireRoles blocks requests whose token does not carry one of the allowed
// reviewer roles. It must run after JWT.
func RequireRoles(roles ...models.ReviewerRole) gin.HandlerFunc {
	allowed := make(map[models.ReviewerRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*service.Claims)
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
