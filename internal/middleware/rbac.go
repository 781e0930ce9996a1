package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-council-planner/internal/models"
	appErrors "github.com/noah-isme/sma-council-planner/pkg/errors"
	"github.com/noah-isme/sma-council-planner/pkg/response"
)

// RequireRoles lets a request through only when the token role is listed.
func RequireRoles(roles ...models.ServiceRole) gin.HandlerFunc {
	allowed := make(map[models.ServiceRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
		c.Next()
	}
}
