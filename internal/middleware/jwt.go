package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-council-planner/internal/models"
	appErrors "github.com/noah-isme/sma-council-planner/pkg/errors"
	"github.com/noah-isme/sma-council-planner/pkg/response"
)

// ContextClaimsKey is the gin context key storing service token claims.
const ContextClaimsKey = "serviceClaims"

type tokenValidator interface {
	ValidateToken(token string) (*models.ServiceClaims, error)
}

// JWT protects routes by requiring a valid service token.
func JWT(tokens tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			return
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			return
		}

		c.Set(ContextClaimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the claims attached by JWT, if any.
func ClaimsFrom(c *gin.Context) (*models.ServiceClaims, bool) {
	value, exists := c.Get(ContextClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.ServiceClaims)
	return claims, ok
}
