package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/middleware"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// institutionFromContext returns the verified caller and its institution.
func institutionFromContext(c *gin.Context) (*models.JWTClaims, string, error) {
	claims := claimsFromContext(c)
	if claims == nil || claims.InstitutionID == "" {
		return nil, "", appErrors.ErrUnauthorized
	}
	return claims, claims.InstitutionID, nil
}
