package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classroom-api/internal/middleware"
	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/policy"
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

// actorFromContext reduces the JWT claims to the identity the policy engine
// decides on.
func actorFromContext(c *gin.Context) (policy.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		return policy.Actor{}, false
	}
	return policy.Actor{ID: claims.UserID, Role: claims.Role}, true
}
