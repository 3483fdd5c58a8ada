package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/acadia-labs/registrar-api/internal/middleware"
	"github.com/acadia-labs/registrar-api/internal/models"
	"github.com/acadia-labs/registrar-api/internal/service"
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

func auditFromContext(c *gin.Context) service.AuditContext {
	audit := service.AuditContext{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if claims := claimsFromContext(c); claims != nil {
		audit.UserID = claims.UserID
	}
	return audit
}
