package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"Copilot/middleware"
	tokenstore "Copilot/pkg/token"
)

// Logout revokes the presented token until it expires.
func Logout(tokens *tokenstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		jti := c.GetString(middleware.ContextJTIKey)
		exp, _ := c.Get(middleware.ContextExpKey)
		expiresAt, _ := exp.(time.Time)
		if jti != "" {
			tokens.Revoke(jti, expiresAt)
		}
		c.JSON(http.StatusOK, gin.H{"msg": "logged out"})
	}
}
