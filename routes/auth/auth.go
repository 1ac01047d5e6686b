package auth

import (
	"github.com/gin-gonic/gin"

	"Copilot/controllers"
	tokenstore "Copilot/pkg/token"
)

// Register registers token routes (protected). Tokens are issued by the
// external auth service; only revocation lives here.
func Register(g *gin.RouterGroup, tokens *tokenstore.Store) {
	g.POST("/logout", controllers.Logout(tokens))
}
