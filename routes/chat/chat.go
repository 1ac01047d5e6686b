package chat

import (
	"github.com/gin-gonic/gin"

	"Copilot/controllers"
	"Copilot/middleware"
	"Copilot/pkg/chat"
)

// Register registers the chat route (protected)
func Register(g *gin.RouterGroup, limiter *middleware.Limiter, svc *chat.Service) {
	g.POST("/chat", limiter.RateLimit(), limiter.ConcurrencyGuard(), controllers.Chat(svc))
}
