package websocket

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"Copilot/controllers"
	"Copilot/middleware"
	"Copilot/pkg/chat"
)

// Register mounts the websocket endpoint. It authenticates through the
// token query parameter, so it sits outside the protected group.
func Register(r *gin.Engine, auth *middleware.Authenticator, limiter *middleware.Limiter, svc *chat.Service, logger *slog.Logger) {
	r.GET("/ws/chat", controllers.ChatWS(auth, limiter, svc, logger))
}
