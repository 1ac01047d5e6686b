package routes

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"Copilot/controllers"
	"Copilot/middleware"
	"Copilot/pkg/chat"
	"Copilot/pkg/repository"
	tokenstore "Copilot/pkg/token"

	authRoutes "Copilot/routes/auth"
	chatRoutes "Copilot/routes/chat"
	convRoutes "Copilot/routes/conversation"
	healthRoutes "Copilot/routes/health"
	websocketRoutes "Copilot/routes/websocket"
)

// Deps is everything the HTTP surface needs, built once in main.
type Deps struct {
	Store    repository.Store
	Chat     *chat.Service
	Upstream controllers.UpstreamChecker
	Auth     *middleware.Authenticator
	Limiter  *middleware.Limiter
	Tokens   *tokenstore.Store
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "chat generation service running"})
	})

	healthRoutes.Register(r, d.Store, d.Upstream, d.Gatherer, d.Logger)
	websocketRoutes.Register(r, d.Auth, d.Limiter, d.Chat, d.Logger)

	protected := r.Group("/")
	protected.Use(d.Auth.Middleware())
	authRoutes.Register(protected, d.Tokens)
	chatRoutes.Register(protected, d.Limiter, d.Chat)
	convRoutes.Register(protected, d.Store)
}
