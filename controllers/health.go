package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"Copilot/pkg/repository"
)

// UpstreamChecker is satisfied by services.CompletionService.
type UpstreamChecker interface {
	HealthCheck(ctx context.Context) error
}

func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// Ready pings the database; with ?upstream=1 it also sends a tiny
// completion to the model API.
func Ready(store repository.Store, upstream UpstreamChecker, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		checks := gin.H{}
		healthy := true

		if err := store.Ping(ctx); err != nil {
			logger.Error("readiness: database ping failed", "err", err)
			checks["database"] = "unavailable"
			healthy = false
		} else {
			checks["database"] = "ok"
		}

		if c.Query("upstream") == "1" && upstream != nil {
			if err := upstream.HealthCheck(ctx); err != nil {
				logger.Warn("readiness: upstream check failed", "err", err)
				checks["upstream"] = "unavailable"
				healthy = false
			} else {
				checks["upstream"] = "ok"
			}
		}

		status, code := "ready", http.StatusOK
		if !healthy {
			status, code = "unavailable", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "checks": checks})
	}
}
