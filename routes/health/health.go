package health

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"Copilot/controllers"
	"Copilot/pkg/repository"
)

func Register(r *gin.Engine, store repository.Store, upstream controllers.UpstreamChecker, g prometheus.Gatherer, logger *slog.Logger) {
	r.GET("/health", controllers.Health())
	r.GET("/ready", controllers.Ready(store, upstream, logger))
	if g != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	}
}
