package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"Copilot/middleware"
	"Copilot/pkg/assembler"
	"Copilot/pkg/cache"
	"Copilot/pkg/chat"
	"Copilot/pkg/config"
	"Copilot/pkg/extract"
	"Copilot/pkg/logging"
	"Copilot/pkg/metrics"
	"Copilot/pkg/repository"
	"Copilot/pkg/services"
	"Copilot/pkg/telemetry"
	tokenstore "Copilot/pkg/token"
	"Copilot/routes"
)

const janitorInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting", "config", cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(cfg.Telemetry, cfg.AppEnv)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown", "err", err)
		}
	}()

	db, err := repository.Open(cfg.Database, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if err := repository.Migrate(db); err != nil {
		return err
	}
	store := repository.NewGormStore(db)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	completion, err := services.NewCompletionService(cfg.Mistral, logger, m)
	if err != nil {
		return err
	}
	defer completion.Close()

	textCache := cache.New[string](cfg.Cache.MaxItems, cfg.Cache.TTL)
	extractor := extract.New(logger.With("component", "extract"),
		extract.WithCache(textCache),
		extract.WithMetrics(m),
	)
	chatSvc := chat.NewService(store, extractor, assembler.New(cfg.Chat.HistoryLimit), completion, m, logger)

	tokens := tokenstore.New()
	limiter := middleware.NewLimiter(cfg.RateLimit, cfg.Chat.UserConcurrency)
	go janitor(ctx, textCache, tokens, limiter, logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.MaxMultipartMemory = cfg.Server.MaxUploadMemory
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	r.Use(middleware.RequestLogger(logger, m))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, routes.Deps{
		Store:    store,
		Chat:     chatSvc,
		Upstream: completion,
		Auth:     middleware.NewAuthenticator(cfg.Auth.Secret, tokens),
		Limiter:  limiter,
		Tokens:   tokens,
		Gatherer: reg,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

// janitor drops expired cache entries, token revocations and idle rate
// limit buckets until ctx ends.
func janitor(ctx context.Context, c *cache.Cache[string], tokens *tokenstore.Store, l *middleware.Limiter, logger *slog.Logger) {
	t := time.NewTicker(janitorInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			logger.Debug("janitor",
				"cache_pruned", c.Prune(),
				"tokens_pruned", tokens.Prune(),
				"limiters_pruned", l.Prune(time.Hour),
			)
		}
	}
}
