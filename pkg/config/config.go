package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is built once at startup and handed to each component's
// constructor. Nothing in the service reads the environment after Load.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// LogFormat is "json" or "text".
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Server    ServerConfig    `envPrefix:"SERVER_"`
	Database  DatabaseConfig  `envPrefix:"DATABASE_"`
	Mistral   MistralConfig   `envPrefix:"MISTRAL_"`
	Auth      AuthConfig      `envPrefix:"JWT_"`
	Chat      ChatConfig      `envPrefix:"CHAT_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Cache     CacheConfig     `envPrefix:"EXTRACT_CACHE_"`
	Telemetry TelemetryConfig `envPrefix:"OTEL_"`
}

type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8000"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envDefault:"http://localhost:3000,http://127.0.0.1:3000" envSeparator:","`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	// MaxUploadMemory bounds the multipart form held in memory; the rest
	// spills to temp files.
	MaxUploadMemory int64 `env:"MAX_UPLOAD_MEMORY" envDefault:"33554432"`
}

type DatabaseConfig struct {
	// Driver is one of sqlite, mysql, postgres.
	Driver          string        `env:"DRIVER" envDefault:"sqlite"`
	URL             string        `env:"URL" envDefault:"app.db"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"30"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

type MistralConfig struct {
	APIKey       string        `env:"API_KEY"`
	Model        string        `env:"MODEL" envDefault:"mistral-small-latest"`
	BaseURL      string        `env:"BASE_URL" envDefault:"https://api.mistral.ai/v1"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"120s"`
	Temperature  float32       `env:"TEMPERATURE" envDefault:"0.5"`
	MaxTokens    int           `env:"MAX_TOKENS" envDefault:"5000"`
	MaxConns     int           `env:"MAX_CONNS" envDefault:"50"`
	MaxIdleConns int           `env:"MAX_IDLE_CONNS" envDefault:"20"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"30s"`
}

type AuthConfig struct {
	Secret string `env:"SECRET"`
}

type ChatConfig struct {
	// HistoryLimit is how many prior messages are sent upstream.
	HistoryLimit int `env:"HISTORY_LIMIT" envDefault:"3"`
	// UserConcurrency caps in-flight /chat requests per user.
	UserConcurrency int `env:"USER_CONCURRENCY" envDefault:"2"`
}

type RateLimitConfig struct {
	PerSecond float64 `env:"PER_SECOND" envDefault:"0.5"`
	Burst     int     `env:"BURST" envDefault:"5"`
}

type CacheConfig struct {
	TTL      time.Duration `env:"TTL" envDefault:"10m"`
	MaxItems int           `env:"MAX_ITEMS" envDefault:"200"`
}

type TelemetryConfig struct {
	TracesStdout bool   `env:"TRACES_STDOUT" envDefault:"false"`
	ServiceName  string `env:"SERVICE_NAME" envDefault:"copilot-llm-service"`
}

func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

// Load reads .env (outside production) and the process environment.
func Load() (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if !slices.Contains([]string{"development", "staging", "production"}, c.AppEnv) {
		return fmt.Errorf("APP_ENV must be one of development, staging, production (got %q)", c.AppEnv)
	}
	if strings.TrimSpace(c.Mistral.APIKey) == "" {
		return errors.New("MISTRAL_API_KEY is not configured")
	}
	// go-openai drops a zero temperature from the request body, which would
	// silently hand the choice to the provider default
	if c.Mistral.Temperature <= 0 || c.Mistral.Temperature > 1.5 {
		return fmt.Errorf("MISTRAL_TEMPERATURE must be in (0, 1.5] (got %g)", c.Mistral.Temperature)
	}
	if c.IsProduction() && c.Auth.Secret == "" {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.Chat.HistoryLimit < 1 {
		return fmt.Errorf("CHAT_HISTORY_LIMIT must be at least 1 (got %d)", c.Chat.HistoryLimit)
	}
	if c.Chat.UserConcurrency < 1 {
		c.Chat.UserConcurrency = 1
	}
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("DATABASE_DRIVER %q is not supported", c.Database.Driver)
	}
	return nil
}

// LogValue keeps secrets out of the startup log line.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("app_env", c.AppEnv),
		slog.String("port", c.Server.Port),
		slog.String("db_driver", c.Database.Driver),
		slog.String("model", c.Mistral.Model),
		slog.String("base_url", c.Mistral.BaseURL),
		slog.Duration("upstream_timeout", c.Mistral.Timeout),
		slog.Bool("api_key_present", c.Mistral.APIKey != ""),
		slog.Int("history_limit", c.Chat.HistoryLimit),
		slog.Float64("rate_per_second", c.RateLimit.PerSecond),
		slog.Int("rate_burst", c.RateLimit.Burst),
	)
}
