package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("MISTRAL_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "mistral-small-latest", cfg.Mistral.Model)
	assert.Equal(t, "https://api.mistral.ai/v1", cfg.Mistral.BaseURL)
	assert.Equal(t, 120*time.Second, cfg.Mistral.Timeout)
	assert.InDelta(t, 0.5, cfg.Mistral.Temperature, 1e-6)
	assert.Equal(t, 5000, cfg.Mistral.MaxTokens)
	assert.Equal(t, 3, cfg.Chat.HistoryLimit)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Len(t, cfg.Server.CORSOrigins, 2)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("MISTRAL_API_KEY", "test-key")
	t.Setenv("MISTRAL_TIMEOUT", "5s")
	t.Setenv("CHAT_HISTORY_LIMIT", "5")
	t.Setenv("SERVER_CORS_ORIGINS", "https://a.example,https://b.example,https://c.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Mistral.Timeout)
	assert.Equal(t, 5, cfg.Chat.HistoryLimit)
	assert.Equal(t, []string{"https://a.example", "https://b.example", "https://c.example"}, cfg.Server.CORSOrigins)
}

func TestLoadRejectsMissingAPIKey(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("MISTRAL_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MISTRAL_API_KEY")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			AppEnv:   "staging",
			Mistral:  MistralConfig{APIKey: "k", Temperature: 0.5},
			Chat:     ChatConfig{HistoryLimit: 3, UserConcurrency: 2},
			Database: DatabaseConfig{Driver: "sqlite"},
		}
	}

	t.Run("production requires jwt secret", func(t *testing.T) {
		cfg := base()
		cfg.AppEnv = "production"
		assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")
		cfg.Auth.Secret = "s3cret"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("history limit must be positive", func(t *testing.T) {
		cfg := base()
		cfg.Chat.HistoryLimit = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("temperature range", func(t *testing.T) {
		cfg := base()
		cfg.Mistral.Temperature = 0
		assert.ErrorContains(t, cfg.Validate(), "MISTRAL_TEMPERATURE")
		cfg.Mistral.Temperature = 2
		assert.ErrorContains(t, cfg.Validate(), "MISTRAL_TEMPERATURE")
		cfg.Mistral.Temperature = 1.5
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := base()
		cfg.Database.Driver = "oracle"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown app env", func(t *testing.T) {
		cfg := base()
		cfg.AppEnv = "qa"
		assert.Error(t, cfg.Validate())
	})
}
