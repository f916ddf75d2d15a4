package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ollama")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, ProviderOllama, cfg.LLMProvider)
	assert.Equal(t, DriverRedis, cfg.StorageDriver)
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 3, cfg.HistoryLimit)
	assert.Equal(t, 20, cfg.StartingHP)
	assert.Equal(t, 1, cfg.StartingFloor)
	assert.Equal(t, []string{"old map", "torch"}, cfg.StartingInventory)
	assert.True(t, cfg.TrustClientStats)
	assert.InDelta(t, 0.7, cfg.Temperature, 0.0001)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MODEL_PREFERENCES", "models/a,models/b")
	t.Setenv("STARTING_INVENTORY", "rope, lantern ,rope")
	t.Setenv("TRUST_CLIENT_STATS", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.LLMProvider)
	assert.Equal(t, DriverSQLite, cfg.StorageDriver)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, []string{"models/a", "models/b"}, cfg.ModelPreferences)
	assert.Equal(t, []string{"rope", "lantern", "rope"}, cfg.StartingInventory)
	assert.False(t, cfg.TrustClientStats)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			LLMProvider:   ProviderOllama,
			OllamaURL:     "http://localhost:11434",
			StorageDriver: DriverRedis,
			LLMTimeout:    time.Minute,
			RoomLockTTL:   2 * time.Minute,
			StartingHP:    20,
			HistoryLimit:  3,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "gemini without key",
			mutate:  func(c *Config) { c.LLMProvider = ProviderGemini },
			wantErr: "GEMINI_API_KEY",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.LLMProvider = "venice" },
			wantErr: "unsupported LLM_PROVIDER",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.StorageDriver = "postgres" },
			wantErr: "unsupported STORAGE_DRIVER",
		},
		{
			name: "production without secret",
			mutate: func(c *Config) {
				c.Environment = "production"
			},
			wantErr: "SESSION_SECRET",
		},
		{
			name:    "lock shorter than generation",
			mutate:  func(c *Config) { c.RoomLockTTL = 30 * time.Second },
			wantErr: "ROOM_LOCK_TTL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
