package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"

	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	Environment  string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelName string `env:"LOG_LEVEL" envDefault:"info"`
	LogLevel     slog.Level

	// Text generation
	LLMProvider      string        `env:"LLM_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey     string        `env:"GEMINI_API_KEY"`
	OllamaURL        string        `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	ModelPreferences []string      `env:"MODEL_PREFERENCES" envSeparator:","`
	ModelHint        string        `env:"MODEL_HINT"`
	DefaultModel     string        `env:"DEFAULT_MODEL"`
	Temperature      float64       `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	ContextWindow    int           `env:"LLM_CONTEXT_WINDOW" envDefault:"2048"`
	RepeatPenalty    float64       `env:"LLM_REPEAT_PENALTY" envDefault:"1.1"`
	LLMTimeout       time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	HistoryLimit     int           `env:"HISTORY_LIMIT" envDefault:"3"`
	LorePath         string        `env:"LORE_PATH" envDefault:"./data/lore.yaml"`

	// Persistence
	StorageDriver string        `env:"STORAGE_DRIVER" envDefault:"redis"`
	RedisURL      string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	SQLitePath    string        `env:"SQLITE_PATH" envDefault:"./data/party.db"`
	RoomLockTTL   time.Duration `env:"ROOM_LOCK_TTL" envDefault:"2m"`

	// Sessions
	SessionSecret string        `env:"SESSION_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	SecureCookies bool          `env:"SECURE_COOKIES" envDefault:"false"`

	// Room rules
	TrustClientStats  bool     `env:"TRUST_CLIENT_STATS" envDefault:"true"`
	StartingHP        int      `env:"STARTING_HP" envDefault:"20"`
	StartingFloor     int      `env:"STARTING_FLOOR" envDefault:"1"`
	StartingInventory []string `env:"STARTING_INVENTORY" envDefault:"old map,torch" envSeparator:","`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	for i, item := range cfg.StartingInventory {
		cfg.StartingInventory[i] = strings.TrimSpace(item)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required when LLM_PROVIDER is gemini")
		}
	case ProviderOllama:
		if c.OllamaURL == "" {
			return errors.New("OLLAMA_URL is required when LLM_PROVIDER is ollama")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}

	switch c.StorageDriver {
	case DriverRedis, DriverSQLite:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}

	if c.IsProduction() && c.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required in production")
	}
	if c.HistoryLimit < 0 {
		return errors.New("HISTORY_LIMIT cannot be negative")
	}
	if c.LLMTimeout <= 0 {
		return errors.New("LLM_TIMEOUT must be positive")
	}
	if c.RoomLockTTL <= c.LLMTimeout {
		return errors.New("ROOM_LOCK_TTL must be longer than LLM_TIMEOUT")
	}
	if c.StartingHP <= 0 {
		return errors.New("STARTING_HP must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
