package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/party-engine/internal/auth"
	"github.com/jwebster45206/party-engine/internal/config"
	"github.com/jwebster45206/party-engine/internal/game"
	"github.com/jwebster45206/party-engine/internal/handlers"
	"github.com/jwebster45206/party-engine/internal/logger"
	"github.com/jwebster45206/party-engine/internal/narrator"
	"github.com/jwebster45206/party-engine/internal/services"
	"github.com/jwebster45206/party-engine/internal/storage"
	"github.com/jwebster45206/party-engine/pkg/lore"
	"github.com/jwebster45206/party-engine/pkg/state"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Party Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"llm_provider", cfg.LLMProvider,
		"storage_driver", cfg.StorageDriver)

	backend, policy, err := newBackend(cfg, log)
	if err != nil {
		log.Error("Failed to initialize LLM backend", "error", err)
		os.Exit(1)
	}
	if closer, ok := backend.(storage.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	store, err := newStorage(cfg, log)
	if err != nil {
		log.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()
	if err := store.Ping(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	log.Info("Storage connection established successfully")

	// Select the model once; it never changes while the server runs.
	modelCtx, modelCancel := context.WithTimeout(context.Background(), time.Minute)
	model := narrator.SelectModel(modelCtx, backend, policy, log)
	modelCancel()

	genOpts := narrator.DefaultOptions()
	genOpts.Timeout = cfg.LLMTimeout
	genOpts.HistoryLimit = cfg.HistoryLimit
	genOpts.Completion = services.CompletionOptions{
		Temperature:   cfg.Temperature,
		ContextWindow: cfg.ContextWindow,
		RepeatPenalty: cfg.RepeatPenalty,
	}
	generator := narrator.NewGenerator(backend, model, lore.Load(cfg.LorePath, log), genOpts, log)

	engine := game.NewEngine(store, generator, game.Options{
		Defaults: state.Defaults{
			HP:        cfg.StartingHP,
			Floor:     cfg.StartingFloor,
			Inventory: cfg.StartingInventory,
		},
		TrustClientStats: cfg.TrustClientStats,
		LockWait:         cfg.LLMTimeout + 15*time.Second,
	}, log)

	secret, err := sessionSecret(cfg, log)
	if err != nil {
		log.Error("Failed to prepare session secret", "error", err)
		os.Exit(1)
	}
	authService, err := auth.NewService(store, auth.Config{Secret: secret, TTL: cfg.SessionTTL}, log)
	if err != nil {
		log.Error("Failed to initialize auth", "error", err)
		os.Exit(1)
	}

	handler := handlers.NewRouter(handlers.RouterConfig{
		Auth:          authService,
		Engine:        engine,
		Storage:       store,
		Backend:       backend.Name(),
		Model:         model,
		SecureCookies: cfg.SecureCookies,
		Logger:        log,
	})
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Resolve and start wait on the model; leave room for a full LLM timeout.
		WriteTimeout: cfg.LLMTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr, "model", model)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	// Close storage after in-flight turns have committed.
	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	log.Info("Server exited")
}

func newBackend(cfg *config.Config, log *slog.Logger) (services.TextBackend, narrator.ModelPolicy, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		backend, err := services.NewGeminiBackend(ctx, cfg.GeminiAPIKey, log)
		if err != nil {
			return nil, narrator.ModelPolicy{}, err
		}
		log.Info("Using Gemini LLM provider")
		return backend, narrator.GeminiPolicy().WithOverrides(cfg.ModelPreferences, cfg.ModelHint, cfg.DefaultModel), nil
	case config.ProviderOllama:
		log.Info("Using Ollama LLM provider", "url", cfg.OllamaURL)
		return services.NewOllamaBackend(cfg.OllamaURL, log),
			narrator.OllamaPolicy().WithOverrides(cfg.ModelPreferences, cfg.ModelHint, cfg.DefaultModel), nil
	default:
		return nil, narrator.ModelPolicy{}, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
}

func newStorage(cfg *config.Config, log *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageDriver {
	case config.DriverRedis:
		store, err := storage.NewRedisStorage(cfg.RedisURL, cfg.RoomLockTTL, log)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := store.WaitForConnection(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	case config.DriverSQLite:
		log.Info("Using SQLite storage", "path", cfg.SQLitePath)
		return storage.NewSQLiteStorage(cfg.SQLitePath, log)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// sessionSecret returns the configured secret. Outside production a
// missing secret is replaced by a random one, which logs everyone out on
// restart.
func sessionSecret(cfg *config.Config, log *slog.Logger) ([]byte, error) {
	if cfg.SessionSecret != "" {
		return []byte(cfg.SessionSecret), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	log.Warn("SESSION_SECRET not set, using a random secret for this process")
	return secret, nil
}
