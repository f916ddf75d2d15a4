package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jwebster45206/party-engine/internal/auth"
	"github.com/jwebster45206/party-engine/internal/game"
	"github.com/jwebster45206/party-engine/internal/middleware"
	"github.com/jwebster45206/party-engine/internal/storage"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Auth          *auth.Service
	Engine        *game.Engine
	Storage       storage.HealthChecker
	Backend       string
	Model         string
	SecureCookies bool
	Logger        *slog.Logger
}

// NewRouter registers every route and wraps the mux in request ID and
// access logging.
func NewRouter(cfg RouterConfig) http.Handler {
	authHandler := NewAuthHandler(cfg.Auth, cfg.SecureCookies, cfg.Logger)
	lobbyHandler := NewLobbyHandler(cfg.Engine, cfg.Logger)
	gameHandler := NewGameHandler(cfg.Engine, cfg.Logger)
	session := middleware.RequireSession(cfg.Auth, cfg.Logger)

	mux := http.NewServeMux()
	mux.Handle("GET /health", NewHealthHandler(cfg.Storage, cfg.Backend, cfg.Model, cfg.Logger))

	mux.HandleFunc("POST /register", authHandler.Register)
	mux.HandleFunc("POST /login", authHandler.Login)
	mux.Handle("POST /logout", session(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /me", session(http.HandlerFunc(authHandler.Me)))

	mux.Handle("POST /lobby", session(http.HandlerFunc(lobbyHandler.Lobby)))
	mux.Handle("GET /rooms", session(http.HandlerFunc(lobbyHandler.Rooms)))
	mux.Handle("POST /delete_room", session(http.HandlerFunc(lobbyHandler.DeleteRoom)))
	mux.Handle("POST /leave_room", session(http.HandlerFunc(lobbyHandler.LeaveRoom)))

	mux.Handle("POST /queue_action", session(http.HandlerFunc(gameHandler.QueueAction)))
	mux.Handle("POST /resolve_turn", session(http.HandlerFunc(gameHandler.ResolveTurn)))
	mux.Handle("POST /start_campaign", session(http.HandlerFunc(gameHandler.StartCampaign)))
	mux.Handle("GET /poll", session(http.HandlerFunc(gameHandler.Poll)))
	mux.Handle("POST /reset", session(http.HandlerFunc(gameHandler.Reset)))

	return middleware.Chain(mux,
		middleware.RequestID(cfg.Logger),
		middleware.Logger(cfg.Logger),
	)
}
