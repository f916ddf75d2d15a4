package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jwebster45206/party-engine/internal/auth"
	"github.com/jwebster45206/party-engine/internal/middleware"
	"github.com/jwebster45206/party-engine/pkg/state"
)

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionResponse is returned by register and login. The token is also
// set as the session cookie; clients without a cookie jar send it as a
// Bearer token.
type SessionResponse struct {
	User  state.Profile `json:"user"`
	Token string        `json:"token"`
}

// AuthHandler serves registration, login, logout and the current user.
type AuthHandler struct {
	auth          *auth.Service
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthHandler(svc *auth.Service, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, secureCookies: secureCookies, logger: logger}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, log, err)
		return
	}

	u, token, err := h.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	h.setSession(w, token)
	writeJSON(w, log, http.StatusCreated, SessionResponse{User: u.Profile(), Token: token})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, log, err)
		return
	}

	u, token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	h.setSession(w, token)
	writeJSON(w, log, http.StatusOK, SessionResponse{User: u.Profile(), Token: token})
}

// Logout clears the cookie. Tokens are stateless and stay valid until
// they expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, log, http.StatusOK, StatusResponse{Status: "logged out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)
	u, ok := sessionUser(w, r, log)
	if !ok {
		return
	}
	writeJSON(w, log, http.StatusOK, u.Profile())
}

func (h *AuthHandler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.auth.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
