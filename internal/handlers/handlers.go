package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/party-engine/internal/auth"
	"github.com/jwebster45206/party-engine/internal/game"
	"github.com/jwebster45206/party-engine/internal/middleware"
	"github.com/jwebster45206/party-engine/pkg/state"
)

// maxBodyBytes caps request bodies. Actions and system contexts are short.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse acknowledges commands that return nothing else.
type StatusResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, status int, msg string) {
	writeJSON(w, log, status, ErrorResponse{Error: msg})
}

// writeServiceError maps domain errors to status codes. Unknown errors are
// logged in full and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, game.ErrUnknownUser):
		status = http.StatusUnauthorized
	case errors.Is(err, game.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, game.ErrRoomNotFound),
		errors.Is(err, game.ErrNoRoom):
		status = http.StatusNotFound
	case errors.Is(err, game.ErrRoomBusy):
		status = http.StatusConflict
	case errors.Is(err, game.ErrNoPendingActions),
		errors.Is(err, game.ErrInvalidInput),
		errors.Is(err, auth.ErrUsernameTaken),
		errors.Is(err, auth.ErrInvalidInput):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		log.Error("Request failed", "error", err)
		writeError(w, log, status, "Internal server error")
		return
	}
	log.Debug("Request rejected", "status", status, "error", err)
	writeError(w, log, status, err.Error())
}

// decodeJSON reads an optional JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: malformed JSON body", game.ErrInvalidInput)
	}
	return nil
}

// sessionUser returns the user placed in the context by RequireSession.
func sessionUser(w http.ResponseWriter, r *http.Request, log *slog.Logger) (*state.User, bool) {
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, log, http.StatusUnauthorized, "Not logged in")
		return nil, false
	}
	return u, true
}
