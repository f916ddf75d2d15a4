package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jwebster45206/party-engine/internal/game"
	"github.com/jwebster45206/party-engine/internal/middleware"
	"github.com/jwebster45206/party-engine/pkg/state"
)

type QueueActionRequest struct {
	Message string `json:"message"`
}

type QueueActionResponse struct {
	Status  string `json:"status"`
	Pending int    `json:"pending"`
}

type ResolveTurnRequest struct {
	SystemContext string       `json:"system_context"`
	Stats         *state.Stats `json:"stats,omitempty"`
}

// NarrationResponse carries the game master's text for the turn.
type NarrationResponse struct {
	Content string `json:"content"`
}

// GameHandler serves the turn protocol for the caller's current room.
type GameHandler struct {
	engine *game.Engine
	logger *slog.Logger
}

func NewGameHandler(engine *game.Engine, logger *slog.Logger) *GameHandler {
	return &GameHandler{engine: engine, logger: logger}
}

func (h *GameHandler) QueueAction(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)
	u, ok := sessionUser(w, r, log)
	if !ok {
		return
	}
	var req QueueActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, log, err)
		return
	}

	n, err := h.engine.QueueAction(r.Context(), u.ID, req.Message)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, QueueActionResponse{Status: "queued", Pending: n})
}

// ResolveTurn answers 200 with narration even when the model failed; the
// text is then a fallback message.
func (h *GameHandler) ResolveTurn(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)
	u, ok := sessionUser(w, r, log)
	if !ok {
		return
	}
	var req ResolveTurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, log, err)
		return
	}

	text, err := h.engine.ResolveTurn(r.Context(), u.ID, req.SystemContext, req.Stats)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, NarrationResponse{Content: text})
}

func (h *GameHandler) StartCampaign(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)
	u, ok := sessionUser(w, r, log)
	if !ok {
		return
	}
	text, err := h.engine.StartCampaign(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, NarrationResponse{Content: text})
}

func (h *GameHandler) Poll(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)
	u, ok := sessionUser(w, r, log)
	if !ok {
		return
	}
	snap, err := h.engine.Poll(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, snap)
}

func (h *GameHandler) Reset(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)
	u, ok := sessionUser(w, r, log)
	if !ok {
		return
	}
	if err := h.engine.ResetGame(r.Context(), u.ID); err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, StatusResponse{Status: "reset"})
}
