package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/party-engine/internal/game"
	"github.com/jwebster45206/party-engine/internal/middleware"
	"github.com/jwebster45206/party-engine/pkg/state"
)

const (
	LobbyActionCreate = "create"
	LobbyActionJoin   = "join"
	LobbyActionRejoin = "rejoin"
)

type LobbyRequest struct {
	Action string `json:"action"`
	Code   string `json:"code,omitempty"`
	RoomID string `json:"room_id,omitempty"`
}

type DeleteRoomRequest struct {
	RoomID string `json:"room_id,omitempty"`
}

// LobbyHandler serves room creation, joining and housekeeping.
type LobbyHandler struct {
	engine *game.Engine
	logger *slog.Logger
}

func NewLobbyHandler(engine *game.Engine, logger *slog.Logger) *LobbyHandler {
	return &LobbyHandler{engine: engine, logger: logger}
}

// Lobby creates, joins or rejoins a room and answers with its summary.
func (h *LobbyHandler) Lobby(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)
	u, ok := sessionUser(w, r, log)
	if !ok {
		return
	}
	var req LobbyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, log, err)
		return
	}

	var (
		room *state.Room
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case LobbyActionCreate:
		room, err = h.engine.CreateRoom(r.Context(), u.ID)
	case LobbyActionJoin:
		room, err = h.engine.JoinRoom(r.Context(), u.ID, req.Code)
	case LobbyActionRejoin:
		room, err = h.engine.RejoinRoom(r.Context(), u.ID, req.RoomID)
	default:
		err = fmt.Errorf("%w: action must be create, join or rejoin", game.ErrInvalidInput)
	}
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, room.Summary())
}

// Rooms lists the rooms the caller created.
func (h *LobbyHandler) Rooms(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)
	u, ok := sessionUser(w, r, log)
	if !ok {
		return
	}
	rooms, err := h.engine.ListRooms(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, rooms)
}

func (h *LobbyHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)
	u, ok := sessionUser(w, r, log)
	if !ok {
		return
	}
	var req DeleteRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, log, err)
		return
	}
	if err := h.engine.DeleteRoom(r.Context(), u.ID, strings.TrimSpace(req.RoomID)); err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, StatusResponse{Status: "deleted"})
}

func (h *LobbyHandler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)
	u, ok := sessionUser(w, r, log)
	if !ok {
		return
	}
	if err := h.engine.LeaveRoom(r.Context(), u.ID); err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, StatusResponse{Status: "left"})
}
