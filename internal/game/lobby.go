package game

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jwebster45206/party-engine/internal/logger"
	"github.com/jwebster45206/party-engine/internal/storage"
	"github.com/jwebster45206/party-engine/pkg/state"
)

// CreateRoom opens a room with a fresh code and moves the user into it.
func (e *Engine) CreateRoom(ctx context.Context, userID string) (*state.Room, error) {
	u, err := e.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := e.newCode()
		if err != nil {
			return nil, err
		}
		room := state.NewRoom(code, u.ID, e.opts.Defaults)
		err = e.store.CreateRoom(ctx, room)
		if errors.Is(err, storage.ErrDuplicate) {
			e.logger.Warn("Room code collision, retrying", "code", code, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}

		if err := e.store.SetUserRoom(ctx, u.ID, room.ID); err != nil {
			return nil, fmt.Errorf("failed to enter room: %w", err)
		}
		logger.WithRoom(e.logger, room.ID, u.ID).Info("Room created", "code", room.Code)
		return room, nil
	}
	return nil, fmt.Errorf("failed to generate a unique room code after %d attempts", maxCodeAttempts)
}

// JoinRoom moves the user into the room with the given code.
func (e *Engine) JoinRoom(ctx context.Context, userID, code string) (*state.Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("%w: room code is required", ErrInvalidInput)
	}
	u, err := e.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	room, err := e.store.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up room: %w", err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if err := e.enter(ctx, u, room); err != nil {
		return nil, err
	}
	logger.WithRoom(e.logger, room.ID, u.ID).Info("Joined room", "code", room.Code)
	return room, nil
}

// RejoinRoom returns the user to a room they created.
func (e *Engine) RejoinRoom(ctx context.Context, userID, roomID string) (*state.Room, error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, fmt.Errorf("%w: room_id is required", ErrInvalidInput)
	}
	u, err := e.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if !room.IsCreator(u.ID) {
		return nil, ErrForbidden
	}
	if err := e.enter(ctx, u, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (e *Engine) enter(ctx context.Context, u *state.User, room *state.Room) error {
	if err := e.store.SetUserRoom(ctx, u.ID, room.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Room deleted between the lookup and the update.
			return ErrRoomNotFound
		}
		return fmt.Errorf("failed to enter room: %w", err)
	}
	u.RoomID = room.ID
	return nil
}

// ListRooms returns the rooms the user created, oldest first.
func (e *Engine) ListRooms(ctx context.Context, userID string) ([]state.RoomSummary, error) {
	u, err := e.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	rooms, err := e.store.ListRoomsByCreator(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	summaries := make([]state.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		summaries = append(summaries, r.Summary())
	}
	return summaries, nil
}

// DeleteRoom removes a room the user created. An empty roomID means the
// user's current room. Every member is returned to the lobby.
func (e *Engine) DeleteRoom(ctx context.Context, userID, roomID string) error {
	u, err := e.user(ctx, userID)
	if err != nil {
		return err
	}
	if roomID == "" {
		if u.RoomID == "" {
			return ErrNoRoom
		}
		roomID = u.RoomID
	}

	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to load room: %w", err)
	}
	if room == nil {
		if roomID == u.RoomID {
			e.clearStaleReference(ctx, u)
		}
		return ErrRoomNotFound
	}
	if !room.IsCreator(u.ID) {
		return ErrForbidden
	}

	if err := e.store.DeleteRoom(ctx, room.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("failed to delete room: %w", err)
	}
	logger.WithRoom(e.logger, room.ID, u.ID).Info("Room deleted", "code", room.Code)
	return nil
}

// LeaveRoom clears the user's room reference. The room itself stays.
func (e *Engine) LeaveRoom(ctx context.Context, userID string) error {
	err := e.store.SetUserRoom(ctx, userID, "")
	if errors.Is(err, storage.ErrNotFound) {
		return ErrUnknownUser
	}
	if err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}
	return nil
}
