package storage

import (
	"context"
	"errors"

	"github.com/jwebster45206/party-engine/pkg/state"
)

var (
	// ErrNotFound is returned by mutations that target a missing record.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique username or room code is taken.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrLockTimeout is returned when a room stays locked past the caller's patience.
	ErrLockTimeout = errors.New("room lock not acquired")
)

// HealthChecker defines basic health check capabilities
type HealthChecker interface {
	// Ping tests the service connection
	Ping(ctx context.Context) error
}

// Closer defines cleanup capabilities
type Closer interface {
	// Close closes the service connection
	Close() error
}

// Storage persists users and rooms. Getters return (nil, nil) when the
// record does not exist.
type Storage interface {
	HealthChecker
	Closer

	// CreateUser inserts a user. ErrDuplicate if the username is taken,
	// compared case-insensitively.
	CreateUser(ctx context.Context, u *state.User) error
	GetUser(ctx context.Context, id string) (*state.User, error)
	GetUserByName(ctx context.Context, username string) (*state.User, error)
	// SetUserRoom points a user at a room. An empty roomID clears it.
	SetUserRoom(ctx context.Context, userID, roomID string) error

	// CreateRoom inserts a room. ErrDuplicate if the code is taken.
	CreateRoom(ctx context.Context, r *state.Room) error
	// GetRoom returns the room including its pending actions.
	GetRoom(ctx context.Context, id string) (*state.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*state.Room, error)
	// ListRoomsByCreator returns rooms created by userID, oldest first.
	ListRoomsByCreator(ctx context.Context, userID string) ([]*state.Room, error)
	// SaveRoom writes counters, inventory and history and removes the
	// first consumed pending actions, all in one transaction. Actions
	// appended after the room was read are kept. ErrNotFound if the room
	// was deleted.
	SaveRoom(ctx context.Context, r *state.Room, consumed int) error
	// DeleteRoom removes the room and clears every user reference to it.
	DeleteRoom(ctx context.Context, id string) error

	// AppendPendingAction adds an entry to the end of the room's queue and
	// returns the new queue length. ErrNotFound if the room is gone.
	AppendPendingAction(ctx context.Context, roomID, entry string) (int, error)

	// LockRoom blocks until the caller holds the room's exclusive lock or
	// ctx ends. The returned func releases it.
	LockRoom(ctx context.Context, roomID string) (func(), error)
}
