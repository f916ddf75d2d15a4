package game

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jwebster45206/party-engine/internal/logger"
	"github.com/jwebster45206/party-engine/internal/storage"
	"github.com/jwebster45206/party-engine/pkg/chat"
	"github.com/jwebster45206/party-engine/pkg/state"
)

var (
	ErrForbidden        = errors.New("only the room creator can do that")
	ErrRoomNotFound     = errors.New("room not found")
	ErrNoRoom           = errors.New("not in a room")
	ErrNoPendingActions = errors.New("no pending actions")
	ErrInvalidInput     = errors.New("invalid input")
	ErrRoomBusy         = errors.New("room is busy, try again")
	ErrUnknownUser      = errors.New("unknown user")
)

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength      = 6
	maxCodeAttempts = 10
)

// Narrator produces narration for a turn. *narrator.Generator satisfies it.
type Narrator interface {
	Generate(ctx context.Context, systemContext string, history []chat.ChatMessage, action string) string
}

// Options configure an Engine.
type Options struct {
	Defaults state.Defaults
	// TrustClientStats applies stats reported with a resolve. When false
	// they are ignored.
	TrustClientStats bool
	// LockWait bounds how long resolve, start and reset wait for a room
	// that is already mid-turn.
	LockWait time.Duration
}

func DefaultOptions() Options {
	return Options{
		Defaults:         state.DefaultRoomDefaults(),
		TrustClientStats: true,
		LockWait:         90 * time.Second,
	}
}

// Engine runs the lobby and the turn protocol. It holds no room state;
// everything lives in the store.
type Engine struct {
	store    storage.Storage
	narrator Narrator
	opts     Options
	logger   *slog.Logger
	newCode  func() (string, error)
}

func NewEngine(store storage.Storage, narrator Narrator, opts Options, logger *slog.Logger) *Engine {
	if opts.LockWait <= 0 {
		opts.LockWait = DefaultOptions().LockWait
	}
	return &Engine{
		store:    store,
		narrator: narrator,
		opts:     opts,
		logger:   logger,
		newCode:  randomCode,
	}
}

// Ping reports storage health.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

func (e *Engine) user(ctx context.Context, userID string) (*state.User, error) {
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if u == nil {
		return nil, ErrUnknownUser
	}
	return u, nil
}

// CurrentRoom resolves the user's room reference. A reference to a room
// that no longer exists is cleared and reported as ErrNoRoom.
func (e *Engine) CurrentRoom(ctx context.Context, userID string) (*state.User, *state.Room, error) {
	u, err := e.user(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if u.RoomID == "" {
		return u, nil, ErrNoRoom
	}
	room, err := e.store.GetRoom(ctx, u.RoomID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load room: %w", err)
	}
	if room == nil {
		e.clearStaleReference(ctx, u)
		return u, nil, ErrNoRoom
	}
	return u, room, nil
}

func (e *Engine) clearStaleReference(ctx context.Context, u *state.User) {
	log := logger.WithRoom(e.logger, u.RoomID, u.ID)
	if err := e.store.SetUserRoom(ctx, u.ID, ""); err != nil {
		logger.WithError(log, err).Warn("Failed to clear stale room reference")
		return
	}
	log.Info("Cleared stale room reference")
	u.RoomID = ""
}

// lockRoom takes the room's exclusive lock, waiting at most LockWait.
func (e *Engine) lockRoom(ctx context.Context, roomID string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.LockWait)
	defer cancel()

	unlock, err := e.store.LockRoom(ctx, roomID)
	if errors.Is(err, storage.ErrLockTimeout) {
		return nil, ErrRoomBusy
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock room: %w", err)
	}
	return unlock, nil
}

// creatorRoom loads the caller's room and refuses anyone but its creator.
func (e *Engine) creatorRoom(ctx context.Context, userID string) (*state.User, *state.Room, error) {
	u, room, err := e.CurrentRoom(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if !room.IsCreator(u.ID) {
		return nil, nil, ErrForbidden
	}
	return u, room, nil
}

// reload reads the room again after the lock is held.
func (e *Engine) reload(ctx context.Context, roomID string) (*state.Room, error) {
	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload room: %w", err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// save commits a room, translating a concurrent delete.
func (e *Engine) save(ctx context.Context, room *state.Room, consumed int) error {
	err := e.store.SaveRoom(ctx, room, consumed)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrRoomNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to save room: %w", err)
	}
	return nil
}

func randomCode() (string, error) {
	return randomCodeFrom(rand.Reader)
}

// randomCodeFrom draws each character uniformly from codeAlphabet. Bytes
// at or above the largest multiple of the alphabet size are redrawn.
func randomCodeFrom(src io.Reader) (string, error) {
	limit := 256 - 256%len(codeAlphabet)
	code := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength)
	for len(code) < codeLength {
		if _, err := io.ReadFull(src, buf[:codeLength-len(code)]); err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}
		for _, c := range buf[:codeLength-len(code)] {
			if int(c) < limit {
				code = append(code, codeAlphabet[int(c)%len(codeAlphabet)])
			}
		}
	}
	return string(code), nil
}
