package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jwebster45206/party-engine/pkg/state"
)

// MockStorage is an in-memory implementation of Storage for testing
type MockStorage struct {
	mu        sync.RWMutex
	users     map[string]*state.User
	usernames map[string]string
	rooms     map[string]*state.Room
	codes     map[string]string
	pingError error
	locks     *roomLocks
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		users:     make(map[string]*state.User),
		usernames: make(map[string]string),
		rooms:     make(map[string]*state.Room),
		codes:     make(map[string]string),
		locks:     newRoomLocks(),
	}
}

// SetPingSuccess configures the mock to succeed on ping
func (m *MockStorage) SetPingSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = nil
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) CreateUser(ctx context.Context, u *state.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := strings.ToLower(u.Username)
	if _, taken := m.usernames[name]; taken {
		return ErrDuplicate
	}
	c := *u
	m.users[u.ID] = &c
	m.usernames[name] = u.ID
	return nil
}

func (m *MockStorage) GetUser(ctx context.Context, id string) (*state.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (m *MockStorage) GetUserByName(ctx context.Context, username string) (*state.User, error) {
	m.mu.RLock()
	id, ok := m.usernames[strings.ToLower(username)]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return m.GetUser(ctx, id)
}

func (m *MockStorage) SetUserRoom(ctx context.Context, userID, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.RoomID = roomID
	return nil
}

func (m *MockStorage) CreateRoom(ctx context.Context, r *state.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.codes[r.Code]; taken {
		return ErrDuplicate
	}
	c := r.Clone()
	c.Normalize()
	m.rooms[r.ID] = c
	m.codes[r.Code] = r.ID
	return nil
}

func (m *MockStorage) GetRoom(ctx context.Context, id string) (*state.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[id]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

func (m *MockStorage) GetRoomByCode(ctx context.Context, code string) (*state.Room, error) {
	m.mu.RLock()
	id, ok := m.codes[code]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return m.GetRoom(ctx, id)
}

func (m *MockStorage) ListRoomsByCreator(ctx context.Context, userID string) ([]*state.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rooms []*state.Room
	for _, r := range m.rooms {
		if r.CreatorID == userID {
			rooms = append(rooms, r.Clone())
		}
	}
	slices.SortFunc(rooms, func(a, b *state.Room) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return rooms, nil
}

func (m *MockStorage) SaveRoom(ctx context.Context, r *state.Room, consumed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.rooms[r.ID]
	if !ok {
		return ErrNotFound
	}
	pending := stored.PendingActions
	switch {
	case consumed >= len(pending):
		pending = []string{}
	case consumed > 0:
		pending = slices.Clone(pending[consumed:])
	}

	c := r.Clone()
	c.PendingActions = pending
	c.UpdatedAt = time.Now().UTC()
	c.Normalize()
	m.rooms[r.ID] = c
	return nil
}

func (m *MockStorage) DeleteRoom(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.rooms, id)
	delete(m.codes, r.Code)
	for _, u := range m.users {
		if u.RoomID == id {
			u.RoomID = ""
		}
	}
	m.locks.forget(id)
	return nil
}

func (m *MockStorage) AppendPendingAction(ctx context.Context, roomID, entry string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return 0, ErrNotFound
	}
	r.PendingActions = append(r.PendingActions, entry)
	return len(r.PendingActions), nil
}

func (m *MockStorage) LockRoom(ctx context.Context, roomID string) (func(), error) {
	return m.locks.lock(ctx, roomID)
}
