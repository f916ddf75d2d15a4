package storage

import (
	"context"
	"fmt"
	"sync"
)

// roomLocks is an in-process keyed mutex for stores without a shared
// lock service.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]chan struct{})}
}

func (l *roomLocks) lock(ctx context.Context, roomID string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[roomID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[roomID] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
	}
}

// forget drops the entry for a deleted room. A holder keeps its channel.
func (l *roomLocks) forget(roomID string) {
	l.mu.Lock()
	delete(l.locks, roomID)
	l.mu.Unlock()
}
