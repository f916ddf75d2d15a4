package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jwebster45206/party-engine/pkg/state"
	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds optimistic transaction retries on WATCH conflicts.
const maxTxRetries = 5

var errLockHeld = errors.New("room lock held")

// appendPendingScript pushes only while the room document exists, so a
// queue cannot outlive a deleted room.
var appendPendingScript = redis.NewScript(`
	if redis.call("exists", KEYS[1]) == 0 then
		return -1
	end
	return redis.call("rpush", KEYS[2], ARGV[1])
`)

// createUserScript reserves the username and writes the user document in
// one step, so a name is never reserved without a user behind it.
var createUserScript = redis.NewScript(`
	if redis.call("setnx", KEYS[1], ARGV[1]) == 0 then
		return 0
	end
	redis.call("set", KEYS[2], ARGV[2])
	return 1
`)

// releaseLockScript deletes the lock only if we still own it.
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

func userKey(id string) string { return "user:" + id }
func usernameKey(name string) string { return "username:" + strings.ToLower(name) }
func roomKey(id string) string { return "room:" + id }
func roomCodeKey(code string) string { return "roomcode:" + code }
func pendingKey(roomID string) string { return "room:" + roomID + ":pending" }
func membersKey(roomID string) string { return "room:" + roomID + ":members" }
func creatorKey(userID string) string { return "creator:" + userID + ":rooms" }
func roomLockKey(roomID string) string { return "lock:room:" + roomID }

// RedisStorage implements the Storage interface using Redis. Users and
// rooms are JSON documents; pending actions are a list per room.
type RedisStorage struct {
	client  *redis.Client
	logger  *slog.Logger
	lockTTL time.Duration
}

// Ensure RedisStorage implements Storage interface
var _ Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance from a redis:// URL
func NewRedisStorage(redisURL string, lockTTL time.Duration, logger *slog.Logger) (*RedisStorage, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &RedisStorage{
		client:  redis.NewClient(opt),
		logger:  logger,
		lockTTL: lockTTL,
	}, nil
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", attempt)
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("redis did not become available after %d attempts: %w", attempt, err)
	}
	r.logger.Info("Redis connection established")
	return nil
}

// User operations

func (r *RedisStorage) CreateUser(ctx context.Context, u *state.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	created, err := createUserScript.Run(ctx, r.client,
		[]string{usernameKey(u.Username), userKey(u.ID)}, u.ID, data).Int()
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	if created == 0 {
		return ErrDuplicate
	}
	return nil
}

func (r *RedisStorage) GetUser(ctx context.Context, id string) (*state.User, error) {
	var u state.User
	found, err := r.getJSON(ctx, r.client, userKey(id), &u)
	if err != nil || !found {
		return nil, err
	}
	return &u, nil
}

func (r *RedisStorage) GetUserByName(ctx context.Context, username string) (*state.User, error) {
	id, err := r.client.Get(ctx, usernameKey(username)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up username: %w", err)
	}
	return r.GetUser(ctx, id)
}

func (r *RedisStorage) SetUserRoom(ctx context.Context, userID, roomID string) error {
	return r.updateUserRoom(ctx, userID, func(current string) (string, bool) {
		return roomID, current != roomID
	})
}

// clearUserRoom clears the reference only if it still points at roomID.
func (r *RedisStorage) clearUserRoom(ctx context.Context, userID, roomID string) error {
	return r.updateUserRoom(ctx, userID, func(current string) (string, bool) {
		return "", current == roomID
	})
}

// updateUserRoom rewrites the user's room reference under WATCH and keeps
// the per-room member sets in step.
func (r *RedisStorage) updateUserRoom(ctx context.Context, userID string, next func(current string) (string, bool)) error {
	key := userKey(userID)
	txf := func(tx *redis.Tx) error {
		var u state.User
		found, err := r.getJSON(ctx, tx, key, &u)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}

		prev := u.RoomID
		roomID, change := next(prev)
		if !change {
			return nil
		}
		u.RoomID = roomID
		data, err := json.Marshal(&u)
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if prev != "" {
				pipe.SRem(ctx, membersKey(prev), userID)
			}
			if roomID != "" {
				pipe.SAdd(ctx, membersKey(roomID), userID)
			}
			return nil
		})
		return err
	}
	return r.watch(ctx, txf, key)
}

// Room operations

func (r *RedisStorage) CreateRoom(ctx context.Context, room *state.Room) error {
	ok, err := r.client.SetNX(ctx, roomCodeKey(room.Code), room.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve room code: %w", err)
	}
	if !ok {
		return ErrDuplicate
	}

	data, err := marshalRoom(room)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, roomKey(room.ID), data, 0)
		pipe.SAdd(ctx, creatorKey(room.CreatorID), room.ID)
		return nil
	})
	if err != nil {
		_ = r.client.Del(ctx, roomCodeKey(room.Code)).Err()
		return fmt.Errorf("failed to save room: %w", err)
	}
	return nil
}

func (r *RedisStorage) GetRoom(ctx context.Context, id string) (*state.Room, error) {
	var doc *redis.StringCmd
	var pending *redis.StringSliceCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		doc = pipe.Get(ctx, roomKey(id))
		pending = pipe.LRange(ctx, pendingKey(id), 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}

	data, err := doc.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}

	var room state.Room
	if err := json.Unmarshal(data, &room); err != nil {
		r.logger.Error("Failed to unmarshal room", "room_id", id, "error", err)
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	room.PendingActions, err = pending.Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load pending actions: %w", err)
	}
	room.Normalize()
	return &room, nil
}

func (r *RedisStorage) GetRoomByCode(ctx context.Context, code string) (*state.Room, error) {
	id, err := r.client.Get(ctx, roomCodeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up room code: %w", err)
	}
	return r.GetRoom(ctx, id)
}

func (r *RedisStorage) ListRoomsByCreator(ctx context.Context, userID string) ([]*state.Room, error) {
	ids, err := r.client.SMembers(ctx, creatorKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	rooms := make([]*state.Room, 0, len(ids))
	for _, id := range ids {
		room, err := r.GetRoom(ctx, id)
		if err != nil {
			return nil, err
		}
		if room == nil {
			if err := r.client.SRem(ctx, creatorKey(userID), id).Err(); err != nil {
				r.logger.Warn("Failed to drop stale room from creator index", "room_id", id, "user_id", userID, "error", err)
			}
			continue
		}
		rooms = append(rooms, room)
	}
	slices.SortFunc(rooms, func(a, b *state.Room) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return rooms, nil
}

func (r *RedisStorage) SaveRoom(ctx context.Context, room *state.Room, consumed int) error {
	room.UpdatedAt = time.Now().UTC()
	data, err := marshalRoom(room)
	if err != nil {
		return err
	}

	key := roomKey(room.ID)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if consumed > 0 {
				pipe.LTrim(ctx, pendingKey(room.ID), int64(consumed), -1)
			}
			return nil
		})
		return err
	}
	return r.watch(ctx, txf, key)
}

func (r *RedisStorage) DeleteRoom(ctx context.Context, id string) error {
	room, err := r.GetRoom(ctx, id)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrNotFound
	}
	members, err := r.client.SMembers(ctx, membersKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to list room members: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, roomKey(id), roomCodeKey(room.Code), pendingKey(id), membersKey(id))
		pipe.SRem(ctx, creatorKey(room.CreatorID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	for _, userID := range slices.Concat(members, []string{room.CreatorID}) {
		if err := r.clearUserRoom(ctx, userID, id); err != nil && !errors.Is(err, ErrNotFound) {
			r.logger.Warn("Failed to clear room reference", "room_id", id, "user_id", userID, "error", err)
		}
	}
	return nil
}

func (r *RedisStorage) AppendPendingAction(ctx context.Context, roomID, entry string) (int, error) {
	n, err := appendPendingScript.Run(ctx, r.client, []string{roomKey(roomID), pendingKey(roomID)}, entry).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to queue action: %w", err)
	}
	if n < 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

// LockRoom takes a token lock with SET NX, retrying with exponential
// backoff until ctx ends. The lock expires after lockTTL so a crashed
// holder cannot wedge the room.
func (r *RedisStorage) LockRoom(ctx context.Context, roomID string) (func(), error) {
	key := roomLockKey(roomID)
	token := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second

	_, err := backoff.Retry(ctx, func() (bool, error) {
		ok, err := r.client.SetNX(ctx, key, token, r.lockTTL).Result()
		if err != nil {
			return false, backoff.Permanent(err)
		}
		if !ok {
			return false, errLockHeld
		}
		return true, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(r.lockTTL),
	)
	if err != nil {
		if errors.Is(err, errLockHeld) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrLockTimeout, err)
		}
		return nil, fmt.Errorf("failed to lock room: %w", err)
	}

	unlock := func() {
		if err := releaseLockScript.Run(context.Background(), r.client, []string{key}, token).Err(); err != nil {
			r.logger.Error("Failed to release room lock", "room_id", roomID, "error", err)
		}
	}
	return unlock, nil
}

// helpers

// getJSON loads a JSON document. found is false when the key is missing.
func (r *RedisStorage) getJSON(ctx context.Context, c redis.Cmdable, key string, v any) (bool, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		r.logger.Error("Failed to unmarshal document", "key", key, "error", err)
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// watch runs an optimistic transaction, retrying on WATCH conflicts.
func (r *RedisStorage) watch(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := r.client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("transaction on %v kept conflicting", keys)
}

// marshalRoom encodes the room document. Pending actions live in their
// own list and are never embedded.
func marshalRoom(room *state.Room) ([]byte, error) {
	doc := room.Clone()
	doc.Normalize()
	doc.PendingActions = nil
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal room: %w", err)
	}
	return data, nil
}
