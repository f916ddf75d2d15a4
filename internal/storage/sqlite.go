package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jwebster45206/party-engine/pkg/chat"
	"github.com/jwebster45206/party-engine/pkg/state"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteStorage implements Storage on a single SQLite file. Room locks
// are in-process, so one API instance should own the file.
type SQLiteStorage struct {
	db     *sql.DB
	logger *slog.Logger
	locks  *roomLocks
}

// Ensure SQLiteStorage implements Storage interface
var _ Storage = (*SQLiteStorage)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// NewSQLiteStorage opens path (":memory:" for tests) and applies migrations.
func NewSQLiteStorage(path string, logger *slog.Logger) (*SQLiteStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path)
	}
	dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStorage{db: db, logger: logger, locks: newRoomLocks()}, nil
}

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	files, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	slices.Sort(files)

	for _, file := range files {
		var applied int
		if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, file).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if applied > 0 {
			continue
		}
		content, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, file, toMillis(time.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// User operations

func (s *SQLiteStorage) CreateUser(ctx context.Context, u *state.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, room_id, created_at) VALUES (?, ?, ?, NULL, ?)`,
		u.ID, u.Username, u.PasswordHash, toMillis(u.CreatedAt))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, username, password_hash, COALESCE(room_id, ''), created_at`

func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*state.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (s *SQLiteStorage) GetUserByName(ctx context.Context, username string) (*state.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

func (s *SQLiteStorage) scanUser(row *sql.Row) (*state.User, error) {
	var u state.User
	var created int64
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.RoomID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = fromMillis(created)
	return &u, nil
}

func (s *SQLiteStorage) SetUserRoom(ctx context.Context, userID, roomID string) error {
	var ref any
	if roomID != "" {
		ref = roomID
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET room_id = ? WHERE id = ?`, ref, userID)
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update user room: %w", err)
	}
	return requireRow(res)
}

// Room operations

func (s *SQLiteStorage) CreateRoom(ctx context.Context, r *state.Room) error {
	inventory, history, err := encodeRoomLists(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO rooms
		(id, code, creator_id, floor, hp, hp_max, inventory_json, history_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Code, r.CreatorID, r.Floor, r.HP, r.HPMax, inventory, history,
		toMillis(r.CreatedAt), toMillis(r.UpdatedAt))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

const roomColumns = `id, code, creator_id, floor, hp, hp_max, inventory_json, history_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*state.Room, error) {
	var r state.Room
	var inventory, history string
	var created, updated int64
	if err := row.Scan(&r.ID, &r.Code, &r.CreatorID, &r.Floor, &r.HP, &r.HPMax,
		&inventory, &history, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(inventory), &r.Inventory); err != nil {
		return nil, fmt.Errorf("decode inventory: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &r.History); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	r.CreatedAt = fromMillis(created)
	r.UpdatedAt = fromMillis(updated)
	return &r, nil
}

func (s *SQLiteStorage) GetRoom(ctx context.Context, id string) (*state.Room, error) {
	return s.loadRoom(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
}

func (s *SQLiteStorage) GetRoomByCode(ctx context.Context, code string) (*state.Room, error) {
	return s.loadRoom(ctx, `SELECT `+roomColumns+` FROM rooms WHERE code = ?`, code)
}

// loadRoom reads the room and its queue in one read transaction.
func (s *SQLiteStorage) loadRoom(ctx context.Context, query string, arg string) (*state.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	r, err := scanRoom(tx.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT entry FROM pending_actions WHERE room_id = ? ORDER BY seq`, r.ID)
	if err != nil {
		return nil, fmt.Errorf("load pending actions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var entry string
		if err := rows.Scan(&entry); err != nil {
			return nil, fmt.Errorf("scan pending action: %w", err)
		}
		r.PendingActions = append(r.PendingActions, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	r.Normalize()
	return r, nil
}

func (s *SQLiteStorage) ListRoomsByCreator(ctx context.Context, userID string) ([]*state.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE creator_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rooms []*state.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		r.Normalize()
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

func (s *SQLiteStorage) SaveRoom(ctx context.Context, r *state.Room, consumed int) error {
	r.UpdatedAt = time.Now().UTC()
	inventory, history, err := encodeRoomLists(r)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE rooms
		SET floor = ?, hp = ?, hp_max = ?, inventory_json = ?, history_json = ?, updated_at = ?
		WHERE id = ?`,
		r.Floor, r.HP, r.HPMax, inventory, history, toMillis(r.UpdatedAt), r.ID)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	if consumed > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_actions WHERE seq IN (
			SELECT seq FROM pending_actions WHERE room_id = ? ORDER BY seq LIMIT ?)`, r.ID, consumed); err != nil {
			return fmt.Errorf("trim pending actions: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteRoom relies on ON DELETE SET NULL and ON DELETE CASCADE to clear
// user references and the queue.
func (s *SQLiteStorage) DeleteRoom(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	s.locks.forget(id)
	return nil
}

func (s *SQLiteStorage) AppendPendingAction(ctx context.Context, roomID, entry string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pending_actions (room_id, entry) VALUES (?, ?)`, roomID, entry); err != nil {
		if isForeignKeyViolation(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("insert pending action: %w", err)
	}

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_actions WHERE room_id = ?`, roomID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending actions: %w", err)
	}
	return n, tx.Commit()
}

func (s *SQLiteStorage) LockRoom(ctx context.Context, roomID string) (func(), error) {
	return s.locks.lock(ctx, roomID)
}

// helpers

func encodeRoomLists(r *state.Room) (inventory, history string, err error) {
	inv := r.Inventory
	if inv == nil {
		inv = []string{}
	}
	hist := r.History
	if hist == nil {
		hist = []chat.ChatMessage{}
	}
	invData, err := json.Marshal(inv)
	if err != nil {
		return "", "", fmt.Errorf("encode inventory: %w", err)
	}
	histData, err := json.Marshal(hist)
	if err != nil {
		return "", "", fmt.Errorf("encode history: %w", err)
	}
	return string(invData), string(histData), nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed")
}
