package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/swelljoe/skycast/internal/config"
)

var errNotInitialized = errors.New("database not initialized")

// updatedAtLayout is fixed-width so stored timestamps sort as text.
const updatedAtLayout = "2006-01-02T15:04:05.000Z"

// DB wraps a database connection
type DB struct {
	*sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS slots (
  session_id TEXT NOT NULL,
  name       TEXT NOT NULL,
  value      TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (session_id, name)
);
`

// NewDB opens the sqlite file named by cfg and makes sure the schema exists.
func NewDB(cfg config.Config) (*DB, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer is all sqlite wants; it also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func buildDSN(cfg config.Config) (string, error) {
	if cfg.SQLiteDSN != "" {
		return cfg.SQLiteDSN, nil
	}

	path := cfg.SQLitePath
	if path == "" {
		return "", errors.New("sqlite path is empty")
	}
	fsPath := strings.TrimPrefix(path, "file:")
	if i := strings.IndexByte(fsPath, '?'); i >= 0 {
		fsPath = fsPath[:i]
	}
	dir := filepath.Dir(fsPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	params := []string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

// GetSlot returns the value stored under name for the session.
// ok is false when nothing has been stored.
func (db *DB) GetSlot(ctx context.Context, sessionID, name string) (value string, ok bool, err error) {
	if db == nil || db.DB == nil {
		return "", false, errNotInitialized
	}
	err = db.QueryRowContext(ctx,
		"SELECT value FROM slots WHERE session_id = ? AND name = ?",
		sessionID, name,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get slot %q: %w", name, err)
	}
	return value, true, nil
}

// SetSlot replaces the whole value stored under name.
func (db *DB) SetSlot(ctx context.Context, sessionID, name, value string) error {
	if db == nil || db.DB == nil {
		return errNotInitialized
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO slots (session_id, name, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		sessionID, name, value, time.Now().UTC().Format(updatedAtLayout),
	)
	if err != nil {
		return fmt.Errorf("set slot %q: %w", name, err)
	}
	return nil
}

// DeleteSlot removes the slot. Deleting a missing slot is not an error.
func (db *DB) DeleteSlot(ctx context.Context, sessionID, name string) error {
	if db == nil || db.DB == nil {
		return errNotInitialized
	}
	if _, err := db.ExecContext(ctx,
		"DELETE FROM slots WHERE session_id = ? AND name = ?",
		sessionID, name,
	); err != nil {
		return fmt.Errorf("delete slot %q: %w", name, err)
	}
	return nil
}

// PruneSlots deletes every slot last written before cutoff and returns how
// many rows went away. Sessions whose browser never came back leave their
// slots behind; this is how they get cleaned up.
func (db *DB) PruneSlots(ctx context.Context, cutoff time.Time) (int64, error) {
	if db == nil || db.DB == nil {
		return 0, errNotInitialized
	}
	res, err := db.ExecContext(ctx,
		"DELETE FROM slots WHERE updated_at < ?",
		cutoff.UTC().Format(updatedAtLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("prune slots: %w", err)
	}
	return res.RowsAffected()
}

// CountSessions returns how many distinct sessions have persisted slots.
func (db *DB) CountSessions(ctx context.Context) (int, error) {
	if db == nil || db.DB == nil {
		return 0, errNotInitialized
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT session_id) FROM slots").Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}
