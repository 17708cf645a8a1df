package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLite is the local fallback bridge, used when the server-side store is
// unreachable so a snapshot written just before a crash is still on disk.
type SQLite struct {
	db *sql.DB
}

var _ Bridge = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the database at path.
func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("persist: create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persist: open sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: enable WAL: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS coach_state (
		user_id    TEXT NOT NULL,
		session_id TEXT NOT NULL,
		kind       TEXT NOT NULL,
		data       BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, session_id, kind)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, key Key) ([]byte, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM coach_state WHERE user_id = ? AND session_id = ? AND kind = ?`,
		key.UserID, key.SessionID, string(key.Kind),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persist: get %s: %w", key.Kind, err)
	}
	return data, nil
}

func (s *SQLite) Set(ctx context.Context, key Key, data []byte) error {
	if err := key.validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO coach_state (user_id, session_id, kind, data, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (user_id, session_id, kind)
		 DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		key.UserID, key.SessionID, string(key.Kind), data,
	)
	if err != nil {
		return fmt.Errorf("persist: set %s: %w", key.Kind, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key Key) error {
	if err := key.validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM coach_state WHERE user_id = ? AND session_id = ? AND kind = ?`,
		key.UserID, key.SessionID, string(key.Kind),
	)
	if err != nil {
		return fmt.Errorf("persist: delete %s: %w", key.Kind, err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
