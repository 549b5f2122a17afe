package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/agentic-research/kiln/api"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	metadata JSON
) WITHOUT ROWID;
`

// SQLiteStore persists a dataset in a single-table SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the store at dbPath.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func encodeMetadata(metadata api.Metadata) (any, error) {
	if metadata == nil {
		return nil, nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

// Put implements Writer.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte, metadata api.Metadata) error {
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value, metadata) VALUES (?, ?, ?)`,
		key, value, meta)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Replace swaps the whole contents of the store for entries in one
// transaction, so readers never observe a half-published dataset.
func (s *SQLiteStore) Replace(ctx context.Context, entries []api.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO kv (key, value, metadata) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		meta, err := encodeMetadata(e.Metadata)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Key, err)
		}
		value := e.Value
		if value == nil {
			value = []byte{}
		}
		if _, err := stmt.ExecContext(ctx, e.Key, value, meta); err != nil {
			return fmt.Errorf("insert %s: %w", e.Key, err)
		}
	}
	return tx.Commit()
}

// Get implements Reader.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// GetWithMetadata implements Reader.
func (s *SQLiteStore) GetWithMetadata(ctx context.Context, key string) (*Value, error) {
	var (
		value []byte
		meta  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, metadata FROM kv WHERE key = ?`, key).Scan(&value, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	v := &Value{Data: value}
	if meta.Valid {
		if err := json.Unmarshal([]byte(meta.String), &v.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", key, err)
		}
	}
	return v, nil
}

// Count returns the number of stored keys.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
