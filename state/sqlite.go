package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS seen_ids (
	namespace TEXT NOT NULL,
	id        TEXT NOT NULL,
	added_at  INTEGER NOT NULL,
	PRIMARY KEY (namespace, id)
)`

// SQLiteSeenStore stores identifiers in an SQLite table. WAL mode and a busy
// timeout let several sessions append to the same database file.
type SQLiteSeenStore struct {
	db        *sql.DB
	namespace string
}

// NewSQLiteSeenStore opens the database at path and ensures the schema.
func NewSQLiteSeenStore(path, namespace string) (*SQLiteSeenStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		sqliteSchema,
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	log.Info().Str("path", path).Str("namespace", namespace).Msg("Opened sqlite seen-set store")
	return &SQLiteSeenStore{db: db, namespace: namespace}, nil
}

// Contains reports whether id is recorded in the store's namespace.
func (s *SQLiteSeenStore) Contains(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM seen_ids WHERE namespace = ? AND id = ?", s.namespace, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite lookup: %w", err)
	}
	return true, nil
}

// AddAll inserts ids in one transaction, ignoring ids already present.
func (s *SQLiteSeenStore) AddAll(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO seen_ids (namespace, id, added_at) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, s.namespace, id, now); err != nil {
			return fmt.Errorf("sqlite insert %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteSeenStore) Close() error {
	return s.db.Close()
}
