package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

// SQLiteStore persists the submitted chunk corpus and small key-value state
// (last reindex time, active generation) so a restarted process can rebuild
// its indexes without re-ingesting. Indexes themselves are derived data and
// are never persisted.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id        TEXT PRIMARY KEY,
	ordinal   INTEGER NOT NULL,
	text      TEXT NOT NULL,
	size      INTEGER NOT NULL,
	parent_id TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// OpenSQLiteStore opens (or creates) the chunk database at path.
// WAL mode keeps concurrent readers from blocking the writer.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, sferrors.ConfigError(fmt.Sprintf("failed to open sqlite store %s", path), err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, sferrors.InternalError("failed to enable WAL mode", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, sferrors.InternalError("failed to create schema", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveChunks replaces the persisted corpus with the given chunks in one
// transaction. Chunks are immutable, so a save is always a full replacement.
func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sferrors.InternalError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return sferrors.InternalError("failed to clear chunks", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (id, ordinal, text, size, parent_id) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return sferrors.InternalError("failed to prepare insert", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Ordinal, c.Text, c.Size, c.ParentID); err != nil {
			return sferrors.InternalError(fmt.Sprintf("failed to insert chunk %s", c.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return sferrors.InternalError("failed to commit chunk save", err)
	}
	return nil
}

// LoadChunks returns the persisted corpus in ordinal order.
func (s *SQLiteStore) LoadChunks(ctx context.Context) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, ordinal, text, size, parent_id FROM chunks ORDER BY ordinal")
	if err != nil {
		return nil, sferrors.InternalError("failed to query chunks", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.Ordinal, &c.Text, &c.Size, &c.ParentID); err != nil {
			return nil, sferrors.InternalError("failed to scan chunk row", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, sferrors.InternalError("failed to iterate chunk rows", err)
	}

	return chunks, nil
}

// SetState stores a key-value pair, replacing any existing value.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return sferrors.InternalError(fmt.Sprintf("failed to set state %s", key), err)
	}
	return nil
}

// GetState returns the value for a key, or "" when unset.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", sferrors.InternalError(fmt.Sprintf("failed to get state %s", key), err)
	}
	return value, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
