package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	apperrors "backtest_engine/pkg/errors"
)

const defaultListLimit = 50

const runsSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	strategy   TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	data       TEXT NOT NULL,
	checksum   BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_strategy_created ON runs (strategy, created_at DESC);
`

// SQLiteStore keeps run payloads as checksummed JSON rows. The checksum is
// verified on every read so silent file corruption surfaces as
// ErrStoreCorruption instead of skewed results.
type SQLiteStore struct {
	db *sql.DB
}

var _ ResultStore = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(runsSchema); err != nil {
		return nil, fmt.Errorf("failed to create runs schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("run record needs an id")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", rec.ID, err)
	}

	// round-trip before commit so a half-encodable record never lands
	var probe RunRecord
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("run %s validation failed: %w", rec.ID, err)
	}

	checksum := sha256.Sum256(data)
	query := `INSERT OR REPLACE INTO runs (id, strategy, created_at, data, checksum) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query,
		rec.ID, rec.Strategy, rec.CreatedAt.UnixNano(), string(data), checksum[:]); err != nil {
		return fmt.Errorf("failed to write run %s: %w", rec.ID, err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadRun(ctx context.Context, id string) (*RunRecord, error) {
	query := `SELECT data, checksum FROM runs WHERE id = ?`
	var data string
	var storedChecksum []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&data, &storedChecksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, apperrors.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", id, err)
	}
	return decodeRun(id, data, storedChecksum)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, strategy string, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT id, data, checksum FROM runs ORDER BY created_at DESC LIMIT ?`
	args := []interface{}{limit}
	if strategy != "" {
		query = `SELECT id, data, checksum FROM runs WHERE strategy = ? ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{strategy, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		var id, data string
		var storedChecksum []byte
		if err := rows.Scan(&id, &data, &storedChecksum); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		rec, err := decodeRun(id, data, storedChecksum)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decodeRun(id, data string, storedChecksum []byte) (*RunRecord, error) {
	computed := sha256.Sum256([]byte(data))
	if !bytes.Equal(storedChecksum, computed[:]) {
		return nil, fmt.Errorf("run %s: %w", id, apperrors.ErrStoreCorruption)
	}

	var rec RunRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}
	return &rec, nil
}
