// Package postgres holds the durable duplicate index. Content hashes
// survive process restarts here so a document archived last month is still
// recognized as a duplicate today.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mhduong/docsorter/internal/core/domain"
	"github.com/mhduong/docsorter/internal/core/ports"
)

type DuplicateIndex struct {
	db *sql.DB
}

var _ ports.DuplicateIndex = (*DuplicateIndex)(nil)

func NewDuplicateIndex(db *sql.DB) *DuplicateIndex {
	return &DuplicateIndex{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DuplicateIndex) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS content_hashes (
	target_root TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	file_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (target_root, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_content_hashes_recorded_at ON content_hashes(recorded_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Seen returns the first recorded occurrence of a hash under the target
// root, or nil when the hash is new.
func (r *DuplicateIndex) Seen(ctx context.Context, root domain.FolderRef, hash string) (*domain.DuplicateRef, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT file_id, file_name
FROM content_hashes
WHERE target_root = $1 AND content_hash = $2
`, string(root), hash)

	var ref domain.DuplicateRef
	if err := row.Scan(&ref.ID, &ref.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan content hash: %w", err)
	}
	return &ref, nil
}

// Remember records a hash. The first occurrence wins: a later conflict keeps
// the original reference.
func (r *DuplicateIndex) Remember(ctx context.Context, root domain.FolderRef, hash string, ref domain.DuplicateRef) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO content_hashes (target_root, content_hash, file_id, file_name, recorded_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (target_root, content_hash) DO NOTHING
`, string(root), hash, string(ref.ID), ref.Name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert content hash: %w", err)
	}
	return nil
}
