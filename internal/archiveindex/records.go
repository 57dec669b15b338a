package archiveindex

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Record is one runs/<run_id>.json archive's indexed metadata.
type Record struct {
	RunID          string
	TaskID         string
	Status         string
	SizeBytes      int64
	VerifyExitCode *int
	ArchivedAt     time.Time
	Path           string
}

// Upsert records (or updates) one archived run, mirroring the teacher's
// SaveTask ON CONFLICT idiom for idempotent re-indexing.
func (idx *Index) Upsert(ctx context.Context, r Record) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, task_id, status, size_bytes, verify_exit_code, archived_at, path)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			task_id = excluded.task_id,
			status = excluded.status,
			size_bytes = excluded.size_bytes,
			verify_exit_code = excluded.verify_exit_code,
			archived_at = excluded.archived_at,
			path = excluded.path
	`, r.RunID, r.TaskID, r.Status, r.SizeBytes, r.VerifyExitCode, r.ArchivedAt, r.Path)
	if err != nil {
		return fmt.Errorf("archiveindex: upsert %s: %w", r.RunID, err)
	}
	return nil
}

// Get returns one indexed run, or nil if not found.
func (idx *Index) Get(ctx context.Context, runID string) (*Record, error) {
	row := idx.db.QueryRowContext(ctx, `
		SELECT run_id, task_id, status, size_bytes, verify_exit_code, archived_at, path
		FROM runs WHERE run_id = ?
	`, runID)

	var r Record
	if err := row.Scan(&r.RunID, &r.TaskID, &r.Status, &r.SizeBytes, &r.VerifyExitCode, &r.ArchivedAt, &r.Path); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// Delete removes one indexed run. It does not touch the archive file on
// disk — callers (the Retention Manager) remove the file first, then index.
func (idx *Index) Delete(ctx context.Context, runID string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	return err
}

// ListOlderThan returns every run archived strictly before cutoff, oldest
// first, for the Retention Manager's age-based pass.
func (idx *Index) ListOlderThan(ctx context.Context, cutoff time.Time) ([]Record, error) {
	return idx.query(ctx, `
		SELECT run_id, task_id, status, size_bytes, verify_exit_code, archived_at, path
		FROM runs WHERE archived_at < ? ORDER BY archived_at ASC
	`, cutoff)
}

// ListBySizeOldestFirst returns every run ordered oldest-first, for the
// Retention Manager's size-cap pass (delete oldest-first until under cap).
func (idx *Index) ListBySizeOldestFirst(ctx context.Context) ([]Record, error) {
	return idx.query(ctx, `
		SELECT run_id, task_id, status, size_bytes, verify_exit_code, archived_at, path
		FROM runs ORDER BY archived_at ASC
	`)
}

// TotalSizeBytes sums size_bytes across every indexed run.
func (idx *Index) TotalSizeBytes(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	row := idx.db.QueryRowContext(ctx, `SELECT SUM(size_bytes) FROM runs`)
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total.Int64, nil
}

// Count returns the number of indexed runs.
func (idx *Index) Count(ctx context.Context) (int, error) {
	var n int
	row := idx.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Recent returns the n most recently archived runs, newest first, for the
// Reporter's status board.
func (idx *Index) Recent(ctx context.Context, n int) ([]Record, error) {
	return idx.query(ctx, `
		SELECT run_id, task_id, status, size_bytes, verify_exit_code, archived_at, path
		FROM runs ORDER BY archived_at DESC LIMIT ?
	`, n)
}

func (idx *Index) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.RunID, &r.TaskID, &r.Status, &r.SizeBytes, &r.VerifyExitCode, &r.ArchivedAt, &r.Path); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
