package archiveindex

import "context"

// initSchema creates the runs table if it doesn't exist, grounded on the
// teacher's persistence.initSchema (WAL + busy-timeout connection, a single
// CREATE TABLE IF NOT EXISTS block).
func (idx *Index) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		status TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		verify_exit_code INTEGER,
		archived_at DATETIME NOT NULL,
		path TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_task_id ON runs(task_id);
	CREATE INDEX IF NOT EXISTS idx_runs_archived_at ON runs(archived_at);
	`

	_, err := idx.db.ExecContext(ctx, schema)
	return err
}
