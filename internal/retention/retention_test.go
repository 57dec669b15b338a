package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/orchestrator/internal/archiveindex"
	"github.com/aristath/orchestrator/internal/clock"
	"github.com/aristath/orchestrator/internal/store"
	"github.com/aristath/orchestrator/internal/taskfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (f fixedClock) Now() time.Time      { return f.now }
func (f fixedClock) NewRunID() string    { return "run-fixed" }

func writeArchive(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func setupStore(t *testing.T, cfg taskfile.Config, tasks []taskfile.TaskRecord) *store.Store {
	t.Helper()
	s := store.New(filepath.Join(t.TempDir(), "Task.json"))
	_, err := s.Mutate(func(tf *taskfile.TaskFile) (*taskfile.TaskFile, any, error) {
		tf.Config = cfg
		tf.Tasks = tasks
		return tf, nil, nil
	})
	require.NoError(t, err)
	return s
}

func TestSweepDeletesArchivesOlderThanRetentionDays(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx, err := archiveindex.NewMemory(ctx)
	require.NoError(t, err)
	defer idx.Close()

	now := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	oldPath := writeArchive(t, dir, "run-old.json", 10)
	newPath := writeArchive(t, dir, "run-new.json", 10)

	require.NoError(t, idx.Upsert(ctx, archiveindex.Record{RunID: "run-old", Path: oldPath, SizeBytes: 10, ArchivedAt: now.AddDate(0, 0, -30)}))
	require.NoError(t, idx.Upsert(ctx, archiveindex.Record{RunID: "run-new", Path: newPath, SizeBytes: 10, ArchivedAt: now.AddDate(0, 0, -1)}))

	cfg := taskfile.DefaultConfig()
	cfg.RetentionDays = 7
	cfg.MaxRunsMB = 1000
	s := setupStore(t, cfg, nil)

	m := &Manager{Store: s, Index: idx, Clock: fixedClock{now: now}}
	report, err := m.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"run-old"}, report.Deleted)
	_, statErr := os.Stat(oldPath)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(newPath)
	assert.NoError(t, statErr)

	got, err := idx.Get(ctx, "run-old")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSweepNeverDeletesInProgressArchive(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx, err := archiveindex.NewMemory(ctx)
	require.NoError(t, err)
	defer idx.Close()

	now := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	path := writeArchive(t, dir, "run-active.json", 10)
	require.NoError(t, idx.Upsert(ctx, archiveindex.Record{RunID: "run-active", Path: path, SizeBytes: 10, ArchivedAt: now.AddDate(0, 0, -30)}))

	cfg := taskfile.DefaultConfig()
	cfg.RetentionDays = 7
	cfg.MaxRunsMB = 1000
	tasks := []taskfile.TaskRecord{
		{ID: "t1", Status: taskfile.StatusInProgress, Claim: &taskfile.Claim{RunID: "run-active", ClaimedAt: now, LeaseExpiresAt: now.Add(time.Hour), Attempt: 1}},
	}
	s := setupStore(t, cfg, tasks)

	m := &Manager{Store: s, Index: idx, Clock: fixedClock{now: now}}
	report, err := m.Sweep(ctx)
	require.NoError(t, err)

	assert.Empty(t, report.Deleted)
	assert.Equal(t, []string{"run-active"}, report.SkippedInProgress)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestSweepBySizeDeletesOldestFirstUntilUnderCap(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx, err := archiveindex.NewMemory(ctx)
	require.NoError(t, err)
	defer idx.Close()

	now := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	mb := int64(1024 * 1024)

	p1 := writeArchive(t, dir, "run-1.json", 1)
	p2 := writeArchive(t, dir, "run-2.json", 1)
	p3 := writeArchive(t, dir, "run-3.json", 1)

	require.NoError(t, idx.Upsert(ctx, archiveindex.Record{RunID: "run-1", Path: p1, SizeBytes: 2 * mb, ArchivedAt: now.AddDate(0, 0, -3)}))
	require.NoError(t, idx.Upsert(ctx, archiveindex.Record{RunID: "run-2", Path: p2, SizeBytes: 2 * mb, ArchivedAt: now.AddDate(0, 0, -2)}))
	require.NoError(t, idx.Upsert(ctx, archiveindex.Record{RunID: "run-3", Path: p3, SizeBytes: 2 * mb, ArchivedAt: now.AddDate(0, 0, -1)}))

	cfg := taskfile.DefaultConfig()
	cfg.RetentionDays = 0 // disable age pass for this test
	cfg.MaxRunsMB = 3      // cap at 3MB, total is 6MB
	s := setupStore(t, cfg, nil)

	m := &Manager{Store: s, Index: idx, Clock: fixedClock{now: now}}
	report, err := m.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"run-1", "run-2"}, report.Deleted)

	total, err := idx.TotalSizeBytes(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, total, int64(cfg.MaxRunsMB)*mb)
}

func TestIndexArchiveRecordsFileSize(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx, err := archiveindex.NewMemory(ctx)
	require.NoError(t, err)
	defer idx.Close()

	path := writeArchive(t, dir, "run-x.json", 42)
	now := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	code := 0

	require.NoError(t, IndexArchive(ctx, idx, path, "run-x", "task-x", "completed", &code, now))

	rec, err := idx.Get(ctx, "run-x")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(42), rec.SizeBytes)
	assert.Equal(t, "task-x", rec.TaskID)
}

var _ clock.Clock = fixedClock{}
