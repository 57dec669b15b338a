package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/orchestrator/internal/archiveindex"
	"github.com/aristath/orchestrator/internal/taskfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBoardCountsByStatus(t *testing.T) {
	tf := taskfile.New()
	tf.Tasks = []taskfile.TaskRecord{
		{ID: "t1", Status: taskfile.StatusCompleted},
		{ID: "t2", Status: taskfile.StatusPending},
		{ID: "t3", Status: taskfile.StatusBlocked, Notes: "needs human", LastUpdate: "2026-08-01T00:00:00Z"},
	}

	b, err := BuildBoard(context.Background(), tf, nil, 5, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, b.StatusCounts[taskfile.StatusCompleted])
	assert.Equal(t, 1, b.StatusCounts[taskfile.StatusPending])
	require.Len(t, b.Blocked, 1)
	assert.Equal(t, "t3", b.Blocked[0].ID)
	assert.Equal(t, "needs human", b.Blocked[0].Notes)
}

func TestBuildBoardIncludesRecentArchivesAndSize(t *testing.T) {
	ctx := context.Background()
	idx, err := archiveindex.NewMemory(ctx)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Upsert(ctx, archiveindex.Record{RunID: "run-1", TaskID: "t1", Status: "completed", SizeBytes: 100, ArchivedAt: time.Now().UTC()}))

	tf := taskfile.New()
	b, err := BuildBoard(ctx, tf, idx, 5, time.Now())
	require.NoError(t, err)

	require.Len(t, b.RecentArchives, 1)
	assert.Equal(t, "run-1", b.RecentArchives[0].RunID)
	assert.Equal(t, int64(100), b.ArchiveBytes)
}

func TestRenderIncludesAllSections(t *testing.T) {
	b := &Board{
		GeneratedAt:  time.Now(),
		StatusCounts: map[taskfile.Status]int{taskfile.StatusCompleted: 2},
	}
	out := b.Render()
	assert.Contains(t, out, "## Task counts")
	assert.Contains(t, out, "## Blocked tasks")
	assert.Contains(t, out, "## Recent archives")
	assert.Contains(t, out, "## Archive disk usage")
	assert.Contains(t, out, "completed: 2")
}

func TestWriteStatusFileIsAtomicAndReadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.md")

	b := &Board{GeneratedAt: time.Now(), StatusCounts: map[taskfile.Status]int{}}
	require.NoError(t, WriteStatusFile(path, b))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Status")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp file")
}
