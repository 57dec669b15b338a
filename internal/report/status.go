package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/orchestrator/internal/archiveindex"
	"github.com/aristath/orchestrator/internal/taskfile"
)

// Board is the data status.md renders, also returned to --status for direct
// printing without going through the file.
type Board struct {
	GeneratedAt    time.Time
	StatusCounts   map[taskfile.Status]int
	Blocked        []BlockedTask
	RecentArchives []archiveindex.Record
	ArchiveBytes   int64
}

// BlockedTask is one entry in the status board's blocked-task list.
type BlockedTask struct {
	ID    string
	Notes string
	Since string
}

// BuildBoard assembles a Board from the current TaskFile and the archive
// index's recent history, independent of the scheduling loop so it's safe
// to call concurrently with a running supervisor.
func BuildBoard(ctx context.Context, tf *taskfile.TaskFile, idx *archiveindex.Index, recentN int, now time.Time) (*Board, error) {
	b := &Board{
		GeneratedAt:  now,
		StatusCounts: make(map[taskfile.Status]int),
	}

	for _, t := range tf.Tasks {
		b.StatusCounts[t.Status]++
		if t.Status == taskfile.StatusBlocked {
			b.Blocked = append(b.Blocked, BlockedTask{ID: t.ID, Notes: t.Notes, Since: t.LastUpdate})
		}
	}
	sort.Slice(b.Blocked, func(i, j int) bool { return b.Blocked[i].ID < b.Blocked[j].ID })

	if idx != nil {
		recent, err := idx.Recent(ctx, recentN)
		if err != nil {
			return nil, fmt.Errorf("report: recent archives: %w", err)
		}
		b.RecentArchives = recent

		total, err := idx.TotalSizeBytes(ctx)
		if err != nil {
			return nil, fmt.Errorf("report: archive size: %w", err)
		}
		b.ArchiveBytes = total
	}

	return b, nil
}

// Render produces the status.md document text.
func (b *Board) Render() string {
	var s strings.Builder

	fmt.Fprintf(&s, "# Status\n\n")
	fmt.Fprintf(&s, "generated: %s\n\n", b.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))

	fmt.Fprintf(&s, "## Task counts\n\n")
	for _, status := range []taskfile.Status{
		taskfile.StatusPending, taskfile.StatusInProgress, taskfile.StatusCompleted,
		taskfile.StatusFailed, taskfile.StatusBlocked, taskfile.StatusAbandoned,
		taskfile.StatusCanceled,
	} {
		fmt.Fprintf(&s, "- %s: %d\n", status, b.StatusCounts[status])
	}

	fmt.Fprintf(&s, "\n## Blocked tasks\n\n")
	if len(b.Blocked) == 0 {
		fmt.Fprintf(&s, "none\n")
	}
	for _, bt := range b.Blocked {
		fmt.Fprintf(&s, "- %s (since %s): %s\n", bt.ID, bt.Since, bt.Notes)
	}

	fmt.Fprintf(&s, "\n## Recent archives\n\n")
	if len(b.RecentArchives) == 0 {
		fmt.Fprintf(&s, "none\n")
	}
	for _, rec := range b.RecentArchives {
		fmt.Fprintf(&s, "- %s task=%s status=%s size=%d bytes archived=%s\n",
			rec.RunID, rec.TaskID, rec.Status, rec.SizeBytes, rec.ArchivedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}

	fmt.Fprintf(&s, "\n## Archive disk usage\n\n")
	fmt.Fprintf(&s, "%d bytes\n", b.ArchiveBytes)

	return s.String()
}

// WriteStatusFile renders b and writes it atomically to path, reusing the
// same temp-file+rename pattern as Alert and the Atomic Store's commit.
func WriteStatusFile(path string, b *Board) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(b.Render()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
