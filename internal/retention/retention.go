// Package retention implements the Retention Manager of SPEC_FULL.md §4.J:
// on demand or at a configurable cadence, delete archived run documents
// older than retention_days, then delete oldest-first while total archive
// size exceeds max_runs_mb. Never deletes the archive of a task currently
// in_progress.
//
// There is no original_source equivalent — the distilled Python programs
// never rotated runs/ themselves — so this package is written directly from
// spec.md's prose, in the idiom of the rest of the supervisor.
package retention

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aristath/orchestrator/internal/archiveindex"
	"github.com/aristath/orchestrator/internal/clock"
	"github.com/aristath/orchestrator/internal/progresslog"
	"github.com/aristath/orchestrator/internal/store"
	"github.com/aristath/orchestrator/internal/taskfile"
)

// Manager sweeps the runs/ archive directory against the index and the
// live TaskFile.
type Manager struct {
	Store *store.Store
	Index *archiveindex.Index
	Log   *progresslog.Writer
	Clock clock.Clock
}

// New returns a Manager with the system clock.
func New(s *store.Store, idx *archiveindex.Index, log *progresslog.Writer) *Manager {
	return &Manager{Store: s, Index: idx, Log: log, Clock: clock.System{}}
}

// Report summarizes one sweep, for the caller (CLI --cleanup, or a
// scheduled invocation) to print or log.
type Report struct {
	Deleted           []string
	SkippedInProgress []string
	BytesFreed        int64
}

// Sweep runs the age-based pass followed by the size-cap pass, using
// retention_days and max_runs_mb from the current TaskFile config.
func (m *Manager) Sweep(ctx context.Context) (*Report, error) {
	tf, err := m.Store.Read()
	if err != nil {
		return nil, fmt.Errorf("retention: read task file: %w", err)
	}

	inProgress := inProgressRunIDs(tf)

	report := &Report{}

	if tf.Config.RetentionDays > 0 {
		if err := m.sweepByAge(ctx, tf.Config.RetentionDays, inProgress, report); err != nil {
			return nil, err
		}
	}

	if tf.Config.MaxRunsMB > 0 {
		if err := m.sweepBySize(ctx, int64(tf.Config.MaxRunsMB)*1024*1024, inProgress, report); err != nil {
			return nil, err
		}
	}

	if m.Log != nil {
		m.Log.LogRetention(m.Clock.Now(), report.Deleted, report.SkippedInProgress, report.BytesFreed)
	}

	return report, nil
}

func inProgressRunIDs(tf *taskfile.TaskFile) map[string]bool {
	out := make(map[string]bool)
	for _, t := range tf.Tasks {
		if t.Status == taskfile.StatusInProgress && t.Claim != nil {
			out[t.Claim.RunID] = true
		}
	}
	return out
}

func (m *Manager) sweepByAge(ctx context.Context, retentionDays int, inProgress map[string]bool, report *Report) error {
	cutoff := m.Clock.Now().AddDate(0, 0, -retentionDays)

	candidates, err := m.Index.ListOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("retention: list aged runs: %w", err)
	}

	for _, rec := range candidates {
		if inProgress[rec.RunID] {
			report.SkippedInProgress = append(report.SkippedInProgress, rec.RunID)
			continue
		}
		if err := m.delete(ctx, rec); err != nil {
			return err
		}
		report.Deleted = append(report.Deleted, rec.RunID)
		report.BytesFreed += rec.SizeBytes
	}
	return nil
}

func (m *Manager) sweepBySize(ctx context.Context, capBytes int64, inProgress map[string]bool, report *Report) error {
	total, err := m.Index.TotalSizeBytes(ctx)
	if err != nil {
		return fmt.Errorf("retention: total size: %w", err)
	}
	if total <= capBytes {
		return nil
	}

	candidates, err := m.Index.ListBySizeOldestFirst(ctx)
	if err != nil {
		return fmt.Errorf("retention: list runs by age: %w", err)
	}

	for _, rec := range candidates {
		if total <= capBytes {
			break
		}
		if inProgress[rec.RunID] {
			report.SkippedInProgress = append(report.SkippedInProgress, rec.RunID)
			continue
		}
		if err := m.delete(ctx, rec); err != nil {
			return err
		}
		report.Deleted = append(report.Deleted, rec.RunID)
		report.BytesFreed += rec.SizeBytes
		total -= rec.SizeBytes
	}
	return nil
}

func (m *Manager) delete(ctx context.Context, rec archiveindex.Record) error {
	if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("retention: remove %s: %w", rec.Path, err)
	}
	if err := m.Index.Delete(ctx, rec.RunID); err != nil {
		return fmt.Errorf("retention: unindex %s: %w", rec.RunID, err)
	}
	return nil
}

// IndexArchive records a freshly written runs/<run_id>.json archive in the
// index, called by whichever component writes the archive (the Supervisor,
// after a task reaches a terminal state).
func IndexArchive(ctx context.Context, idx *archiveindex.Index, path string, runID, taskID, status string, verifyExitCode *int, now time.Time) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("retention: stat archive %s: %w", path, err)
	}
	return idx.Upsert(ctx, archiveindex.Record{
		RunID:          runID,
		TaskID:         taskID,
		Status:         status,
		SizeBytes:      info.Size(),
		VerifyExitCode: verifyExitCode,
		ArchivedAt:     now,
		Path:           path,
	})
}
