package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/orchestrator/internal/taskfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	dir := t.TempDir()
	return New(filepath.Join(dir, "Task.json"))
}

func TestMutateCreatesFileWhenMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Mutate(func(tf *taskfile.TaskFile) (*taskfile.TaskFile, any, error) {
		tf.Tasks = append(tf.Tasks, taskfile.TaskRecord{ID: "t1", Status: taskfile.StatusPending})
		return tf, nil, nil
	})
	require.NoError(t, err)

	got, err := s.Read()
	require.NoError(t, err)
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, "t1", got.Tasks[0].ID)
	assert.NotEmpty(t, got.LastModified)
}

func TestMutateRejectsInvariantViolationAndLeavesPriorStateIntact(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Mutate(func(tf *taskfile.TaskFile) (*taskfile.TaskFile, any, error) {
		tf.Tasks = append(tf.Tasks, taskfile.TaskRecord{ID: "t1", Status: taskfile.StatusPending})
		return tf, nil, nil
	})
	require.NoError(t, err)

	_, err = s.Mutate(func(tf *taskfile.TaskFile) (*taskfile.TaskFile, any, error) {
		tf.Tasks[0].Status = taskfile.StatusCompleted // no verify result: invariant 3.1 violation
		return tf, nil, nil
	})
	require.Error(t, err)
	var iv *taskfile.InvariantViolation
	require.ErrorAs(t, err, &iv)

	got, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, taskfile.StatusPending, got.Tasks[0].Status, "rejected write must not touch the file")
}

func TestMutateReturnsIntent(t *testing.T) {
	s := newTestStore(t)
	intent, err := s.Mutate(func(tf *taskfile.TaskFile) (*taskfile.TaskFile, any, error) {
		return tf, "claimed:t1", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "claimed:t1", intent)
}

func TestLockContendedWhenAlreadyHeld(t *testing.T) {
	s := newTestStore(t)
	lock := newFileLock(s.lockPath)
	require.NoError(t, lock.acquire(time.Second))
	defer lock.release()

	_, err := s.Mutate(func(tf *taskfile.TaskFile) (*taskfile.TaskFile, any, error) {
		return tf, nil, nil
	})
	require.Error(t, err)
	var contended *LockContended
	require.ErrorAs(t, err, &contended)
}

func TestCommitIsAtomicNoTempFilesLeftBehind(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Mutate(func(tf *taskfile.TaskFile) (*taskfile.TaskFile, any, error) {
		tf.Tasks = append(tf.Tasks, taskfile.TaskRecord{ID: "t1", Status: taskfile.StatusPending})
		return tf, nil, nil
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(s.path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp.", "temp file leaked: %s", e.Name())
	}
}
