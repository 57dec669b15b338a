package control

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopRequestedReflectsSentinelFile(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	assert.False(t, c.StopRequested())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "STOP"), nil, 0o644))
	assert.True(t, c.StopRequested())
}

func TestPauseRequestedReflectsSentinelFile(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	assert.False(t, c.PauseRequested())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "PAUSE"), nil, 0o644))
	assert.True(t, c.PauseRequested())
}

func TestAwaitResumeReturnsImmediatelyWhenNotPaused(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	c.PauseInterval = time.Millisecond

	done := make(chan error, 1)
	go func() { done <- c.AwaitResume(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("AwaitResume blocked with no PAUSE file present")
	}
}

func TestAwaitResumeUnblocksWhenPauseFileRemoved(t *testing.T) {
	dir := t.TempDir()
	pausePath := filepath.Join(dir, "PAUSE")
	require.NoError(t, os.WriteFile(pausePath, nil, 0o644))

	c := New(dir)
	c.PauseInterval = 10 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- c.AwaitResume(context.Background()) }()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.Remove(pausePath))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("AwaitResume did not unblock after PAUSE file removal")
	}
}

func TestAwaitResumeReturnsContextErrorOnCancel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PAUSE"), nil, 0o644))

	c := New(dir)
	c.PauseInterval = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.AwaitResume(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("AwaitResume did not observe context cancellation")
	}
}

func TestRaiseAlertWritesFile(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)

	require.NoError(t, c.RaiseAlert("3 consecutive failures", "inspect progress.txt", time.Now()))

	data, err := os.ReadFile(filepath.Join(dir, "ALERT.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "3 consecutive failures")
	assert.Contains(t, string(data), "inspect progress.txt")
}
