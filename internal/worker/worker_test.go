package worker

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLastResultHonorsOnlyTheLastObject(t *testing.T) {
	stdout := []byte(`some log line
{"task_id":"t1","run_id":"r0","status":"failed","error":"stale"}
more logs {"not":"json start without close"
{"task_id":"t1","run_id":"r1","status":"completed","verify":{"command":"verify.sh","exit_code":0}}
`)
	doc := parseLastResult(stdout)
	require.NotNil(t, doc)
	assert.Equal(t, "r1", doc.RunID)
	assert.Equal(t, "completed", doc.Status)
	require.NotNil(t, doc.Verify)
	assert.Equal(t, 0, doc.Verify.ExitCode)
}

func TestParseLastResultReturnsNilWhenNoObject(t *testing.T) {
	assert.Nil(t, parseLastResult([]byte("no json here at all")))
}

func TestParseLastResultIgnoresBracesInsideStrings(t *testing.T) {
	stdout := []byte(`{"task_id":"t1","run_id":"r1","status":"completed","summary":"braces { and } in prose"}`)
	doc := parseLastResult(stdout)
	require.NotNil(t, doc)
	assert.Equal(t, "braces { and } in prose", doc.Summary)
}

func TestRingBufferDropsMiddleKeepsHeadAndTail(t *testing.T) {
	rb := newRingBuffer(100)
	head := bytes.Repeat([]byte("A"), 60)
	tail := bytes.Repeat([]byte("B"), 60)
	rb.Write(head)
	rb.Write(tail)

	out := rb.Bytes()
	assert.True(t, bytes.HasPrefix(out, []byte("A")))
	assert.True(t, bytes.HasSuffix(out, []byte("B")))
	assert.Contains(t, string(out), "truncated")
	assert.LessOrEqual(t, len(out), 100+64) // marker overhead
}

func TestInvokeParsesResultFromFakeWorker(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-worker.sh")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
echo '{"task_id":"'"$2"'","run_id":"'"$4"'","status":"completed","verify":{"command":"verify.sh","exit_code":0}}'
`), 0o755))

	runsDir := filepath.Join(dir, "runs")
	d := NewDriver(Config{Backend: "claude", Command: script}, runsDir)

	record, err := d.Invoke(context.Background(), "t1", "run-abc", dir, "")
	require.NoError(t, err)
	require.NotNil(t, record.Result)
	assert.Equal(t, "completed", record.Result.Status)
	assert.Equal(t, "run-abc", record.Result.RunID)

	_, statErr := os.Stat(filepath.Join(runsDir, "run-abc.json"))
	assert.NoError(t, statErr)
}

func TestInvokePipesBriefToWorkerStdin(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "echo-stdin-worker.sh")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
brief=$(cat)
echo '{"task_id":"'"$2"'","run_id":"'"$4"'","status":"completed","summary":"'"$brief"'"}'
`), 0o755))

	d := NewDriver(Config{Backend: "claude", Command: script}, filepath.Join(dir, "runs"))

	record, err := d.Invoke(context.Background(), "t1", "run-brief", dir, "do the thing")
	require.NoError(t, err)
	require.NotNil(t, record.Result)
	assert.Equal(t, "do the thing", record.Result.Summary)
}

func TestInvokeTimesOutAndSynthesizesFailure(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "slow-worker.sh")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
sleep 5
`), 0o755))

	d := NewDriver(Config{Backend: "claude", Command: script, Timeout: 100 * time.Millisecond}, filepath.Join(dir, "runs"))
	d.KillGrace = 100 * time.Millisecond

	record, err := d.Invoke(context.Background(), "t1", "run-timeout", dir, "")
	require.NoError(t, err)
	assert.True(t, record.TimedOut)
	require.NotNil(t, record.Result)
	assert.Equal(t, "failed", record.Result.Status)
	assert.Equal(t, "timeout", record.Result.Error)
}

func TestInvokeTerminatesProcessGroupOnContextCancellation(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "slow-worker.sh")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
sleep 5
`), 0o755))

	d := NewDriver(Config{Backend: "claude", Command: script}, filepath.Join(dir, "runs"))
	d.KillGrace = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var record *RunRecord
	var err error
	go func() {
		record, err = d.Invoke(ctx, "t1", "run-cancel", dir, "")
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Invoke did not return after context cancellation")
	}

	require.NoError(t, err)
	require.NotNil(t, record.Result)
	assert.Equal(t, "failed", record.Result.Status)
}

func TestInvokeSynthesizesFailureWhenBinaryMissing(t *testing.T) {
	dir := t.TempDir()
	d := NewDriver(Config{Backend: "claude", Command: filepath.Join(dir, "does-not-exist")}, filepath.Join(dir, "runs"))

	record, err := d.Invoke(context.Background(), "t1", "run-missing", dir, "")
	require.NoError(t, err, "driver never returns an error for worker misbehavior")
	require.NotNil(t, record.Result)
	assert.Equal(t, "failed", record.Result.Status)
}
