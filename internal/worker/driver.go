package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aristath/orchestrator/internal/clock"
)

// Driver is the Worker Driver of §4.E: it owns spawning, output capture,
// timeout enforcement, and archiving for one worker invocation at a time
// (the supervisor never runs two workers concurrently, per §5). There is
// never more than one subprocess in flight, so Driver tracks it as a plain
// field rather than a pid-keyed registry.
type Driver struct {
	Config    Config
	RunsDir   string
	Clock     clock.Clock
	KillGrace time.Duration
	RingSize  int
}

// NewDriver returns a Driver with the teacher-grounded defaults: a 5 second
// SIGTERM grace period and an 8 MiB ring buffer per stream.
func NewDriver(cfg Config, runsDir string) *Driver {
	return &Driver{
		Config:    cfg,
		RunsDir:   runsDir,
		Clock:     clock.System{},
		KillGrace: 5 * time.Second,
		RingSize:  DefaultRingBufferSize,
	}
}

// Invoke spawns the worker subprocess once with --task-id/--run-id and
// workdir as cwd, waits for completion or timeout, and returns the archived
// RunRecord. It does not return an error for any form of worker
// misbehavior (crash, timeout, malformed output, failure to even start) —
// each of those is folded into RunRecord.Result per §4.E; Invoke only
// returns an error when it cannot archive the run at all.
//
// The event the caller builds from the returned RunRecord must carry
// run_id = runID (the id Invoke was called with), not whatever run_id the
// worker's JSON happened to report — that is what makes the state
// machine's run-id-mismatch guard equivalent to this component's
// "run-id confirmation" requirement, without a second store read here.
//
// brief is the rendered worker-brief prose (SPEC_FULL.md §9 "Scripted
// worker vs. controller"), piped to the subprocess's stdin verbatim. The
// driver never parses or validates it — it is opaque payload the caller
// composed; an empty brief just means the worker gets no stdin at all.
func (d *Driver) Invoke(ctx context.Context, taskID, runID, workdir, brief string) (*RunRecord, error) {
	started := d.Clock.Now()

	args := buildArgs(d.Config, taskID, runID)
	cmd := newCommand(ctx, d.Config.Command, args...)
	cmd.Dir = workdir
	if brief != "" {
		cmd.Stdin = strings.NewReader(brief)
	}

	stdoutBuf := newRingBuffer(d.RingSize)
	stderrBuf := newRingBuffer(d.RingSize)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return d.failedRecord(taskID, runID, started, fmt.Sprintf("failed to create stdout pipe: %v", err))
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return d.failedRecord(taskID, runID, started, fmt.Sprintf("failed to create stderr pipe: %v", err))
	}

	if err := cmd.Start(); err != nil {
		return d.failedRecord(taskID, runID, started, fmt.Sprintf("failed to start worker: %v", err))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); io.Copy(stdoutBuf, stdoutPipe) }()
	go func() { defer wg.Done(); io.Copy(stderrBuf, stderrPipe) }()

	waited := make(chan error, 1)
	go func() {
		wg.Wait()
		waited <- cmd.Wait()
	}()

	timedOut := false
	var waitErr error
	if d.Config.Timeout > 0 {
		select {
		case waitErr = <-waited:
		case <-ctx.Done():
			waitErr = d.terminateAndWait(cmd, waited)
		case <-time.After(d.Config.Timeout):
			timedOut = true
			waitErr = d.terminateAndWait(cmd, waited)
		}
	} else {
		select {
		case waitErr = <-waited:
		case <-ctx.Done():
			waitErr = d.terminateAndWait(cmd, waited)
		}
	}
	ended := d.Clock.Now()

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	record := &RunRecord{
		TaskID:    taskID,
		RunID:     runID,
		Backend:   d.Config.Backend,
		StartedAt: clock.ISO8601(started),
		EndedAt:   clock.ISO8601(ended),
		ExitCode:  exitCode,
		TimedOut:  timedOut,
		Stdout:    stdoutBuf.String(),
		Stderr:    stderrBuf.String(),
	}

	switch {
	case timedOut:
		record.Result = &ResultDocument{TaskID: taskID, RunID: runID, Status: "failed", Error: "timeout"}
	default:
		if doc := parseLastResult(stdoutBuf.Bytes()); doc != nil {
			record.Result = doc
		} else {
			reason := "no result document"
			if waitErr != nil {
				reason = fmt.Sprintf("no result document (process exit: %v)", waitErr)
			}
			record.Result = &ResultDocument{TaskID: taskID, RunID: runID, Status: "failed", Error: reason}
		}
	}

	if err := d.archive(record); err != nil {
		return record, fmt.Errorf("worker: archive run %s: %w", runID, err)
	}
	return record, nil
}

func (d *Driver) killGrace() time.Duration {
	if d.KillGrace > 0 {
		return d.KillGrace
	}
	return 5 * time.Second
}

// terminateAndWait runs the SIGTERM-then-SIGKILL sequence of §4.E against
// cmd's whole process group and blocks for cmd.Wait's result on waited.
// Shared by the timeout path and by ctx cancellation (supervisor shutdown
// via internal/control), since both need the same escalation once the
// in-flight worker must come down.
func (d *Driver) terminateAndWait(cmd *exec.Cmd, waited <-chan error) error {
	terminateProcessGroup(cmd, syscall.SIGTERM)
	select {
	case err := <-waited:
		return err
	case <-time.After(d.killGrace()):
		terminateProcessGroup(cmd, syscall.SIGKILL)
		return <-waited
	}
}

func (d *Driver) failedRecord(taskID, runID string, started time.Time, reason string) (*RunRecord, error) {
	record := &RunRecord{
		TaskID:    taskID,
		RunID:     runID,
		Backend:   d.Config.Backend,
		StartedAt: clock.ISO8601(started),
		EndedAt:   clock.ISO8601(d.Clock.Now()),
		Result:    &ResultDocument{TaskID: taskID, RunID: runID, Status: "failed", Error: reason},
	}
	if err := d.archive(record); err != nil {
		return record, fmt.Errorf("worker: archive run %s: %w", runID, err)
	}
	return record, nil
}

func (d *Driver) archive(record *RunRecord) error {
	if d.RunsDir == "" {
		return nil
	}
	if err := os.MkdirAll(d.RunsDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(d.RunsDir, record.RunID+".json")
	return os.WriteFile(path, data, 0o644)
}

// buildArgs shapes the invocation per backend, keeping the teacher's
// three-adapter distinction (claude/codex/goose have different flag
// conventions) while collapsing every adapter to the one-shot contract of
// §4.E: every invocation carries --task-id/--run-id and is a brand-new
// process, never a --resume/--session-id continuation.
func buildArgs(cfg Config, taskID, runID string) []string {
	var args []string
	switch cfg.Backend {
	case "codex":
		args = append(args, "exec")
	case "goose":
		args = append(args, "run")
	}

	args = append(args, "--task-id", taskID, "--run-id", runID)
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	args = append(args, cfg.Args...)
	return args
}
