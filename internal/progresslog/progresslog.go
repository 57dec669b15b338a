// Package progresslog implements the Progress Log of SPEC_FULL.md §4.G: an
// append-only, never-rewritten text file carrying one timestamped block per
// state transition or supervisor-level event. Block shape is grounded in
// original_source/lib/progress_logger.py, translated from its Chinese field
// labels into English prose — the labels are an artifact of the distilled
// program's source language, not part of any wire contract this log has to
// honor.
package progresslog

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const separator = "============================================================"

// Writer appends blocks to one progress.txt. Close and rotation are
// deliberately absent (§9 open question: append-only, external rotation
// only).
type Writer struct {
	path string
}

// New returns a Writer appending to path, created if it does not exist.
func New(path string) *Writer {
	return &Writer{path: path}
}

func (w *Writer) append(block string) error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(block + "\n")
	return err
}

func timestamp(now time.Time) string {
	return now.UTC().Format("2006-01-02 15:04:05 UTC")
}

// LogClaim records a pending -> in_progress transition.
func (w *Writer) LogClaim(now time.Time, taskID, runID, description string, attempt, maxAttempts int) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", separator)
	fmt.Fprintf(&b, "[%s] CLAIM: %s\n", timestamp(now), taskID)
	fmt.Fprintf(&b, "run id: %s\n", runID)
	fmt.Fprintf(&b, "attempt: %d/%d\n", attempt, maxAttempts)
	fmt.Fprintf(&b, "state: pending -> in_progress\n")
	fmt.Fprintf(&b, "description: %s\n", description)
	fmt.Fprintf(&b, "action: supervisor claimed the task and spawned a worker\n")
	return w.append(b.String())
}

// LogComplete records an in_progress -> completed transition.
func (w *Writer) LogComplete(now time.Time, taskID, runID, summary, verifyCommand string, verifyExitCode int, verifyEvidence, gitCommit string, duration time.Duration) error {
	gitInfo := "git commit: none"
	if gitCommit != "" {
		gitInfo = "git commit: " + gitCommit
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] COMPLETE: %s\n", timestamp(now), taskID)
	fmt.Fprintf(&b, "run id: %s\n", runID)
	fmt.Fprintf(&b, "state: in_progress -> completed\n")
	fmt.Fprintf(&b, "verify command: %s\n", verifyCommand)
	fmt.Fprintf(&b, "verify result: exit_code=%d\n", verifyExitCode)
	fmt.Fprintf(&b, "verify evidence: %s\n", verifyEvidence)
	fmt.Fprintf(&b, "%s\n", gitInfo)
	fmt.Fprintf(&b, "summary: %s\n", summary)
	fmt.Fprintf(&b, "duration: %.1fs\n", duration.Seconds())
	fmt.Fprintf(&b, "outcome: success\n")
	fmt.Fprintf(&b, "needs human: no\n")
	return w.append(b.String())
}

// LogFail records an in_progress -> failed transition.
func (w *Writer) LogFail(now time.Time, taskID, runID, errMsg string, attempt, maxAttempts int, duration time.Duration, canRetry bool) error {
	nextStep := "automatic retry"
	needsHuman := "no"
	if !canRetry {
		nextStep = "requires human intervention"
		needsHuman = "yes"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] FAIL: %s\n", timestamp(now), taskID)
	fmt.Fprintf(&b, "run id: %s\n", runID)
	fmt.Fprintf(&b, "attempt: %d/%d\n", attempt, maxAttempts)
	fmt.Fprintf(&b, "state: in_progress -> failed\n")
	fmt.Fprintf(&b, "error: %s\n", errMsg)
	fmt.Fprintf(&b, "duration: %.1fs\n", duration.Seconds())
	fmt.Fprintf(&b, "outcome: failure\n")
	fmt.Fprintf(&b, "next step: %s\n", nextStep)
	fmt.Fprintf(&b, "needs human: %s\n", needsHuman)
	return w.append(b.String())
}

// LogBlock records an in_progress -> blocked transition, plus the Human
// Help Packet §4.G requires for every blocked transition.
func (w *Writer) LogBlock(now time.Time, taskID, runID, reason string, duration time.Duration) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] BLOCK: %s\n", timestamp(now), taskID)
	fmt.Fprintf(&b, "run id: %s\n", runID)
	fmt.Fprintf(&b, "state: in_progress -> blocked\n")
	fmt.Fprintf(&b, "reason: %s\n", reason)
	fmt.Fprintf(&b, "duration: %.1fs\n", duration.Seconds())
	fmt.Fprintf(&b, "outcome: blocked\n")
	fmt.Fprintf(&b, "next step: awaiting human intervention\n")
	fmt.Fprintf(&b, "needs human: yes\n")
	fmt.Fprintf(&b, "\n--- Human Help Packet ---\n")
	fmt.Fprintf(&b, "task id: %s\n", taskID)
	fmt.Fprintf(&b, "run id: %s\n", runID)
	fmt.Fprintf(&b, "block reason: %s\n", reason)
	fmt.Fprintf(&b, "see progress.txt and Task.json for detail\n")
	fmt.Fprintf(&b, "suggested actions:\n")
	fmt.Fprintf(&b, "1. resolve the blocking condition\n")
	fmt.Fprintf(&b, "2. set the task's status back to pending to retry\n")
	fmt.Fprintf(&b, "3. or set the task's status to canceled to skip it\n")
	fmt.Fprintf(&b, "--- End Packet ---\n")
	return w.append(b.String())
}

// LogAbandon records an in_progress -> abandoned transition (lease expiry).
func (w *Writer) LogAbandon(now time.Time, taskID, runID, reason string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ABANDON: %s\n", timestamp(now), taskID)
	fmt.Fprintf(&b, "run id: %s\n", runID)
	fmt.Fprintf(&b, "state: in_progress -> abandoned\n")
	fmt.Fprintf(&b, "reason: %s\n", reason)
	fmt.Fprintf(&b, "action: supervisor reclaimed an expired lease\n")
	fmt.Fprintf(&b, "next step: automatic retry if attempts remain\n")
	return w.append(b.String())
}

// LogReclaim records the lease-reclaim sweep's outcome for one task.
func (w *Writer) LogReclaim(now time.Time, taskID, oldRunID string, newStatus string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] RECLAIM: %s\n", timestamp(now), taskID)
	fmt.Fprintf(&b, "previous run id: %s\n", oldRunID)
	fmt.Fprintf(&b, "action: reclaimed expired lease\n")
	fmt.Fprintf(&b, "new state: %s\n", newStatus)
	return w.append(b.String())
}

// LogStop records a graceful shutdown.
func (w *Writer) LogStop(now time.Time, reason string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", separator)
	fmt.Fprintf(&b, "[%s] STOP\n", timestamp(now))
	fmt.Fprintf(&b, "reason: %s\n", reason)
	fmt.Fprintf(&b, "%s\n", separator)
	return w.append(b.String())
}

// LogPause records entering the PAUSE polling loop.
func (w *Writer) LogPause(now time.Time, reason string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] PAUSE\n", timestamp(now))
	fmt.Fprintf(&b, "reason: %s\n", reason)
	fmt.Fprintf(&b, "action: entering polling sleep until the PAUSE file is removed\n")
	return w.append(b.String())
}

// LogResume records leaving the PAUSE polling loop.
func (w *Writer) LogResume(now time.Time) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] RESUME\n", timestamp(now))
	fmt.Fprintf(&b, "action: PAUSE file removed, resuming execution\n")
	return w.append(b.String())
}

// StartupConfig is the subset of Config surfaced in the STARTUP block.
type StartupConfig struct {
	LeaseTTLSeconds int
	MaxAttempts     int
	VerifyRequired  bool
	TimeoutSeconds  int
}

// LogStartup records the supervisor starting a run.
func (w *Writer) LogStartup(now time.Time, supervisorID string, cfg StartupConfig) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", separator)
	fmt.Fprintf(&b, "[%s] STARTUP\n", timestamp(now))
	fmt.Fprintf(&b, "supervisor id: %s\n", supervisorID)
	fmt.Fprintf(&b, "config:\n")
	fmt.Fprintf(&b, "  - lease_ttl_seconds: %d\n", cfg.LeaseTTLSeconds)
	fmt.Fprintf(&b, "  - max_attempts: %d\n", cfg.MaxAttempts)
	fmt.Fprintf(&b, "  - verify_required: %t\n", cfg.VerifyRequired)
	fmt.Fprintf(&b, "  - timeout: %d\n", cfg.TimeoutSeconds)
	fmt.Fprintf(&b, "%s\n", separator)
	return w.append(b.String())
}

// LogRunIDMismatch records the §4.C hard-rejection path.
func (w *Writer) LogRunIDMismatch(now time.Time, taskID, expectedRunID, actualRunID string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] RUN_ID_MISMATCH: %s\n", timestamp(now), taskID)
	fmt.Fprintf(&b, "expected run id: %s\n", expectedRunID)
	fmt.Fprintf(&b, "actual run id: %s\n", actualRunID)
	fmt.Fprintf(&b, "action: rejected the worker's result, task state unchanged\n")
	fmt.Fprintf(&b, "reason: possible stale worker or replay\n")
	return w.append(b.String())
}

// LogIntakeStart records the Intake Processor beginning work on one
// requirement document.
func (w *Writer) LogIntakeStart(now time.Time, runID, reqID, path string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", separator)
	fmt.Fprintf(&b, "[%s] INTAKE_START: %s\n", timestamp(now), reqID)
	fmt.Fprintf(&b, "run id: %s\n", runID)
	fmt.Fprintf(&b, "document: %s\n", path)
	fmt.Fprintf(&b, "action: parsing and validating requirement document\n")
	return w.append(b.String())
}

// LogIntakeComplete records a requirement document committed successfully.
func (w *Writer) LogIntakeComplete(now time.Time, runID, reqID string, tasksAdded []string, verifyExitCode int, gitCommit string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] INTAKE_COMPLETE: %s\n", timestamp(now), reqID)
	fmt.Fprintf(&b, "run id: %s\n", runID)
	fmt.Fprintf(&b, "tasks added: %s\n", strings.Join(tasksAdded, ", "))
	fmt.Fprintf(&b, "gate verify exit code: %d\n", verifyExitCode)
	fmt.Fprintf(&b, "git commit: %s\n", gitCommit)
	fmt.Fprintf(&b, "outcome: committed\n")
	fmt.Fprintf(&b, "%s\n", separator)
	return w.append(b.String())
}

// LogIntakeFail records a requirement document rejected or rolled back.
func (w *Writer) LogIntakeFail(now time.Time, runID, reqID, reason string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] INTAKE_FAIL: %s\n", timestamp(now), reqID)
	fmt.Fprintf(&b, "run id: %s\n", runID)
	fmt.Fprintf(&b, "reason: %s\n", reason)
	fmt.Fprintf(&b, "outcome: rejected, TaskFile left untouched\n")
	fmt.Fprintf(&b, "needs human: yes\n")
	fmt.Fprintf(&b, "%s\n", separator)
	return w.append(b.String())
}

// LogVerifyFail records the Verification Gate downgrading a reported
// success to failed.
func (w *Writer) LogVerifyFail(now time.Time, taskID, runID, verifyCommand string, exitCode int, evidence string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] VERIFY_FAIL: %s\n", timestamp(now), taskID)
	fmt.Fprintf(&b, "run id: %s\n", runID)
	fmt.Fprintf(&b, "verify command: %s\n", verifyCommand)
	fmt.Fprintf(&b, "exit code: %d\n", exitCode)
	fmt.Fprintf(&b, "evidence: %s\n", evidence)
	fmt.Fprintf(&b, "action: refused completed, downgraded to failed\n")
	return w.append(b.String())
}

// LogRetention records one Retention Manager sweep (§4.J). Supplemented:
// spec.md has no original_source counterpart to translate, since the Python
// programs never rotated runs/ themselves.
func (w *Writer) LogRetention(now time.Time, deletedRunIDs []string, skippedInProgress []string, bytesFreed int64) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", separator)
	fmt.Fprintf(&b, "[%s] RETENTION_SWEEP\n", timestamp(now))
	fmt.Fprintf(&b, "deleted: %s\n", strings.Join(deletedRunIDs, ", "))
	if len(skippedInProgress) > 0 {
		fmt.Fprintf(&b, "skipped (in_progress): %s\n", strings.Join(skippedInProgress, ", "))
	}
	fmt.Fprintf(&b, "bytes freed: %d\n", bytesFreed)
	return w.append(b.String())
}
