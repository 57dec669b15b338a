package statemachine

import (
	"fmt"
	"time"

	"github.com/aristath/orchestrator/internal/clock"
	"github.com/aristath/orchestrator/internal/taskfile"
)

// Apply implements the transition table of SPEC_FULL.md §4.C. It never
// mutates task; it returns a new record or, for an illegal transition or a
// run-id mismatch, an error alongside the unchanged-in-substance task (the
// mismatch case still carries one appended rejected history entry).
//
// Dependency eligibility ("deps all completed") is checked by
// internal/lease before a ClaimEvent is ever constructed; Apply only
// enforces the guards that are local to the single task record.
func Apply(task *taskfile.TaskRecord, ev Event, maxAttempts int) (*taskfile.TaskRecord, error) {
	if task == nil {
		return nil, fmt.Errorf("statemachine: nil task")
	}

	switch e := ev.(type) {
	case ClaimEvent:
		return applyClaim(task, e, maxAttempts)
	case WorkerSuccessEvent:
		return applyWorkerSuccess(task, e)
	case WorkerFailureEvent:
		return applyWorkerFailure(task, e)
	case WorkerBlockEvent:
		return applyWorkerBlock(task, e)
	case LeaseExpiredEvent:
		return applyLeaseExpired(task, e)
	case RetryEvent:
		return applyRetry(task, e, maxAttempts)
	case ExhaustEvent:
		return applyExhaust(task, e, maxAttempts)
	case HumanResumeEvent:
		return applyHumanResume(task, e)
	case HumanCancelEvent:
		return applyHumanCancel(task, e)
	default:
		return nil, fmt.Errorf("statemachine: unknown event type %T", ev)
	}
}

func illegal(task *taskfile.TaskRecord, event string) error {
	return &IllegalTransition{TaskID: task.ID, From: string(task.Status), Event: event}
}

func applyClaim(task *taskfile.TaskRecord, e ClaimEvent, maxAttempts int) (*taskfile.TaskRecord, error) {
	if task.Status != taskfile.StatusPending {
		return nil, illegal(task, "claim")
	}
	if len(task.History) >= maxAttempts {
		return nil, illegal(task, "claim")
	}
	out := task.Clone()
	out.Status = taskfile.StatusInProgress
	out.Claim = &taskfile.Claim{
		ClaimedBy:      e.ClaimedBy,
		RunID:          e.RunID,
		ClaimedAt:      e.Now,
		LeaseExpiresAt: e.Now.Add(e.LeaseTTL),
		Attempt:        len(task.History) + 1,
	}
	return out, nil
}

// checkRunID returns a task carrying one appended rejected history entry
// (the hard-rejection side effect) and a RunIDMismatch error when the
// event's run id doesn't match the task's current claim. A nil return
// means the caller should proceed with the real transition.
func checkRunID(task *taskfile.TaskRecord, eventRunID string, now time.Time) (*taskfile.TaskRecord, error) {
	if task.Claim == nil || task.Claim.RunID == eventRunID {
		return nil, nil
	}
	rejected := task.Clone()
	rejected.History = append(rejected.History, taskfile.HistoryEntry{
		Attempt: task.Claim.Attempt,
		RunID:   eventRunID,
		Status:  taskfile.StatusRejected,
		Error:   fmt.Sprintf("run id mismatch: claim has %q, event carries %q", task.Claim.RunID, eventRunID),
		EndedAt: clock.ISO8601(now),
	})
	return rejected, &RunIDMismatch{TaskID: task.ID, Expected: task.Claim.RunID, Got: eventRunID}
}

func applyWorkerSuccess(task *taskfile.TaskRecord, e WorkerSuccessEvent) (*taskfile.TaskRecord, error) {
	if task.Status != taskfile.StatusInProgress {
		return nil, illegal(task, "worker_success")
	}
	if rejected, err := checkRunID(task, e.RunID, e.Now); err != nil {
		return rejected, err
	}

	attempt := task.Claim.Attempt
	out := task.Clone()
	out.Claim = nil

	verify := &taskfile.VerifyResult{Command: e.VerifyCmd, ExitCode: e.VerifyExit, Evidence: e.Evidence}
	if e.VerifyOK {
		out.Status = taskfile.StatusCompleted
		out.Result = &taskfile.Result{Verify: verify, Summary: e.Summary}
		if e.GitCommit != "" || e.GitBranch != "" {
			out.Result.Git = &taskfile.GitResult{Commit: e.GitCommit, Branch: e.GitBranch}
		}
		out.History = append(out.History, taskfile.HistoryEntry{
			Attempt: attempt,
			RunID:   e.RunID,
			Status:  taskfile.StatusCompleted,
			EndedAt: clock.ISO8601(e.Now),
		})
		return out, nil
	}

	out.Status = taskfile.StatusFailed
	out.Result = &taskfile.Result{Verify: verify, Summary: e.Summary}
	out.History = append(out.History, taskfile.HistoryEntry{
		Attempt: attempt,
		RunID:   e.RunID,
		Status:  taskfile.StatusFailed,
		Error:   "verify_failed",
		EndedAt: clock.ISO8601(e.Now),
	})
	return out, nil
}

func applyWorkerFailure(task *taskfile.TaskRecord, e WorkerFailureEvent) (*taskfile.TaskRecord, error) {
	if task.Status != taskfile.StatusInProgress {
		return nil, illegal(task, "worker_failure")
	}
	if rejected, err := checkRunID(task, e.RunID, e.Now); err != nil {
		return rejected, err
	}
	attempt := task.Claim.Attempt
	out := task.Clone()
	out.Claim = nil
	out.Status = taskfile.StatusFailed
	out.History = append(out.History, taskfile.HistoryEntry{
		Attempt: attempt,
		RunID:   e.RunID,
		Status:  taskfile.StatusFailed,
		Error:   e.Error,
		EndedAt: clock.ISO8601(e.Now),
	})
	return out, nil
}

func applyWorkerBlock(task *taskfile.TaskRecord, e WorkerBlockEvent) (*taskfile.TaskRecord, error) {
	if task.Status != taskfile.StatusInProgress {
		return nil, illegal(task, "worker_block")
	}
	if rejected, err := checkRunID(task, e.RunID, e.Now); err != nil {
		return rejected, err
	}
	attempt := task.Claim.Attempt
	out := task.Clone()
	out.Claim = nil
	out.Status = taskfile.StatusBlocked
	out.History = append(out.History, taskfile.HistoryEntry{
		Attempt: attempt,
		RunID:   e.RunID,
		Status:  taskfile.StatusBlocked,
		Error:   e.Error,
		EndedAt: clock.ISO8601(e.Now),
	})
	return out, nil
}

func applyLeaseExpired(task *taskfile.TaskRecord, e LeaseExpiredEvent) (*taskfile.TaskRecord, error) {
	if task.Status != taskfile.StatusInProgress {
		return nil, illegal(task, "lease_expired")
	}
	if task.Claim == nil || e.Now.Before(task.Claim.LeaseExpiresAt) {
		return nil, illegal(task, "lease_expired")
	}
	attempt := task.Claim.Attempt
	runID := task.Claim.RunID
	out := task.Clone()
	out.Claim = nil
	out.Status = taskfile.StatusAbandoned
	out.History = append(out.History, taskfile.HistoryEntry{
		Attempt: attempt,
		RunID:   runID,
		Status:  taskfile.StatusAbandoned,
		Error:   "lease expired",
		EndedAt: clock.ISO8601(e.Now),
	})
	return out, nil
}

func applyRetry(task *taskfile.TaskRecord, e RetryEvent, maxAttempts int) (*taskfile.TaskRecord, error) {
	if task.Status != taskfile.StatusFailed && task.Status != taskfile.StatusAbandoned {
		return nil, illegal(task, "retry")
	}
	if len(task.History) >= maxAttempts {
		return nil, illegal(task, "retry")
	}
	out := task.Clone()
	out.Status = taskfile.StatusPending
	return out, nil
}

func applyExhaust(task *taskfile.TaskRecord, e ExhaustEvent, maxAttempts int) (*taskfile.TaskRecord, error) {
	if task.Status != taskfile.StatusFailed && task.Status != taskfile.StatusAbandoned {
		return nil, illegal(task, "exhaust")
	}
	if len(task.History) < maxAttempts {
		return nil, illegal(task, "exhaust")
	}
	out := task.Clone()
	out.Status = taskfile.StatusBlocked
	if e.Reason != "" {
		out.Notes = e.Reason
	}
	return out, nil
}

func applyHumanResume(task *taskfile.TaskRecord, e HumanResumeEvent) (*taskfile.TaskRecord, error) {
	if task.Status != taskfile.StatusBlocked {
		return nil, illegal(task, "human_resume")
	}
	out := task.Clone()
	out.Status = taskfile.StatusPending
	return out, nil
}

func applyHumanCancel(task *taskfile.TaskRecord, e HumanCancelEvent) (*taskfile.TaskRecord, error) {
	if task.Status != taskfile.StatusBlocked && task.Status != taskfile.StatusPending {
		return nil, illegal(task, "human_cancel")
	}
	out := task.Clone()
	out.Status = taskfile.StatusCanceled
	return out, nil
}
