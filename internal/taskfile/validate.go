package taskfile

import (
	"fmt"
	"strings"

	"github.com/gammazero/toposort"
)

var validStatuses = map[Status]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusFailed:     true,
	StatusBlocked:    true,
	StatusAbandoned:  true,
	StatusCanceled:   true,
}

var validPriorities = map[Priority]bool{
	PriorityP0: true,
	PriorityP1: true,
	PriorityP2: true,
	"":         true, // defaults to P1
}

// Validate checks every invariant of §3 against a proposed TaskFile. It is
// called from internal/store before any byte is written; a non-nil error
// must leave the prior committed file untouched.
func Validate(tf *TaskFile) error {
	if tf == nil {
		return &InvariantViolation{Invariant: "3.nil", Detail: "task file is nil"}
	}

	seen := make(map[string]bool, len(tf.Tasks))
	for _, t := range tf.Tasks {
		if t.ID == "" {
			return &InvariantViolation{Invariant: "3.id", Detail: "task has empty id"}
		}
		if seen[t.ID] {
			return &InvariantViolation{Invariant: "3.id", TaskID: t.ID, Detail: "duplicate task id"}
		}
		seen[t.ID] = true

		if !validStatuses[t.Status] {
			return &InvariantViolation{Invariant: "3.status", TaskID: t.ID, Detail: fmt.Sprintf("unknown status %q", t.Status)}
		}
		if !validPriorities[t.Priority] {
			return &InvariantViolation{Invariant: "3.priority", TaskID: t.ID, Detail: fmt.Sprintf("priority must be P0, P1 or P2, got %q", t.Priority)}
		}
	}

	for _, t := range tf.Tasks {
		for _, dep := range t.DependsOn {
			if !seen[dep] {
				return &InvariantViolation{Invariant: "3.6", TaskID: t.ID, Detail: fmt.Sprintf("depends_on references unknown task %q", dep)}
			}
		}
	}
	if err := checkAcyclic(tf.Tasks); err != nil {
		return err
	}

	maxAttempts := tf.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultConfig().MaxAttempts
	}

	for _, t := range tf.Tasks {
		if err := validateTask(&t, tf.Config.VerifyRequired, maxAttempts); err != nil {
			return err
		}
	}

	return nil
}

func validateTask(t *TaskRecord, verifyRequired bool, maxAttempts int) error {
	switch t.Status {
	case StatusInProgress:
		if t.Claim == nil {
			return &InvariantViolation{Invariant: "3.3", TaskID: t.ID, Detail: "in_progress task has no claim"}
		}
		if !t.Claim.LeaseExpiresAt.After(t.Claim.ClaimedAt) {
			return &InvariantViolation{Invariant: "3.3", TaskID: t.ID, Detail: "claim lease_expires_at must be after claimed_at"}
		}
	case StatusCompleted:
		if verifyRequired {
			if t.Result == nil || t.Result.Verify == nil || t.Result.Verify.ExitCode != 0 {
				return &InvariantViolation{Invariant: "3.1", TaskID: t.ID, Detail: "completed task missing a zero verify exit code"}
			}
		}
	case StatusPending:
		if len(t.History) >= maxAttempts {
			return &InvariantViolation{Invariant: "3.7", TaskID: t.ID, Detail: "history length reached max_attempts; task must be blocked, not pending"}
		}
	}

	if len(t.History) > maxAttempts {
		return &InvariantViolation{Invariant: "3.7", TaskID: t.ID, Detail: fmt.Sprintf("history length %d exceeds max_attempts %d", len(t.History), maxAttempts)}
	}

	lastAttempt := 0
	for i, h := range t.History {
		if h.Attempt < lastAttempt {
			return &InvariantViolation{Invariant: "3.4", TaskID: t.ID, Detail: fmt.Sprintf("history[%d].attempt %d is less than preceding attempt %d", i, h.Attempt, lastAttempt)}
		}
		lastAttempt = h.Attempt
	}
	if t.Claim != nil {
		// Rejected entries recorded against the current claim (a stale run
		// id reporting in) do not end the attempt, so they are not counted.
		prior := 0
		for _, h := range t.History {
			if h.Status != StatusRejected || h.Attempt != t.Claim.Attempt {
				prior++
			}
		}
		if t.Claim.Attempt != prior+1 {
			return &InvariantViolation{Invariant: "3.4", TaskID: t.ID, Detail: fmt.Sprintf("claim.attempt %d must equal history.length+1 (%d)", t.Claim.Attempt, prior+1)}
		}
	}

	return nil
}

// checkAcyclic reuses the teacher's gammazero/toposort cycle-detection
// pattern over the dependency edges (dep -> task).
func checkAcyclic(tasks []TaskRecord) error {
	var edges []toposort.Edge
	for _, t := range tasks {
		if len(t.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, t.ID})
			continue
		}
		for _, dep := range t.DependsOn {
			edges = append(edges, toposort.Edge{dep, t.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return &InvariantViolation{Invariant: "3.6", Detail: fmt.Sprintf("depends_on contains a cycle: %v", err)}
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	if len(order) != len(tasks) {
		missing := make([]string, 0)
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		for _, t := range tasks {
			if !found[t.ID] {
				missing = append(missing, t.ID)
			}
		}
		return &InvariantViolation{Invariant: "3.6", Detail: fmt.Sprintf("dependency graph lost tasks: %s", strings.Join(missing, ", "))}
	}
	return nil
}
