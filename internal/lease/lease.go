// Package lease implements the Lease Manager of SPEC_FULL.md §4.D: claiming
// the next eligible task, and sweeping expired leases back to a
// retry-eligible state.
package lease

import (
	"errors"
	"sort"
	"time"

	"github.com/aristath/orchestrator/internal/clock"
	"github.com/aristath/orchestrator/internal/statemachine"
	"github.com/aristath/orchestrator/internal/store"
	"github.com/aristath/orchestrator/internal/taskfile"
)

// ErrNoEligibleTask is returned by Claim when nothing is currently
// claimable: every task is terminal, in_progress, blocked, or waiting on an
// incomplete dependency.
var ErrNoEligibleTask = errors.New("lease: no eligible task")

// Manager wraps a Store with the claim/reclaim protocol.
type Manager struct {
	Store        *store.Store
	Clock        clock.Clock
	SupervisorID string
}

// New returns a Manager bound to the given store.
func New(s *store.Store, supervisorID string) *Manager {
	return &Manager{Store: s, Clock: clock.System{}, SupervisorID: supervisorID}
}

// SelectEligible returns the index of the task that should be claimed next:
// status pending, every dependency completed, lowest declared priority
// (P0 < P1 < P2) wins, ties broken by declaration order. Returns -1 if none
// qualify.
func SelectEligible(tasks []taskfile.TaskRecord) int {
	completed := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.Status == taskfile.StatusCompleted {
			completed[t.ID] = true
		}
	}

	candidates := make([]int, 0, len(tasks))
	for i, t := range tasks {
		if t.Status != taskfile.StatusPending {
			continue
		}
		ready := true
		for _, dep := range t.DependsOn {
			if !completed[dep] {
				ready = false
				break
			}
		}
		if ready {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return -1
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return tasks[candidates[a]].EffectivePriority().Rank() < tasks[candidates[b]].EffectivePriority().Rank()
	})
	return candidates[0]
}

// Claim selects the next eligible task and transitions it to in_progress,
// returning the claimed task and its fresh run id. ErrNoEligibleTask is
// returned (store left untouched) when nothing qualifies.
func (m *Manager) Claim(leaseTTL time.Duration, maxAttempts int) (*taskfile.TaskRecord, error) {
	type claimIntent struct {
		task  *taskfile.TaskRecord
		runID string
	}

	intent, err := m.Store.Mutate(func(tf *taskfile.TaskFile) (*taskfile.TaskFile, any, error) {
		idx := SelectEligible(tf.Tasks)
		if idx < 0 {
			return tf, nil, ErrNoEligibleTask
		}

		now := m.Clock.Now()
		runID := m.Clock.NewRunID()
		attempts := maxAttempts
		if attempts <= 0 {
			attempts = tf.Config.MaxAttempts
		}

		next, err := statemachine.Apply(&tf.Tasks[idx], statemachine.ClaimEvent{
			ClaimedBy: m.SupervisorID,
			RunID:     runID,
			Now:       now,
			LeaseTTL:  leaseTTL,
		}, attempts)
		if err != nil {
			return tf, nil, err
		}
		tf.Tasks[idx] = *next

		return tf, claimIntent{task: next, runID: runID}, nil
	})
	if err != nil {
		return nil, err
	}

	ci := intent.(claimIntent)
	return ci.task, nil
}

// sweepOutcome is what ReclaimSweep reports per reclaimed task, for the
// Progress Log.
type SweepOutcome struct {
	TaskID   string
	RunID    string
	NextStep taskfile.Status // pending (retry) or blocked (exhaust)
}

// ReclaimSweep converts every in_progress task whose lease has expired into
// abandoned, then immediately either pending (attempts remain) or blocked
// (attempts exhausted). Idempotent: a second call in immediate succession
// finds no more expired in_progress tasks and reports no outcomes.
func (m *Manager) ReclaimSweep(maxAttempts int) ([]SweepOutcome, error) {
	outcomes, err := m.Store.Mutate(func(tf *taskfile.TaskFile) (*taskfile.TaskFile, any, error) {
		now := m.Clock.Now()
		attempts := maxAttempts
		if attempts <= 0 {
			attempts = tf.Config.MaxAttempts
		}

		var swept []SweepOutcome
		for i := range tf.Tasks {
			t := &tf.Tasks[i]
			if t.Status != taskfile.StatusInProgress {
				continue
			}
			if t.Claim == nil || now.Before(t.Claim.LeaseExpiresAt) {
				continue
			}

			runID := t.Claim.RunID
			abandoned, err := statemachine.Apply(t, statemachine.LeaseExpiredEvent{Now: now}, attempts)
			if err != nil {
				return tf, nil, err
			}
			*t = *abandoned

			var next *taskfile.TaskRecord
			var nextStatus taskfile.Status
			if len(t.History) < attempts {
				next, err = statemachine.Apply(t, statemachine.RetryEvent{Now: now}, attempts)
				nextStatus = taskfile.StatusPending
			} else {
				next, err = statemachine.Apply(t, statemachine.ExhaustEvent{Now: now, Reason: "lease expired and attempts exhausted"}, attempts)
				nextStatus = taskfile.StatusBlocked
			}
			if err != nil {
				return tf, nil, err
			}
			*t = *next

			swept = append(swept, SweepOutcome{TaskID: t.ID, RunID: runID, NextStep: nextStatus})
		}
		return tf, swept, nil
	})
	if err != nil {
		return nil, err
	}
	return outcomes.([]SweepOutcome), nil
}
