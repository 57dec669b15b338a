// Package statemachine implements the pure transition function of
// SPEC_FULL.md §4.C: (task, event) -> (new task, error). It never touches
// the filesystem, a clock, or a lock; internal/lease and internal/supervisor
// call Apply and hand the clock-stamped result to internal/store.
package statemachine

import "time"

// Event is the sum type of everything that can move a task. The event
// carries whatever the guard for its transition needs to check.
type Event interface {
	eventMarker()
}

// ClaimEvent moves pending -> in_progress.
type ClaimEvent struct {
	ClaimedBy string
	RunID     string
	Now       time.Time
	LeaseTTL  time.Duration
}

// WorkerSuccessEvent moves in_progress -> completed, or -> failed if the
// verify gate (already run by the caller) rejected it.
type WorkerSuccessEvent struct {
	RunID      string
	VerifyCmd  string
	VerifyExit int
	VerifyOK   bool // exit_code == 0 or verify_required == false
	Evidence   string
	GitCommit  string
	GitBranch  string
	Summary    string
	Now        time.Time
}

// WorkerFailureEvent moves in_progress -> failed.
type WorkerFailureEvent struct {
	RunID string
	Error string
	Now   time.Time
}

// WorkerBlockEvent moves in_progress -> blocked.
type WorkerBlockEvent struct {
	RunID string
	Error string
	Now   time.Time
}

// LeaseExpiredEvent moves in_progress -> abandoned.
type LeaseExpiredEvent struct {
	Now time.Time
}

// RetryEvent moves failed or abandoned -> pending.
type RetryEvent struct {
	Now time.Time
}

// ExhaustEvent moves failed or abandoned -> blocked when the attempt cap is
// reached.
type ExhaustEvent struct {
	Now    time.Time
	Reason string
}

// HumanResumeEvent moves blocked -> pending.
type HumanResumeEvent struct {
	Now time.Time
}

// HumanCancelEvent moves blocked or pending -> canceled.
type HumanCancelEvent struct {
	Now time.Time
}

func (ClaimEvent) eventMarker()         {}
func (WorkerSuccessEvent) eventMarker() {}
func (WorkerFailureEvent) eventMarker() {}
func (WorkerBlockEvent) eventMarker()   {}
func (LeaseExpiredEvent) eventMarker()  {}
func (RetryEvent) eventMarker()         {}
func (ExhaustEvent) eventMarker()       {}
func (HumanResumeEvent) eventMarker()   {}
func (HumanCancelEvent) eventMarker()   {}
