// Package worker implements the Worker Driver of SPEC_FULL.md §4.E: it
// spawns the opaque coding-agent subprocess, captures its output into
// size-capped ring buffers, and parses its terminal result document.
package worker

import (
	"fmt"
	"time"
)

// Config identifies which external agent CLI is invoked as the worker
// subprocess, per SPEC_FULL.md §3's expanded Config.worker.
type Config struct {
	Backend string        `json:"backend" yaml:"backend"` // claude | codex | goose
	Command string        `json:"command" yaml:"command"`
	Args    []string      `json:"args,omitempty" yaml:"args,omitempty"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"-" yaml:"-"`
}

// supportedBackends mirrors the teacher's three-adapter shape
// (internal/backend.New's claude/codex/goose switch), kept as the set of
// worker.command values this driver knows how to flag-shape.
var supportedBackends = map[string]bool{
	"claude": true,
	"codex":  true,
	"goose":  true,
}

// ValidateBackend rejects a Config naming a worker.backend this driver has
// no adapter shape for.
func ValidateBackend(cfg Config) error {
	if !supportedBackends[cfg.Backend] {
		return fmt.Errorf("worker: unsupported backend %q (want claude, codex, or goose)", cfg.Backend)
	}
	return nil
}

// VerifyPayload is the worker-reported half of §6's termination document;
// the driver parses it through but the Verification Gate (internal/verify)
// is the sole authority on whether it permits a completed transition.
type VerifyPayload struct {
	Command  string `json:"command,omitempty"`
	ExitCode int    `json:"exit_code"`
	Evidence string `json:"evidence,omitempty"`
}

// GitPayload is the worker-reported commit, if any.
type GitPayload struct {
	Commit string `json:"commit,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// ResultDocument is the tagged sum of §9's "Dynamic result shape" note: a
// strict set of required fields per variant, tolerant of unknown extras
// (encoding/json already ignores fields this struct doesn't declare).
type ResultDocument struct {
	TaskID     string         `json:"task_id"`
	RunID      string         `json:"run_id"`
	Status     string         `json:"status"` // completed | failed | blocked
	Verify     *VerifyPayload `json:"verify,omitempty"`
	Git        *GitPayload    `json:"git,omitempty"`
	Summary    string         `json:"summary,omitempty"`
	Error      string         `json:"error,omitempty"`
	NeedsHuman bool           `json:"needs_human,omitempty"`
}

// RunRecord is what gets archived to runs/<run_id>.json regardless of task
// outcome (§3 Lifecycles: "Archive record created per spawned worker,
// independent of task outcome").
type RunRecord struct {
	TaskID    string          `json:"task_id"`
	RunID     string          `json:"run_id"`
	Backend   string          `json:"backend"`
	StartedAt string          `json:"started_at"`
	EndedAt   string          `json:"ended_at"`
	ExitCode  int             `json:"exit_code"`
	TimedOut  bool            `json:"timed_out"`
	Stdout    string          `json:"stdout"`
	Stderr    string          `json:"stderr"`
	Result    *ResultDocument `json:"result"`
}
