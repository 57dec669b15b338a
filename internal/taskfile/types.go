// Package taskfile defines the persistent document the supervisor reads,
// mutates, and commits: the TaskFile and everything hanging off it.
package taskfile

import "time"

// Version is the only TaskFile schema version this supervisor understands.
const Version = "2.0"

// Status is a TaskRecord's position in the state machine of SPEC_FULL.md §4.C.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
	StatusAbandoned  Status = "abandoned"
	StatusCanceled   Status = "canceled"

	// StatusRejected only ever appears in a HistoryEntry, never as a
	// TaskRecord.Status: it records a run-id-mismatch hard rejection
	// (§4.C) without changing the task's actual state.
	StatusRejected Status = "rejected"
)

// Terminal reports whether status never transitions out (invariant 5).
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Priority is the scheduling tie-break key (§4.C "Tie-breaks in scheduling").
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
)

// Rank orders priorities lowest-first (P0 before P1 before P2).
func (p Priority) Rank() int {
	switch p {
	case PriorityP0:
		return 0
	case PriorityP2:
		return 2
	default:
		return 1
	}
}

// WorkerConfig names the external agent CLI the Worker Driver invokes as the
// opaque subprocess of §6. See SPEC_FULL.md §3.
type WorkerConfig struct {
	Backend string   `json:"backend" yaml:"backend" mapstructure:"backend"` // "claude", "codex", or "goose"
	Command string   `json:"command" yaml:"command" mapstructure:"command"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
	Model   string   `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`
}

// Config holds the tunables of §3. Tagged for both direct JSON persistence
// (the TaskFile itself) and mapstructure decoding (internal/config layers
// operator overrides from viper onto these same field names).
type Config struct {
	LeaseTTLSeconds int          `json:"lease_ttl_seconds" yaml:"lease_ttl_seconds" mapstructure:"lease_ttl_seconds"`
	MaxAttempts     int          `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
	VerifyRequired  bool         `json:"verify_required" yaml:"verify_required" mapstructure:"verify_required"`
	RetentionDays   int          `json:"retention_days" yaml:"retention_days" mapstructure:"retention_days"`
	MaxRunsMB       int          `json:"max_runs_mb" yaml:"max_runs_mb" mapstructure:"max_runs_mb"`
	MaxFailures     int          `json:"max_failures" yaml:"max_failures" mapstructure:"max_failures"`
	VerifyCommand   string       `json:"verify_command,omitempty" yaml:"verify_command,omitempty" mapstructure:"verify_command"`
	Worker          WorkerConfig `json:"worker,omitempty" yaml:"worker,omitempty" mapstructure:"worker"`
}

// DefaultConfig matches the defaults spec.md §3 prescribes.
func DefaultConfig() Config {
	return Config{
		LeaseTTLSeconds: 900,
		MaxAttempts:     3,
		VerifyRequired:  true,
		RetentionDays:   7,
		MaxRunsMB:       100,
		MaxFailures:     5,
		VerifyCommand:   "scripts/verify.sh",
		Worker: WorkerConfig{
			Backend: "claude",
			Command: "claude",
		},
	}
}

// Claim records which worker holds the lease on an in_progress task.
type Claim struct {
	ClaimedBy      string    `json:"claimed_by"`
	RunID          string    `json:"run_id"`
	ClaimedAt      time.Time `json:"claimed_at"`
	LeaseExpiresAt time.Time `json:"lease_expires_at"`
	Attempt        int       `json:"attempt"`
}

// Expired reports whether the claim's lease has passed, using now as the
// instant of comparison. lease_expires_at == now counts as expired.
func (c *Claim) Expired(now time.Time) bool {
	if c == nil {
		return true
	}
	return !now.Before(c.LeaseExpiresAt)
}

// VerifyResult captures the verification gate's evidence (§4.F).
type VerifyResult struct {
	Command  string `json:"command"`
	ExitCode int    `json:"exit_code"`
	Evidence string `json:"evidence,omitempty"`
}

// GitResult captures the worker-reported commit, if any.
type GitResult struct {
	Commit string `json:"commit,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// Result is written on in_progress -> completed, and written-through with
// failure evidence on in_progress -> failed/blocked.
type Result struct {
	Verify  *VerifyResult `json:"verify,omitempty"`
	Git     *GitResult    `json:"git,omitempty"`
	Summary string        `json:"summary,omitempty"`
}

// HistoryEntry is appended on every terminal transition out of in_progress.
type HistoryEntry struct {
	Attempt int    `json:"attempt"`
	RunID   string `json:"run_id"`
	Status  Status `json:"status"`
	Error   string `json:"error,omitempty"`
	EndedAt string `json:"ended_at"`
}

// TaskRecord is one unit of work (§3).
type TaskRecord struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Status      Status       `json:"status"`
	Priority    Priority     `json:"priority,omitempty"`
	DependsOn   []string     `json:"depends_on,omitempty"`
	WritesFiles []string     `json:"writes_files,omitempty"`
	Claim       *Claim       `json:"claim,omitempty"`
	Result      *Result      `json:"result,omitempty"`
	History     []HistoryEntry `json:"history,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	LastUpdate  string       `json:"last_update,omitempty"`
}

// EffectivePriority returns the task's declared priority, defaulting to P1.
func (t *TaskRecord) EffectivePriority() Priority {
	if t.Priority == "" {
		return PriorityP1
	}
	return t.Priority
}

// Clone returns a deep copy sufficient for all mutation paths in this
// module (state machine transitions never mutate a TaskRecord in place).
func (t *TaskRecord) Clone() *TaskRecord {
	if t == nil {
		return nil
	}
	cp := *t
	cp.DependsOn = append([]string(nil), t.DependsOn...)
	cp.WritesFiles = append([]string(nil), t.WritesFiles...)
	cp.History = append([]HistoryEntry(nil), t.History...)
	if t.Claim != nil {
		claim := *t.Claim
		cp.Claim = &claim
	}
	if t.Result != nil {
		result := *t.Result
		if t.Result.Verify != nil {
			v := *t.Result.Verify
			result.Verify = &v
		}
		if t.Result.Git != nil {
			g := *t.Result.Git
			result.Git = &g
		}
		cp.Result = &result
	}
	return &cp
}

// TaskFile is the single persistent document the Atomic Store guards.
type TaskFile struct {
	VersionField string       `json:"version"`
	LastModified string       `json:"last_modified"`
	Config       Config       `json:"config"`
	Tasks        []TaskRecord `json:"tasks"`
}

// Clone returns a deep copy of tf, used by callers (e.g. the Intake
// Processor) that need to hold on to a pre-mutation snapshot for rollback.
func (tf *TaskFile) Clone() *TaskFile {
	if tf == nil {
		return nil
	}
	cp := *tf
	cp.Tasks = make([]TaskRecord, len(tf.Tasks))
	for i := range tf.Tasks {
		cp.Tasks[i] = *tf.Tasks[i].Clone()
	}
	return &cp
}

// New returns an empty, valid TaskFile with default config.
func New() *TaskFile {
	return &TaskFile{
		VersionField: Version,
		Config:       DefaultConfig(),
		Tasks:        []TaskRecord{},
	}
}

// TaskByID returns a pointer into tf.Tasks, or nil if not found. The pointer
// aliases the slice backing array; callers mutating through it must not
// simultaneously append to tf.Tasks.
func (tf *TaskFile) TaskByID(id string) *TaskRecord {
	for i := range tf.Tasks {
		if tf.Tasks[i].ID == id {
			return &tf.Tasks[i]
		}
	}
	return nil
}

// CompletedIDs returns the set of task ids currently completed.
func (tf *TaskFile) CompletedIDs() map[string]bool {
	out := make(map[string]bool, len(tf.Tasks))
	for _, t := range tf.Tasks {
		if t.Status == StatusCompleted {
			out[t.ID] = true
		}
	}
	return out
}
