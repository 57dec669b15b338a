// Package config layers operator overrides over the supervisor's built-in
// defaults, adapted from the teacher's internal/config: the provider/agent
// split survives as the Providers map (backend command lookup for
// internal/worker), while the richer merged shape — filesystem layout plus
// every taskfile.Config tunable — is loaded through
// github.com/spf13/viper + github.com/go-viper/mapstructure/v2 (SPEC_FULL.md
// §6) instead of the teacher's hand-rolled JSON loader.
package config

import "github.com/aristath/orchestrator/internal/taskfile"

// ProviderConfig defines a worker backend's CLI invocation: command, default
// args, and the backend type internal/worker dispatches on. Kept from the
// teacher's ProviderConfig verbatim in shape.
type ProviderConfig struct {
	Command string   `yaml:"command" mapstructure:"command"`
	Args    []string `yaml:"args,omitempty" mapstructure:"args"`
	Type    string   `yaml:"type" mapstructure:"type"`
}

// Paths locates every file and directory the supervisor's components read
// or write, all relative to the project root unless absolute.
type Paths struct {
	TaskFile     string `yaml:"task_file" mapstructure:"task_file"`
	InboxDir     string `yaml:"inbox_dir" mapstructure:"inbox_dir"`
	RunsDir      string `yaml:"runs_dir" mapstructure:"runs_dir"`
	ProgressLog  string `yaml:"progress_log" mapstructure:"progress_log"`
	ArchiveIndex string `yaml:"archive_index" mapstructure:"archive_index"`
	StatusFile   string `yaml:"status_file" mapstructure:"status_file"`
	AlertFile    string `yaml:"alert_file" mapstructure:"alert_file"`
	ClaudeMD     string `yaml:"claude_md" mapstructure:"claude_md"`
	ControlDir   string `yaml:"control_dir" mapstructure:"control_dir"`

	// BriefTemplate points at the text/template asset rendered into the
	// worker's stdin before each invocation (SPEC_FULL.md §9 "Scripted
	// worker vs. controller"). A missing file disables briefing: the
	// worker subprocess gets --task-id/--run-id alone, same as if this
	// were unset.
	BriefTemplate string `yaml:"brief_template" mapstructure:"brief_template"`
}

// Config is the root configuration structure for the supervisor.
type Config struct {
	// Paths is the filesystem layout of SPEC_FULL.md §6.
	Paths Paths `yaml:"paths" mapstructure:"paths"`

	// Providers maps a WorkerConfig.Backend name to its CLI invocation,
	// letting an operator repoint "claude"/"codex"/"goose" at a wrapper
	// script without touching Task.json.
	Providers map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`

	// Task holds the §3 tunables as loaded from the operator's config. The
	// supervisor does not read it: a brand-new Task.json starts from
	// taskfile.DefaultConfig(), and an existing file's own config section
	// is authoritative.
	Task taskfile.Config `yaml:"task" mapstructure:"task"`

	// LogFile enables rotating operational logging (§7) when set.
	LogFile string `yaml:"log_file" mapstructure:"log_file"`
	Verbose bool   `yaml:"verbose" mapstructure:"verbose"`
	Quiet   bool   `yaml:"quiet" mapstructure:"quiet"`
}
