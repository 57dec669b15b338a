package config

import (
	"path/filepath"

	"github.com/aristath/orchestrator/internal/taskfile"
)

// DefaultConfig returns the built-in configuration: the three backends the
// worker driver knows how to spawn, the conventional filesystem layout, and
// taskfile.DefaultConfig()'s tunables.
func DefaultConfig() *Config {
	return &Config{
		Paths: Paths{
			TaskFile:     "Task.json",
			InboxDir:     "inbox",
			RunsDir:      "runs",
			ProgressLog:  "progress.txt",
			ArchiveIndex: filepath.Join(".orchestrator", "archive.db"),
			StatusFile:   "status.md",
			AlertFile:    "ALERT.txt",
			ClaudeMD:     "CLAUDE.md",
			ControlDir:   ".",

			BriefTemplate: filepath.Join("templates", "worker_brief.md.tmpl"),
		},
		Providers: map[string]ProviderConfig{
			"claude": {Command: "claude", Type: "claude"},
			"codex":  {Command: "codex", Type: "codex"},
			"goose":  {Command: "goose", Type: "goose"},
		},
		Task: taskfile.DefaultConfig(),
	}
}
