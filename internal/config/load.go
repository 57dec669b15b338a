package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Load reads configuration from all available sources with layered
// precedence (highest first): environment variables (ORCHESTRATOR_* prefix),
// project config (.orchestrator/config.yaml), global config
// (~/.orchestrator/config.yaml), built-in defaults. Missing config files are
// not errors.
func Load() (*Config, error) {
	v := newViperInstance()

	if err := loadGlobalConfig(v); err != nil {
		return nil, err
	}
	if err := loadProjectConfig(v); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

// LoadFromPaths loads configuration from specific file paths, for tests and
// for a caller that wants to point at a non-conventional layout. Either path
// may be empty to skip that level.
func LoadFromPaths(projectConfigPath, globalConfigPath string) (*Config, error) {
	v := newViperInstance()

	if globalConfigPath != "" && fileExists(globalConfigPath) {
		v.SetConfigFile(globalConfigPath)
		if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) {
			return nil, fmt.Errorf("reading global config %s: %w", globalConfigPath, err)
		}
	}

	if projectConfigPath != "" && fileExists(projectConfigPath) {
		v.SetConfigFile(projectConfigPath)
		if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfigPath, err)
		}
	}

	return unmarshal(v)
}

func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ORCHESTRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
		),
	)
}

func isConfigNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var notFound viper.ConfigFileNotFoundError
	return stderrors.As(err, &notFound)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func loadGlobalConfig(v *viper.Viper) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil // no home dir; skip silently
	}
	path := filepath.Join(home, ".orchestrator", "config.yaml")
	if !fileExists(path) {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) {
		return fmt.Errorf("reading global config: %w", err)
	}
	return nil
}

func loadProjectConfig(v *viper.Viper) error {
	path := filepath.Join(".orchestrator", "config.yaml")
	if !fileExists(path) {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) {
		return fmt.Errorf("reading project config: %w", err)
	}
	return nil
}

// setDefaults registers DefaultConfig()'s values on v so that keys absent
// from every config file and environment variable still resolve.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("paths.task_file", d.Paths.TaskFile)
	v.SetDefault("paths.inbox_dir", d.Paths.InboxDir)
	v.SetDefault("paths.runs_dir", d.Paths.RunsDir)
	v.SetDefault("paths.progress_log", d.Paths.ProgressLog)
	v.SetDefault("paths.archive_index", d.Paths.ArchiveIndex)
	v.SetDefault("paths.status_file", d.Paths.StatusFile)
	v.SetDefault("paths.alert_file", d.Paths.AlertFile)
	v.SetDefault("paths.claude_md", d.Paths.ClaudeMD)
	v.SetDefault("paths.control_dir", d.Paths.ControlDir)
	v.SetDefault("paths.brief_template", d.Paths.BriefTemplate)

	for name, p := range d.Providers {
		v.SetDefault("providers."+name+".command", p.Command)
		v.SetDefault("providers."+name+".type", p.Type)
	}

	v.SetDefault("task.lease_ttl_seconds", d.Task.LeaseTTLSeconds)
	v.SetDefault("task.max_attempts", d.Task.MaxAttempts)
	v.SetDefault("task.verify_required", d.Task.VerifyRequired)
	v.SetDefault("task.retention_days", d.Task.RetentionDays)
	v.SetDefault("task.max_runs_mb", d.Task.MaxRunsMB)
	v.SetDefault("task.max_failures", d.Task.MaxFailures)
	v.SetDefault("task.verify_command", d.Task.VerifyCommand)
	v.SetDefault("task.worker.backend", d.Task.Worker.Backend)
	v.SetDefault("task.worker.command", d.Task.Worker.Command)
}
