// Package config resolves the effective supervisor configuration by
// layering compiled-in defaults, the persisted Task.json config block, the
// environment, and a taskctl.yaml file, in increasing precedence.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"taskctl/internal/store"
)

// Config holds every effective supervisor knob: the fields persisted on
// TaskStore.Config plus the CLI-level invocation parameters that never
// round-trip through Task.json.
type Config struct {
	store.Config

	WorkingDir   string
	TaskFile     string
	ProgressFile string
	RunsDir      string
	InboxDir     string
	ClaudeMDPath string
	AlertFile    string
	StatusFile   string

	WorkerCommand string
	WorkerArgs    []string

	LoopDelaySeconds int
	MaxFailures      int
	MaxTurns         int
	TimeoutSeconds   int
	CronSchedule     string
}

// Defaults returns the baseline configuration before any overlay is applied.
func Defaults(workingDir string) Config {
	return Config{
		Config:           store.DefaultConfig(),
		WorkingDir:       workingDir,
		TaskFile:         "Task.json",
		ProgressFile:     "progress.txt",
		RunsDir:          "runs",
		InboxDir:         "inbox",
		ClaudeMDPath:     "CLAUDE.md",
		AlertFile:        "ALERT.txt",
		StatusFile:       "status.md",
		WorkerCommand:    "claude",
		LoopDelaySeconds: 3,
		MaxFailures:      3,
		MaxTurns:         0,
		TimeoutSeconds:   900,
	}
}

// NewViper builds the viper instance used to layer environment variables and
// a taskctl.yaml found in the working directory or $HOME over the
// compiled-in defaults, the same SetConfigName/AddConfigPath/AutomaticEnv
// shape the teacher's own CLI uses for alex-config.
func NewViper(workingDir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("taskctl")
	v.SetConfigType("yaml")
	v.AddConfigPath(workingDir)
	v.AddConfigPath("$HOME")
	v.SetEnvPrefix("TASKCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load merges, in increasing precedence: compiled-in defaults, the config
// block read from Task.json (the authoritative source for lease/attempt/
// verify knobs, stored because those are per-project and must survive a
// restart), and finally the environment plus any taskctl.yaml file found by
// v. Explicit CLI flags are applied by the caller afterward.
func Load(v *viper.Viper, workingDir string, stored store.Config) Config {
	cfg := Defaults(workingDir)
	cfg.Config = stored

	_ = v.ReadInConfig() // a missing config file is not an error

	if v.IsSet("worker_command") {
		cfg.WorkerCommand = v.GetString("worker_command")
	}
	if v.IsSet("loop_delay_seconds") {
		cfg.LoopDelaySeconds = v.GetInt("loop_delay_seconds")
	}
	if v.IsSet("max_failures") {
		cfg.MaxFailures = v.GetInt("max_failures")
	}
	if v.IsSet("max_turns") {
		cfg.MaxTurns = v.GetInt("max_turns")
	}
	if v.IsSet("timeout_seconds") {
		cfg.TimeoutSeconds = v.GetInt("timeout_seconds")
	}
	if v.IsSet("lease_ttl_seconds") {
		cfg.LeaseTTLSeconds = v.GetInt("lease_ttl_seconds")
	}
	if v.IsSet("max_attempts") {
		cfg.MaxAttempts = v.GetInt("max_attempts")
	}
	if v.IsSet("verify_command") {
		cfg.VerifyCommand = v.GetString("verify_command")
	}
	if v.IsSet("cron_schedule") {
		cfg.CronSchedule = v.GetString("cron_schedule")
	}
	return cfg
}
