// Package cli wires the cobra command tree for taskctl: a one-shot
// supervisor run by default, a --loop modifier, and status/reclaim/cleanup/
// report/intake/diagnose subcommands.
package cli

import (
	"os"
	"path/filepath"

	"taskctl/internal/config"
	"taskctl/internal/progresslog"
	"taskctl/internal/store"
	"taskctl/internal/supervisor"
)

// cwd returns the working directory taskctl operates on: always the
// process's current directory, since a supervisor owns exactly one
// Task.json per invocation.
func cwd() (string, error) {
	return os.Getwd()
}

func openStore(dir string) *store.Store {
	return store.New(filepath.Join(dir, "Task.json"))
}

// loadConfig reads Task.json once (under lock) and layers the environment/
// config-file overlay on top of its persisted config block.
func loadConfig(dir string) (config.Config, *store.TaskStore, error) {
	st := openStore(dir)
	h, err := st.Acquire()
	if err != nil {
		return config.Config{}, nil, err
	}
	defer h.Release()

	ts, err := h.Read()
	if err != nil {
		return config.Config{}, nil, err
	}

	v := config.NewViper(dir)
	cfg := config.Load(v, dir, ts.Config)
	return cfg, ts, nil
}

func applyFlagOverrides(cfg *config.Config, flags *rootFlags) {
	if flags == nil {
		return
	}
	if flags.workerCmd != "" {
		cfg.WorkerCommand = flags.workerCmd
	}
	if flags.maxTurns > 0 {
		cfg.MaxTurns = flags.maxTurns
	}
	if flags.timeoutSecs > 0 {
		cfg.TimeoutSeconds = flags.timeoutSecs
	}
	if flags.leaseTTL > 0 {
		cfg.LeaseTTLSeconds = flags.leaseTTL
	}
}

func newSupervisor(dir string, flags *rootFlags) (*supervisor.Supervisor, error) {
	cfg, _, err := loadConfig(dir)
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(&cfg, flags)

	st := openStore(dir)
	log, err := progresslog.New(filepath.Join(dir, cfg.ProgressFile))
	if err != nil {
		return nil, err
	}

	return supervisor.New(dir, st, log, cfg), nil
}
