package config

import (
	"testing"

	"taskctl/internal/store"
)

func TestDefaultsMatchesStoreDefaultConfig(t *testing.T) {
	cfg := Defaults("/work")
	if cfg.LeaseTTLSeconds != 900 || cfg.MaxAttempts != 3 || !cfg.VerifyRequired {
		t.Fatalf("defaults drifted from store.DefaultConfig: %+v", cfg.Config)
	}
	if cfg.TaskFile != "Task.json" || cfg.ProgressFile != "progress.txt" {
		t.Fatalf("unexpected ambient defaults: %+v", cfg)
	}
}

func TestLoadOverlaysStoredConfigOverDefaults(t *testing.T) {
	v := NewViper(t.TempDir())
	stored := store.Config{LeaseTTLSeconds: 120, MaxAttempts: 5, VerifyRequired: false, VerifyCommand: "make verify", RetentionDays: 3, MaxRunsMB: 20}

	cfg := Load(v, "/work", stored)

	if cfg.LeaseTTLSeconds != 120 || cfg.MaxAttempts != 5 || cfg.VerifyCommand != "make verify" {
		t.Fatalf("Load did not apply stored config: %+v", cfg.Config)
	}
	if cfg.WorkerCommand != "claude" {
		t.Fatalf("expected compiled-in default to survive when unset, got %q", cfg.WorkerCommand)
	}
}

func TestLoadAppliesEnvironmentOverride(t *testing.T) {
	t.Setenv("TASKCTL_WORKER_COMMAND", "codex")
	v := NewViper(t.TempDir())

	cfg := Load(v, "/work", store.DefaultConfig())

	if cfg.WorkerCommand != "codex" {
		t.Fatalf("expected env override to win, got %q", cfg.WorkerCommand)
	}
}
