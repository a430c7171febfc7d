package intake

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskctl/internal/store"
	"taskctl/internal/task"
)

func TestMergeClaudeMDInsertsIntoExistingSection(t *testing.T) {
	dir := t.TempDir()
	claudePath := filepath.Join(dir, "CLAUDE.md")
	original := "# Project\n\n## 项目要求\n\nOriginal text.\n\n## Other\n\nmore\n"
	if err := os.WriteFile(claudePath, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}
	p := &Pipeline{ClaudeMDPath: claudePath}

	summary, err := p.mergeClaudeMD("New requirement text.")
	if err != nil {
		t.Fatal(err)
	}
	if summary == "" {
		t.Fatal("expected a non-empty merge summary")
	}
	data, _ := os.ReadFile(claudePath)
	content := string(data)
	if !strings.Contains(content, "New requirement text.") || !strings.Contains(content, "Original text.") {
		t.Fatalf("expected both old and new content to survive merge, got:\n%s", content)
	}
}

func TestMergeClaudeMDAppendsWhenSectionMissing(t *testing.T) {
	dir := t.TempDir()
	claudePath := filepath.Join(dir, "CLAUDE.md")
	if err := os.WriteFile(claudePath, []byte("# Project\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := &Pipeline{ClaudeMDPath: claudePath}

	if _, err := p.mergeClaudeMD("fresh requirement"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(claudePath)
	if !strings.Contains(string(data), "## 项目要求") || !strings.Contains(string(data), "fresh requirement") {
		t.Fatalf("expected a new section to be appended, got:\n%s", data)
	}
}

func TestConvertSeedsRenamesOnCollision(t *testing.T) {
	existing := map[string]bool{"task-a": true}
	seeds := []Seed{{ID: "task-a", Title: "dup", Goal: "g", Acceptance: "a"}}

	tasks, added := convertSeeds(seeds, existing, time.Now().UTC())
	if len(tasks) != 1 {
		t.Fatalf("expected one converted task, got %d", len(tasks))
	}
	if tasks[0].ID == "task-a" {
		t.Fatal("expected renamed id on collision, got the colliding id")
	}
	if added[0] != tasks[0].ID {
		t.Fatal("added ids should mirror the tasks produced")
	}
	if tasks[0].Status != task.StatusPending {
		t.Fatalf("expected new tasks to start pending, got %s", tasks[0].Status)
	}
}

func TestMergeConfigAppliesKnownKeys(t *testing.T) {
	cfg := store.DefaultConfig()
	mergeConfig(&cfg, map[string]any{
		"max_attempts":   float64(7), // YAML/JSON numbers decode as float64
		"verify_command": "make verify",
	})
	if cfg.MaxAttempts != 7 || cfg.VerifyCommand != "make verify" {
		t.Fatalf("expected config overlay to apply, got %+v", cfg)
	}
	if cfg.LeaseTTLSeconds != 900 {
		t.Fatalf("expected untouched keys to survive, got %+v", cfg)
	}
}
