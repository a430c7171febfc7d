package promptbuilder

import (
	"strings"
	"testing"
)

func TestTaskPrompt_EchoesTaskAndRunID(t *testing.T) {
	p := TaskPrompt(TaskPromptParams{
		TaskID: "T1", RunID: "run-1", Description: "do the thing",
		Attempt: 1, MaxAttempts: 3,
	})
	if !strings.Contains(p, "task_id=T1") || !strings.Contains(p, "run_id=run-1") {
		t.Fatalf("expected task/run id echoed in prompt, got: %s", p)
	}
	if strings.Contains(p, "Verification required") {
		t.Fatal("expected no verify section when VerifyCommand is empty")
	}
}

func TestTaskPrompt_IncludesVerifySectionWhenConfigured(t *testing.T) {
	p := TaskPrompt(TaskPromptParams{
		TaskID: "T1", RunID: "run-1", Description: "do it",
		Attempt: 1, MaxAttempts: 3, VerifyCommand: "scripts/verify.sh",
	})
	if !strings.Contains(p, "scripts/verify.sh") {
		t.Fatalf("expected verify command in prompt, got: %s", p)
	}
}

func TestTaskPrompt_ListsDependencies(t *testing.T) {
	p := TaskPrompt(TaskPromptParams{
		TaskID: "T2", RunID: "run-2", Description: "do it",
		DependsOn: []string{"T1", "T0"}, Attempt: 1, MaxAttempts: 3,
	})
	if !strings.Contains(p, "T1, T0") {
		t.Fatalf("expected dependency list in prompt, got: %s", p)
	}
}

func TestStatusCheckPrompt_MentionsExpectedFields(t *testing.T) {
	p := StatusCheckPrompt()
	for _, field := range []string{"pending", "in_progress", "completed", "next_task", "stop_file", "pause_file"} {
		if !strings.Contains(p, field) {
			t.Fatalf("expected field %q in status check prompt", field)
		}
	}
}

func TestRecoveryPrompt_IncludesErrorAndIDs(t *testing.T) {
	p := RecoveryPrompt("T1", "run-1", "panic: nil pointer")
	if !strings.Contains(p, "T1") || !strings.Contains(p, "run-1") || !strings.Contains(p, "panic: nil pointer") {
		t.Fatalf("expected ids and error text in recovery prompt, got: %s", p)
	}
}
