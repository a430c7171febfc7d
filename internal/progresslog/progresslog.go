// Package progresslog writes the append-only, human-readable progress.txt
// trail plus a JSON-lines sidecar for machine consumption, one entry per
// supervisor event.
package progresslog

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const separator = "============================================================"

// Logger appends structured events to a text log and a JSON-lines sidecar.
// Both files are opened once, in append mode, and shared under one mutex so
// a Logger is safe for concurrent use within a single process.
type Logger struct {
	mu       sync.Mutex
	textPath string
	textFile *os.File
	jsonFile *os.File
	jsonLog  *slog.Logger
}

// New opens textPath (conventionally progress.txt) and a sibling JSON-lines
// file derived by replacing its extension with .jsonl, both in append mode,
// creating either if missing.
func New(textPath string) (*Logger, error) {
	jsonPath := strings.TrimSuffix(textPath, ".txt") + ".jsonl"

	tf, err := os.OpenFile(textPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("progresslog: open %s: %w", textPath, err)
	}
	jf, err := os.OpenFile(jsonPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		tf.Close()
		return nil, fmt.Errorf("progresslog: open %s: %w", jsonPath, err)
	}

	handler := slog.NewJSONHandler(jf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &Logger{
		textPath: textPath,
		textFile: tf,
		jsonFile: jf,
		jsonLog:  slog.New(handler),
	}, nil
}

// Close releases the underlying file handles.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err1 := l.textFile.Close()
	err2 := l.jsonFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
}

func (l *Logger) append(text, event string, attrs ...any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.textFile.WriteString(text + "\n"); err != nil {
		return fmt.Errorf("progresslog: write %s: %w", l.textPath, err)
	}
	l.jsonLog.Info(event, attrs...)
	return nil
}

// Claim records a task transitioning pending -> in_progress.
func (l *Logger) Claim(taskID, runID, description string, attempt, maxAttempts int) error {
	text := fmt.Sprintf(`
%s
[%s] CLAIM: %s
run_id: %s
attempt: %d/%d
status: pending -> in_progress
description: %s
action: parent claimed task, spawning subprocess
`, separator, timestamp(), taskID, runID, attempt, maxAttempts, description)

	return l.append(text, "claim",
		"task_id", taskID, "run_id", runID, "attempt", attempt, "max_attempts", maxAttempts)
}

// Complete records a task transitioning in_progress -> completed.
func (l *Logger) Complete(taskID, runID, summary, verifyCommand string, verifyExitCode int, verifyEvidence, gitCommit string, duration time.Duration) error {
	gitInfo := "git commit: none"
	if gitCommit != "" {
		gitInfo = fmt.Sprintf("git commit: %s", gitCommit)
	}
	text := fmt.Sprintf(`[%s] COMPLETE: %s
run_id: %s
status: in_progress -> completed
verify command: %s
verify result: exit_code=%d
verify evidence: %s
%s
summary: %s
duration: %.1fs
result: success
needs_human: no
`, timestamp(), taskID, runID, verifyCommand, verifyExitCode, verifyEvidence, gitInfo, summary, duration.Seconds())

	return l.append(text, "complete",
		"task_id", taskID, "run_id", runID, "verify_exit_code", verifyExitCode,
		"duration_seconds", duration.Seconds())
}

// Fail records a task transitioning in_progress -> failed.
func (l *Logger) Fail(taskID, runID, errText string, attempt, maxAttempts int, duration time.Duration, canRetry bool) error {
	nextStep := "automatic retry"
	needsHuman := "no"
	if !canRetry {
		nextStep = "needs human intervention"
		needsHuman = "yes"
	}
	text := fmt.Sprintf(`[%s] FAIL: %s
run_id: %s
attempt: %d/%d
status: in_progress -> failed
error: %s
duration: %.1fs
result: failure
next: %s
needs_human: %s
`, timestamp(), taskID, runID, attempt, maxAttempts, errText, duration.Seconds(), nextStep, needsHuman)

	return l.append(text, "fail",
		"task_id", taskID, "run_id", runID, "attempt", attempt, "max_attempts", maxAttempts,
		"needs_human", !canRetry)
}

// Block records a task transitioning in_progress -> blocked, followed by a
// Human Help Packet summarizing the recommended next steps.
func (l *Logger) Block(taskID, runID, reason string, duration time.Duration) error {
	text := fmt.Sprintf(`[%s] BLOCK: %s
run_id: %s
status: in_progress -> blocked
reason: %s
duration: %.1fs
result: blocked
next: waiting for human intervention
needs_human: yes

--- Human Help Packet ---
task id: %s
run id: %s
block reason: %s
check progress.txt and Task.json for details
suggested actions:
1. resolve the blocking issue
2. set the task status back to pending to retry
3. or set the task status to canceled to skip it
--- End Packet ---
`, timestamp(), taskID, runID, reason, duration.Seconds(), taskID, runID, reason)

	return l.append(text, "block", "task_id", taskID, "run_id", runID, "reason", reason, "needs_human", true)
}

// Abandon records a task transitioning in_progress -> abandoned due to a
// reclaimed lease.
func (l *Logger) Abandon(taskID, runID, reason string) error {
	text := fmt.Sprintf(`[%s] ABANDON: %s
run_id: %s
status: in_progress -> abandoned
reason: %s
action: parent reclaimed the expired lease
next: automatic retry if attempts remain
`, timestamp(), taskID, runID, reason)

	return l.append(text, "abandon", "task_id", taskID, "run_id", runID, "reason", reason)
}

// Reclaim records the bookkeeping half of a lease reclamation: the old
// run_id being invalidated and the task's new status.
func (l *Logger) Reclaim(taskID, oldRunID, newStatus string) error {
	text := fmt.Sprintf(`[%s] RECLAIM: %s
old run_id: %s
action: reclaimed expired lease
new status: %s
`, timestamp(), taskID, oldRunID, newStatus)

	return l.append(text, "reclaim", "task_id", taskID, "old_run_id", oldRunID, "new_status", newStatus)
}

// Stop records the supervisor shutting down.
func (l *Logger) Stop(reason string) error {
	text := fmt.Sprintf(`
%s
[%s] STOP
reason: %s
%s
`, separator, timestamp(), reason, separator)

	return l.append(text, "stop", "reason", reason)
}

// Pause records the supervisor entering its idle wait on a PAUSE file.
func (l *Logger) Pause(reason string) error {
	text := fmt.Sprintf(`[%s] PAUSE
reason: %s
action: entering sleep loop, waiting for PAUSE file removal
`, timestamp(), reason)

	return l.append(text, "pause", "reason", reason)
}

// Resume records the supervisor resuming after PAUSE was removed.
func (l *Logger) Resume() error {
	text := fmt.Sprintf(`[%s] RESUME
action: PAUSE file removed, resuming execution
`, timestamp())

	return l.append(text, "resume")
}

// StartupConfig is the subset of supervisor configuration echoed into the
// startup banner.
type StartupConfig struct {
	LeaseTTLSeconds int
	MaxAttempts     int
	VerifyRequired  bool
	MaxTurns        int
	TimeoutSeconds  int
}

// Startup records the supervisor process starting, echoing its effective
// configuration.
func (l *Logger) Startup(runnerID string, cfg StartupConfig) error {
	text := fmt.Sprintf(`
%s
[%s] STARTUP
runner id: %s
config:
  - lease_ttl_seconds: %d
  - max_attempts: %d
  - verify_required: %v
  - max_turns: %d
  - timeout: %d
%s
`, separator, timestamp(), runnerID, cfg.LeaseTTLSeconds, cfg.MaxAttempts, cfg.VerifyRequired, cfg.MaxTurns, cfg.TimeoutSeconds, separator)

	return l.append(text, "startup",
		"runner_id", runnerID, "lease_ttl_seconds", cfg.LeaseTTLSeconds, "max_attempts", cfg.MaxAttempts,
		"verify_required", cfg.VerifyRequired, "max_turns", cfg.MaxTurns, "timeout_seconds", cfg.TimeoutSeconds)
}

// RunIDMismatch records a subprocess reporting a run_id the store does not
// recognize as the current claim holder; the result is rejected and the
// task marked failed rather than applied.
func (l *Logger) RunIDMismatch(taskID, expectedRunID, actualRunID string) error {
	text := fmt.Sprintf(`[%s] RUN_ID_MISMATCH: %s
expected run_id: %s
actual run_id: %s
action: rejecting subprocess result, marking as failed
reason: possible subprocess drift or replay
`, timestamp(), taskID, expectedRunID, actualRunID)

	return l.append(text, "run_id_mismatch",
		"task_id", taskID, "expected_run_id", expectedRunID, "actual_run_id", actualRunID)
}

// VerifyFail records a verify command failing after the agent reported
// completion, forcing the task back to failed instead of completed.
func (l *Logger) VerifyFail(taskID, runID, verifyCommand string, exitCode int, evidence string) error {
	text := fmt.Sprintf(`[%s] VERIFY_FAIL: %s
run_id: %s
verify command: %s
exit code: %d
evidence: %s
action: refusing completed status, marking as failed
`, timestamp(), taskID, runID, verifyCommand, exitCode, evidence)

	return l.append(text, "verify_fail",
		"task_id", taskID, "run_id", runID, "verify_command", verifyCommand, "exit_code", exitCode)
}

// IntakeStart records the intake pipeline beginning work on a requirement
// packet.
func (l *Logger) IntakeStart(runID, reqID, path string) error {
	text := fmt.Sprintf(`
%s
[%s] INTAKE_START: %s
run_id: %s
packet: %s
action: parsing and validating requirement packet
`, separator, timestamp(), reqID, runID, path)

	return l.append(text, "intake_start", "run_id", runID, "req_id", reqID, "path", path)
}

// IntakeComplete records a requirement packet successfully merged, gated,
// and committed.
func (l *Logger) IntakeComplete(runID, reqID string, tasksAdded []string, claudeSummary, gitCommit string) error {
	text := fmt.Sprintf(`[%s] INTAKE_COMPLETE: %s
run_id: %s
tasks added: %s
claude.md: %s
git commit: %s
result: success
`, timestamp(), reqID, runID, strings.Join(tasksAdded, ", "), claudeSummary, gitCommit)

	return l.append(text, "intake_complete",
		"run_id", runID, "req_id", reqID, "tasks_added", len(tasksAdded), "git_commit", gitCommit)
}

// IntakeFail records a requirement packet rejected at validation or rolled
// back after a failed gate, leaving the packet in the inbox for a human.
func (l *Logger) IntakeFail(runID, reqID, reason string) error {
	text := fmt.Sprintf(`[%s] INTAKE_FAIL: %s
run_id: %s
reason: %s
action: packet left in inbox, store unchanged
needs_human: yes
`, timestamp(), reqID, runID, reason)

	return l.append(text, "intake_fail", "run_id", runID, "req_id", reqID, "reason", reason)
}
