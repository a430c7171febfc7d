// Package promptbuilder assembles the strictly scoped prompts handed to the
// worker subprocess: one task, one run_id, no authority to touch the store.
package promptbuilder

import (
	"fmt"
	"strings"
)

// TaskPromptParams configures TaskPrompt.
type TaskPromptParams struct {
	TaskID        string
	RunID         string
	Description   string
	DependsOn     []string
	Attempt       int
	MaxAttempts   int
	VerifyCommand string
}

// TaskPrompt builds the prompt for a single claimed task. It fences the
// worker into task_id/run_id, forbids it from claiming other tasks or
// touching the store's status/claim/result fields directly, and specifies
// the exact trailing JSON line the supervisor will parse back out.
func TaskPrompt(p TaskPromptParams) string {
	var deps string
	if len(p.DependsOn) > 0 {
		deps = fmt.Sprintf("\nCompleted dependencies: %s", strings.Join(p.DependsOn, ", "))
	}

	var verify string
	if p.VerifyCommand != "" {
		verify = fmt.Sprintf(`
## Verification required

After implementing, run the verify command:
`+"```bash\n%s\n```"+`

Verification must pass (exit_code == 0) before the task may be marked completed.
`, p.VerifyCommand)
	}

	return fmt.Sprintf(`You are executing a single task from a long-running project.

## Hard constraints (must follow)

1. You may only work on task_id=%s
2. Your run_id=%s (you must echo it back in your output)
3. Do not claim or touch any other task
4. Do not modify the status/claim/result fields of Task.json directly
5. This is attempt %d/%d

## Task

Task ID: %s
Run ID: %s
Description: %s%s

## Steps

1. Read CLAUDE.md for project conventions
2. Read progress.txt for prior context, if present
3. Run git log --oneline -5 to see recent commits
4. Implement the task
5. Run verification, if scripts/verify.sh exists
6. Append a work record to the end of progress.txt
7. git add the relevant files and git commit
%s
## Output requirement (must follow)

On the final line of output, emit JSON for the parent process to parse:

On success:
`+"```json"+`
{"task_id": "%s", "run_id": "%s", "status": "completed", "verify": {"command": "scripts/verify.sh", "exit_code": 0, "evidence": "All tests passed"}, "git": {"commit": "abc123"}, "summary": "brief description of what was done"}
`+"```"+`

On failure:
`+"```json"+`
{"task_id": "%s", "run_id": "%s", "status": "failed", "error": "reason for failure", "needs_human": false}
`+"```"+`

When human intervention is needed:
`+"```json"+`
{"task_id": "%s", "run_id": "%s", "status": "blocked", "error": "reason for the block", "needs_human": true}
`+"```"+`

Notes:
- task_id and run_id must match the values given above exactly
- status must be one of completed/failed/blocked
- completed must include the verify field
`, p.TaskID, p.RunID, p.Attempt, p.MaxAttempts, p.TaskID, p.RunID, p.Description, deps, verify,
		p.TaskID, p.RunID, p.TaskID, p.RunID, p.TaskID, p.RunID)
}

// StatusCheckPrompt builds the prompt used for a worker-driven status
// inspection. The supervisor's own --status flag answers from the store
// directly and does not need this; it is kept for parity with the --diagnose
// flow, which can invoke a worker to narrate state in natural language.
func StatusCheckPrompt() string {
	return `Check the current project status:

1. Read Task.json and tally task statuses
2. Read progress.txt for recent progress
3. Run git log --oneline -5 for recent commits
4. Check for STOP or PAUSE files

Output format:
` + "```json" + `
{
  "total": 10,
  "pending": 3,
  "in_progress": 1,
  "completed": 5,
  "failed": 1,
  "blocked": 0,
  "next_task": "task-xxx",
  "stop_file": false,
  "pause_file": false
}
` + "```" + `
`
}

// RecoveryPrompt builds the diagnostic prompt used by --diagnose to ask a
// worker to analyze a failed task's history without retrying it.
func RecoveryPrompt(taskID, runID, errText string) string {
	return fmt.Sprintf(`Task %s (run_id=%s) failed and needs diagnosis.

Error:
%s

Steps:

1. Read progress.txt for the context around the failure
2. Inspect the relevant source files
3. Analyze the root cause
4. Propose a fix

Output format:
`+"```json"+`
{
  "task_id": "%s",
  "run_id": "%s",
  "diagnosis": "what went wrong",
  "root_cause": "root cause",
  "fix_suggestion": "suggested fix",
  "can_auto_fix": true/false
}
`+"```"+`
`, taskID, runID, errText, taskID, runID)
}
