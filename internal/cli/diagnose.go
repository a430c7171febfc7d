package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskctl/internal/promptbuilder"
	"taskctl/internal/store"
	"taskctl/internal/task"
	"taskctl/internal/worker"
)

// newDiagnoseCommand builds the out-of-band --diagnose flow: it invokes a
// worker with RecoveryPrompt against a failed task's history without
// retrying the task itself, so an operator can read a root-cause analysis
// before deciding whether to retry.
func newDiagnoseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose <task-id>",
		Short: "Ask the worker to analyze a failed task's history without retrying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			dir, err := cwd()
			if err != nil {
				return err
			}
			cfg, ts, err := loadConfig(dir)
			if err != nil {
				return err
			}

			t := store.FindTask(ts, taskID)
			if t == nil {
				return fmt.Errorf("diagnose: task %s not found", taskID)
			}
			if t.Status != task.StatusFailed && t.Status != task.StatusBlocked {
				return fmt.Errorf("diagnose: task %s is %s, not failed or blocked", taskID, t.Status)
			}

			errText := t.Notes
			runID := task.GenerateRunID(time.Now().UTC())
			if len(t.History) > 0 {
				runID = t.History[len(t.History)-1].RunID
				if t.History[len(t.History)-1].Error != "" {
					errText = t.History[len(t.History)-1].Error
				}
			}

			prompt := promptbuilder.RecoveryPrompt(taskID, runID, errText)
			timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

			outcome, err := worker.Run(cmd.Context(), worker.Config{
				Command:    cfg.WorkerCommand,
				BaseArgs:   cfg.WorkerArgs,
				Prompt:     prompt,
				WorkingDir: dir,
				Timeout:    timeout,
				RunsDir:    filepath.Join(dir, cfg.RunsDir),
				RunID:      runID,
			})
			if err != nil {
				return err
			}
			diagnosis, ok := extractDiagnosis(outcome.Stdout)
			if !ok {
				fmt.Println(red("no diagnosis produced"))
				fmt.Println(outcome.Stdout)
				return nil
			}
			pretty, _ := json.MarshalIndent(diagnosis, "", "  ")
			fmt.Println(string(pretty))
			return nil
		},
	}
}

var diagnosisFencedBlock = regexp.MustCompile("(?s)```json\\s*\\n(\\{.*?\\})\\s*\\n```")

// extractDiagnosis scans the worker's reply for the recovery prompt's
// output shape (diagnosis/root_cause/fix_suggestion/can_auto_fix), which
// carries no "status" field and so cannot reuse worker.Run's TaskResult
// extraction.
func extractDiagnosis(stdout string) (map[string]any, bool) {
	text := strings.TrimSpace(stdout)
	if text == "" {
		return nil, false
	}

	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		if m, ok := tryParseDiagnosis(line); ok {
			return m, true
		}
	}

	blocks := diagnosisFencedBlock.FindAllStringSubmatch(text, -1)
	for i := len(blocks) - 1; i >= 0; i-- {
		if m, ok := tryParseDiagnosis(blocks[i][1]); ok {
			return m, true
		}
	}
	return nil, false
}

func tryParseDiagnosis(candidate string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(candidate), &m); err != nil {
		return nil, false
	}
	if _, ok := m["task_id"]; !ok {
		return nil, false
	}
	return m, true
}
