package supervisor

import (
	"fmt"
	"time"

	"taskctl/internal/store"
	"taskctl/internal/task"
	"taskctl/internal/worker"
)

// adjudicate applies the worker's reported outcome to the store: a run_id
// mismatch or missing result is treated as a failure, a reported completion
// is re-checked against verify_required before it is accepted, and the
// circuit breaker's consecutive-failure counter is updated accordingly.
func (s *Supervisor) adjudicate(taskID, runID string, duration time.Duration, maxAttempts int, verifyRequired bool, verifyCommand string, loopMode bool, outcome *worker.Outcome) (Outcome, error) {
	if outcome.Result == nil {
		reason := outcome.ExitError
		if reason == "" {
			reason = "worker produced no parseable result"
		}
		return s.failTask(taskID, runID, duration, maxAttempts, reason, nil)
	}

	result := outcome.Result
	if result.RunID != runID {
		_ = s.Log.RunIDMismatch(taskID, runID, result.RunID)
		return s.failTask(taskID, runID, duration, maxAttempts, "run_id mismatch", nil)
	}

	switch result.Status {
	case "completed":
		verify := toTaskVerify(result.Verify)
		if verifyRequired && (verify == nil || verify.ExitCode != 0) {
			exitCode, evidence, cmd := -1, "missing verify result", verifyCommand
			if verify != nil {
				exitCode, evidence, cmd = verify.ExitCode, verify.Evidence, verify.Command
			}
			_ = s.Log.VerifyFail(taskID, runID, cmd, exitCode, evidence)
			return s.failTask(taskID, runID, duration, maxAttempts, "verify failed", verify)
		}
		return s.completeTask(taskID, runID, duration, verifyRequired, verifyCommand, verify, result)
	case "blocked":
		return s.blockTask(taskID, runID, duration, loopMode, result)
	default:
		errText := result.Error
		if errText == "" {
			errText = fmt.Sprintf("worker reported status %q", result.Status)
		}
		return s.failTask(taskID, runID, duration, maxAttempts, errText, toTaskVerify(result.Verify))
	}
}

func toTaskVerify(v *worker.VerifyResult) *task.VerifyResult {
	if v == nil {
		return nil
	}
	return &task.VerifyResult{Command: v.Command, ExitCode: v.ExitCode, Evidence: v.Evidence}
}

// completeTask applies the verified completion to the store and resets the
// circuit breaker's consecutive-failure counter.
func (s *Supervisor) completeTask(taskID, runID string, duration time.Duration, verifyRequired bool, verifyCommand string, verify *task.VerifyResult, result *worker.TaskResult) (Outcome, error) {
	var git *task.GitResult
	if result.Git != nil {
		git = &task.GitResult{Commit: result.Git.Commit, Branch: result.Git.Branch}
	}

	err := s.Store.WithLock(func(ts *store.TaskStore) (bool, error) {
		cur := store.FindTask(ts, taskID)
		if cur == nil {
			return false, fmt.Errorf("supervisor: task %s vanished", taskID)
		}
		updated, err := task.Complete(cur, runID, verify, git, result.Summary, verifyRequired, time.Now().UTC())
		if err != nil {
			return false, err
		}
		*cur = updated
		return true, nil
	})
	if err != nil {
		return "", err
	}

	commit := ""
	if git != nil {
		commit = git.Commit
	}
	exitCode, evidence, cmd := 0, "", verifyCommand
	if verify != nil {
		exitCode, evidence, cmd = verify.ExitCode, verify.Evidence, verify.Command
	}
	_ = s.Log.Complete(taskID, runID, result.Summary, cmd, exitCode, evidence, commit, duration)

	s.consecutiveFailures = 0
	return OutcomeCompleted, nil
}

// failTask applies a failed transition to the store and drives the circuit
// breaker: Cfg.MaxFailures consecutive failures halts the loop permanently
// rather than probing for recovery.
func (s *Supervisor) failTask(taskID, runID string, duration time.Duration, maxAttempts int, errText string, verify *task.VerifyResult) (Outcome, error) {
	var attempt int
	err := s.Store.WithLock(func(ts *store.TaskStore) (bool, error) {
		cur := store.FindTask(ts, taskID)
		if cur == nil {
			return false, fmt.Errorf("supervisor: task %s vanished", taskID)
		}
		attempt = len(cur.History) + 1
		updated, err := task.Fail(cur, runID, errText, verify, time.Now().UTC())
		if err != nil {
			return false, err
		}
		*cur = updated
		return true, nil
	})
	if err != nil {
		return "", err
	}

	canRetry := attempt < maxAttempts
	_ = s.Log.Fail(taskID, runID, errText, attempt, maxAttempts, duration, canRetry)

	s.consecutiveFailures++
	if s.consecutiveFailures >= s.Cfg.MaxFailures {
		_ = s.Log.Stop(fmt.Sprintf("circuit breaker: %d consecutive failures", s.consecutiveFailures))
		return OutcomeCircuitOpen, nil
	}
	return OutcomeFailed, nil
}

// blockTask applies a blocked transition to the store. Blocked tasks do not
// feed the circuit breaker: in loop mode the iteration halts on its own via
// the blocked-task check at the top of RunOnce regardless of the counter.
func (s *Supervisor) blockTask(taskID, runID string, duration time.Duration, loopMode bool, result *worker.TaskResult) (Outcome, error) {
	reason := result.Error
	if reason == "" {
		reason = "worker reported blocked"
	}

	err := s.Store.WithLock(func(ts *store.TaskStore) (bool, error) {
		cur := store.FindTask(ts, taskID)
		if cur == nil {
			return false, fmt.Errorf("supervisor: task %s vanished", taskID)
		}
		updated, err := task.Block(cur, runID, reason, result.NeedsHuman, time.Now().UTC())
		if err != nil {
			return false, err
		}
		*cur = updated
		return true, nil
	})
	if err != nil {
		return "", err
	}

	_ = s.Log.Block(taskID, runID, reason, duration)
	if loopMode {
		if err := s.writeAlert("blocked", taskID, reason); err != nil {
			s.Logger.Error("write alert: %v", err)
		}
	}
	return OutcomeBlocked, nil
}
