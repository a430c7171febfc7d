// Package supervisor holds exclusive scheduling authority over one
// Task.json: it selects the next eligible task, leases it to a freshly
// spawned worker subprocess, and adjudicates the outcome through the task
// state machine, one iteration at a time.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"taskctl/internal/config"
	"taskctl/internal/logging"
	"taskctl/internal/progresslog"
	"taskctl/internal/promptbuilder"
	"taskctl/internal/scheduler"
	"taskctl/internal/store"
	"taskctl/internal/task"
	"taskctl/internal/worker"
)

const (
	stopFile  = "STOP"
	pauseFile = "PAUSE"
	alertFile = "ALERT.txt"
)

// Outcome enumerates why one RunOnce call returned.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeFailed      Outcome = "failed"
	OutcomeBlocked     Outcome = "blocked"
	OutcomeStopped     Outcome = "stopped"
	OutcomeIdle        Outcome = "idle"        // nothing eligible right now, pending work remains
	OutcomeDone        Outcome = "done"        // no pending or in_progress tasks remain
	OutcomeCircuitOpen Outcome = "circuit_open"
)

// Supervisor owns one Task.json and drives the claim/invoke/adjudicate cycle
// against it.
type Supervisor struct {
	Dir      string
	Store    *store.Store
	Log      *progresslog.Logger
	Logger   logging.Logger
	RunnerID string
	Cfg      config.Config

	consecutiveFailures int
}

// New builds a Supervisor rooted at dir.
func New(dir string, st *store.Store, log *progresslog.Logger, cfg config.Config) *Supervisor {
	return &Supervisor{
		Dir:      dir,
		Store:    st,
		Log:      log,
		Logger:   logging.NewComponentLogger("supervisor"),
		RunnerID: task.GenerateRunnerID(),
		Cfg:      cfg,
	}
}

func (s *Supervisor) path(name string) string { return filepath.Join(s.Dir, name) }

// checkSignals handles a STOP or PAUSE file at an iteration boundary. STOP
// takes priority; PAUSE blocks the caller, polling every 5s until the file
// is removed.
func (s *Supervisor) checkSignals(ctx context.Context) (stop bool, err error) {
	for {
		if _, err := os.Stat(s.path(stopFile)); err == nil {
			_ = s.Log.Stop("STOP file present")
			return true, nil
		}
		if _, err := os.Stat(s.path(pauseFile)); err != nil {
			return false, nil
		}
		_ = s.Log.Pause("PAUSE file present")
		for {
			select {
			case <-ctx.Done():
				return true, ctx.Err()
			case <-time.After(5 * time.Second):
			}
			if _, err := os.Stat(s.path(pauseFile)); err != nil {
				break
			}
		}
		_ = s.Log.Resume()
	}
}

// Reclaim runs ReclaimExpired once under the store lock, logging one RECLAIM
// event per task whose lease had expired.
func (s *Supervisor) Reclaim() error {
	return s.Store.WithLock(func(ts *store.TaskStore) (bool, error) {
		updated, results := scheduler.ReclaimExpired(ts.Tasks, ts.Config.MaxAttempts, time.Now().UTC())
		if len(results) == 0 {
			return false, nil
		}
		ts.Tasks = updated
		for _, r := range results {
			newStatus := "abandoned"
			if r.Retried {
				newStatus = "pending"
			}
			_ = s.Log.Reclaim(r.TaskID, "expired", newStatus)
		}
		return true, nil
	})
}

func firstBlocked(tasks []task.Task) (task.Task, bool) {
	for _, t := range tasks {
		if t.Status == task.StatusBlocked {
			return t, true
		}
	}
	return task.Task{}, false
}

func hasPending(tasks []task.Task) bool {
	for _, t := range tasks {
		if t.Status == task.StatusPending {
			return true
		}
	}
	return false
}

func (s *Supervisor) writeAlert(kind, taskID, reason string) error {
	body := fmt.Sprintf(`type: %s
task_id: %s
timestamp: %s
reason: %s
suggested actions:
  1. inspect Task.json and progress.txt for %s
  2. resolve the blocker
  3. set the task back to pending to retry, or canceled to skip it
`, kind, taskID, time.Now().UTC().Format(time.RFC3339), reason, taskID)
	return os.WriteFile(s.path(alertFile), []byte(body), 0o644)
}

// RunOnce executes exactly one supervisor iteration: signal check, reclaim,
// blocked-task halt check, select, claim, invoke, adjudicate.
func (s *Supervisor) RunOnce(ctx context.Context, loopMode bool) (Outcome, error) {
	stop, err := s.checkSignals(ctx)
	if err != nil {
		return OutcomeStopped, err
	}
	if stop {
		return OutcomeStopped, nil
	}

	if err := s.Reclaim(); err != nil {
		return "", err
	}

	h, err := s.Store.Acquire()
	if err != nil {
		return "", err
	}
	ts, err := h.Read()
	_ = h.Release()
	if err != nil {
		return "", err
	}

	if blocked, ok := firstBlocked(ts.Tasks); ok && loopMode {
		if err := s.writeAlert("blocked", blocked.ID, blocked.Notes); err != nil {
			s.Logger.Error("write alert: %v", err)
		}
		_ = s.Log.Stop(fmt.Sprintf("task %s is blocked", blocked.ID))
		return OutcomeBlocked, nil
	}

	next, ok := scheduler.SelectNext(ts.Tasks, time.Now().UTC())
	if !ok {
		if hasPending(ts.Tasks) {
			s.Logger.Warn("no eligible task: remaining pending tasks are dependency-blocked")
			return OutcomeIdle, nil
		}
		_ = s.Log.Stop("all tasks completed or terminal")
		return OutcomeDone, nil
	}

	runID := task.GenerateRunID(time.Now().UTC())
	var claimed task.Task
	maxAttempts := ts.Config.MaxAttempts
	verifyRequired := ts.Config.VerifyRequired
	verifyCommand := ts.Config.VerifyCommand

	err = s.Store.WithLock(func(t *store.TaskStore) (bool, error) {
		cur := store.FindTask(t, next.ID)
		if cur == nil {
			return false, fmt.Errorf("supervisor: task %s vanished before claim", next.ID)
		}
		c, err := task.ClaimTask(cur, runID, s.RunnerID, t.Config.LeaseTTL(), time.Now().UTC())
		if err != nil {
			return false, err
		}
		*cur = c
		claimed = c
		maxAttempts = t.Config.MaxAttempts
		verifyRequired = t.Config.VerifyRequired
		verifyCommand = t.Config.VerifyCommand
		return true, nil
	})
	if err != nil {
		return "", err
	}
	_ = s.Log.Claim(claimed.ID, runID, claimed.Description, claimed.Claim.Attempt, maxAttempts)

	prompt := promptbuilder.TaskPrompt(promptbuilder.TaskPromptParams{
		TaskID:        claimed.ID,
		RunID:         runID,
		Description:   claimed.Description,
		DependsOn:     claimed.DependsOn,
		Attempt:       claimed.Claim.Attempt,
		MaxAttempts:   maxAttempts,
		VerifyCommand: verifyCommand,
	})

	timeout := time.Duration(s.Cfg.TimeoutSeconds) * time.Second
	start := time.Now()
	outcome, err := worker.Run(ctx, worker.Config{
		Command:    s.Cfg.WorkerCommand,
		BaseArgs:   s.Cfg.WorkerArgs,
		Prompt:     prompt,
		WorkingDir: s.Dir,
		Timeout:    timeout,
		RunsDir:    s.path(s.Cfg.RunsDir),
		RunID:      runID,
	})
	duration := time.Since(start)
	if err != nil {
		return s.failTask(claimed.ID, runID, duration, maxAttempts, err.Error(), nil)
	}

	return s.adjudicate(claimed.ID, runID, duration, maxAttempts, verifyRequired, verifyCommand, loopMode, outcome)
}

// RunLoop runs iterations until STOP, completion of every task, a blocked
// task halts the loop, or the circuit breaker opens after Cfg.MaxFailures
// consecutive failures. maxCount, if positive, stops after that many
// successful completions.
func (s *Supervisor) RunLoop(ctx context.Context, maxCount int) error {
	_ = s.Log.Startup(s.RunnerID, progresslog.StartupConfig{
		LeaseTTLSeconds: s.Cfg.LeaseTTLSeconds,
		MaxAttempts:     s.Cfg.MaxAttempts,
		VerifyRequired:  s.Cfg.VerifyRequired,
		MaxTurns:        s.Cfg.MaxTurns,
		TimeoutSeconds:  s.Cfg.TimeoutSeconds,
	})

	successes := 0
	for {
		outcome, err := s.RunOnce(ctx, true)
		if err != nil {
			return err
		}
		switch outcome {
		case OutcomeCompleted:
			successes++
			if maxCount > 0 && successes >= maxCount {
				return nil
			}
		case OutcomeStopped, OutcomeDone, OutcomeIdle, OutcomeBlocked, OutcomeCircuitOpen:
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(s.Cfg.LoopDelaySeconds) * time.Second):
		}
	}
}

// Cleanup deletes archived runs older than retentionDays, then trims the
// oldest remaining archives until total size fits maxRunsMB.
func (s *Supervisor) Cleanup(retentionDays, maxRunsMB int) (deleted int, err error) {
	runsDir := s.path(s.Cfg.RunsDir)
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	type fileInfo struct {
		path    string
		modTime time.Time
		size    int64
	}
	var files []fileInfo
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		full := filepath.Join(runsDir, e.Name())
		if info.ModTime().Before(cutoff) {
			if os.Remove(full) == nil {
				deleted++
			}
			continue
		}
		files = append(files, fileInfo{full, info.ModTime(), info.Size()})
	}

	var total int64
	for _, f := range files {
		total += f.size
	}
	budget := int64(maxRunsMB) * 1024 * 1024
	if total <= budget {
		return deleted, nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	for _, f := range files {
		if total <= budget {
			break
		}
		if os.Remove(f.path) == nil {
			deleted++
			total -= f.size
		}
	}
	return deleted, nil
}
