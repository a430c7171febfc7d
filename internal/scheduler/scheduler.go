// Package scheduler picks the next runnable task and reclaims leases that
// expired while their owning runner was gone.
package scheduler

import (
	"time"

	"taskctl/internal/task"
)

// SelectNext scans tasks in document order and returns the first one that is
// pending, has every dependency in completedIDs, and does not hold an
// unexpired claim (a stale claim on a pending task can happen if a prior
// abandon raced a write). Returns ok=false when nothing is runnable.
func SelectNext(tasks []task.Task, now time.Time) (task.Task, bool) {
	completed := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.Status == task.StatusCompleted {
			completed[t.ID] = true
		}
	}

	for _, t := range tasks {
		if t.Status != task.StatusPending {
			continue
		}
		if !dependenciesSatisfied(t.DependsOn, completed) {
			continue
		}
		if t.Claim != nil && !t.Claim.Expired(now) {
			continue
		}
		return t, true
	}
	return task.Task{}, false
}

func dependenciesSatisfied(dependsOn []string, completed map[string]bool) bool {
	for _, id := range dependsOn {
		if !completed[id] {
			return false
		}
	}
	return true
}

// ReclaimResult reports what happened to one in_progress task during a
// reclaim pass.
type ReclaimResult struct {
	TaskID    string
	Abandoned bool
	Retried   bool
}

// ReclaimExpired walks tasks and, for every in_progress task whose lease has
// expired, abandons it; if the task has not yet exhausted maxAttempts it is
// immediately retried back to pending so the next SelectNext call can pick it
// up without waiting for a separate housekeeping pass. Returns the updated
// slice (a new slice; inputs are not mutated) and the per-task outcomes in
// the same relative order they occurred.
func ReclaimExpired(tasks []task.Task, maxAttempts int, now time.Time) ([]task.Task, []ReclaimResult) {
	out := make([]task.Task, len(tasks))
	copy(out, tasks)
	var results []ReclaimResult

	for i := range out {
		t := &out[i]
		if t.Status != task.StatusInProgress || t.Claim == nil || !t.Claim.Expired(now) {
			continue
		}

		reason := "lease expired"
		if len(t.History) >= maxAttempts {
			reason = "lease expired, max attempts reached"
		}
		abandoned, err := task.Abandon(t, reason, now)
		if err != nil {
			continue
		}
		*t = abandoned
		res := ReclaimResult{TaskID: t.ID, Abandoned: true}

		if len(t.History) < maxAttempts {
			retried, err := task.Retry(t, maxAttempts, now)
			if err == nil {
				*t = retried
				res.Retried = true
			}
		}
		results = append(results, res)
	}

	return out, results
}
