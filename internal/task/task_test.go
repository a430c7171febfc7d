package task

import (
	"testing"
	"time"
)

func pendingTask(id string, deps ...string) Task {
	return Task{ID: id, Status: StatusPending, DependsOn: deps}
}

func TestClaimTask_PendingSucceeds(t *testing.T) {
	now := time.Now().UTC()
	tk := pendingTask("T1")
	out, err := ClaimTask(&tk, "run-1", "runner-1", 15*time.Minute, now)
	if err != nil {
		t.Fatalf("ClaimTask: %v", err)
	}
	if out.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %s", out.Status)
	}
	if out.Claim == nil || out.Claim.Attempt != 1 {
		t.Fatalf("expected attempt=1 claim, got %+v", out.Claim)
	}
}

func TestClaimTask_AlreadyClaimedRejected(t *testing.T) {
	now := time.Now().UTC()
	tk := pendingTask("T1")
	claimed, err := ClaimTask(&tk, "run-1", "runner-1", 15*time.Minute, now)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ClaimTask(&claimed, "run-2", "runner-2", 15*time.Minute, now); err == nil {
		t.Fatal("expected second claim to be rejected while lease is valid")
	}
}

func TestClaimTask_LeaseExactlyAtExpiryIsNotExpired(t *testing.T) {
	now := time.Now().UTC()
	tk := pendingTask("T1")
	claimed, err := ClaimTask(&tk, "run-1", "runner-1", time.Minute, now)
	if err != nil {
		t.Fatal(err)
	}
	// now advanced to exactly lease_expires_at: strict "<" means not expired.
	if _, err := ClaimTask(&claimed, "run-2", "runner-2", time.Minute, claimed.Claim.LeaseExpiresAt); err == nil {
		t.Fatal("lease exactly at expiry must not be treated as expired")
	}
}

func TestClaimTask_ExpiredLeaseReclaimable(t *testing.T) {
	now := time.Now().UTC()
	tk := pendingTask("T1")
	claimed, err := ClaimTask(&tk, "run-1", "runner-1", time.Minute, now)
	if err != nil {
		t.Fatal(err)
	}
	later := claimed.Claim.LeaseExpiresAt.Add(time.Second)
	out, err := ClaimTask(&claimed, "run-2", "runner-2", time.Minute, later)
	if err != nil {
		t.Fatalf("expected reclaim of expired lease to succeed: %v", err)
	}
	if out.Claim.RunID != "run-2" {
		t.Fatalf("expected new run_id to win, got %s", out.Claim.RunID)
	}
}

func TestComplete_VerifyRequiredButFailedIsRejected(t *testing.T) {
	now := time.Now().UTC()
	tk := pendingTask("T1")
	claimed, _ := ClaimTask(&tk, "run-1", "runner-1", time.Minute, now)
	_, err := Complete(&claimed, "run-1", &VerifyResult{ExitCode: 1}, nil, "done", true, now)
	if err == nil {
		t.Fatal("expected rejection when verify_required and exit_code != 0")
	}
}

func TestComplete_HappyPath(t *testing.T) {
	now := time.Now().UTC()
	tk := pendingTask("T1")
	claimed, _ := ClaimTask(&tk, "run-1", "runner-1", time.Minute, now)
	done, err := Complete(&claimed, "run-1", &VerifyResult{Command: "scripts/verify.sh", ExitCode: 0, Evidence: "ok"}, nil, "done", true, now)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
	if done.Claim != nil {
		t.Fatal("expected claim cleared")
	}
	if len(done.History) != 1 || done.History[0].Status != StatusCompleted {
		t.Fatalf("unexpected history: %+v", done.History)
	}
}

func TestComplete_RunIDMismatchRejected(t *testing.T) {
	now := time.Now().UTC()
	tk := pendingTask("T1")
	claimed, _ := ClaimTask(&tk, "run-1", "runner-1", time.Minute, now)
	if _, err := Complete(&claimed, "run-OTHER", &VerifyResult{ExitCode: 0}, nil, "done", true, now); err == nil {
		t.Fatal("expected run_id mismatch to be rejected")
	}
}

func TestFail_ThenRetry(t *testing.T) {
	now := time.Now().UTC()
	tk := pendingTask("T1")
	claimed, _ := ClaimTask(&tk, "run-1", "runner-1", time.Minute, now)
	failed, err := Fail(&claimed, "run-1", "boom", nil, now)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}
	retried, err := Retry(&failed, 3, now)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.Status != StatusPending {
		t.Fatalf("expected pending after retry, got %s", retried.Status)
	}
}

func TestRetry_RefusedAtMaxAttempts(t *testing.T) {
	now := time.Now().UTC()
	failed := Task{ID: "T1", Status: StatusFailed, History: []Attempt{{}, {}, {}}}
	if _, err := Retry(&failed, 3, now); err == nil {
		t.Fatal("expected retry refused at max_attempts")
	}
}

func TestAbandon_MissingClaimDefaultsRunID(t *testing.T) {
	now := time.Now().UTC()
	tk := Task{ID: "T1", Status: StatusInProgress}
	out, err := Abandon(&tk, "lease expired", now)
	if err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if out.History[0].RunID != "unknown" {
		t.Fatalf("expected default run_id unknown, got %s", out.History[0].RunID)
	}
}

func TestTerminalStatesRejectAllTransitions(t *testing.T) {
	now := time.Now().UTC()
	for _, s := range []Status{StatusCompleted, StatusCanceled} {
		tk := Task{ID: "T1", Status: s}
		if _, err := Retry(&tk, 3, now); err == nil {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
}
