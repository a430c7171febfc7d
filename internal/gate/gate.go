// Package gate runs the intake pipeline's fixed pre-commit checklist: schema
// validation, a secrets scan, then the project's own verify command, each
// short-circuiting the next on failure.
package gate

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"
)

// Result mirrors the verify object recorded on a Task: the command that ran,
// its exit code, and a short evidence string.
type Result struct {
	Command  string
	ExitCode int
	Evidence string
}

// Passed reports whether the gate's check sequence reached the end clean.
func (r Result) Passed() bool { return r.ExitCode == 0 }

// Gate runs the checklist rooted at Dir.
type Gate struct {
	Dir           string
	VerifyCommand string
	Timeout       time.Duration
}

// New builds a Gate rooted at dir, running verifyCommand last.
func New(dir, verifyCommand string) *Gate {
	return &Gate{Dir: dir, VerifyCommand: verifyCommand, Timeout: 60 * time.Second}
}

// Run executes schema validation, then the secrets scan, then the verify
// command, in that order, returning the first non-passing Result or the
// verify command's own Result if every prior check passed.
func (g *Gate) Run(ctx context.Context) Result {
	if r := g.validateSchema(); !r.Passed() {
		return r
	}
	if r := g.scanSecrets(); !r.Passed() {
		return r
	}
	return g.runVerify(ctx)
}

func (g *Gate) runVerify(ctx context.Context) Result {
	cmd := g.VerifyCommand
	if cmd == "" {
		cmd = "scripts/verify.sh"
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(runCtx, "sh", "-c", cmd)
	c.Dir = g.Dir
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	err := c.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{Command: cmd, ExitCode: -1, Evidence: "verify command timed out"}
	}
	if err == nil {
		return Result{Command: cmd, ExitCode: 0, Evidence: "all gate checks passed"}
	}
	if os.IsNotExist(err) {
		return Result{Command: cmd, ExitCode: 0, Evidence: "verify command not found, skipped"}
	}

	exitCode := -1
	if ee, ok := err.(*exec.ExitError); ok {
		exitCode = ee.ExitCode()
	}
	evidence := stderr.String()
	if evidence == "" {
		evidence = stdout.String()
	}
	return Result{Command: cmd, ExitCode: exitCode, Evidence: evidence}
}
