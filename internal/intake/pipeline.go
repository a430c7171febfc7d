package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"taskctl/internal/gate"
	"taskctl/internal/progresslog"
	"taskctl/internal/store"
	"taskctl/internal/task"
)

// Result reports what ProcessPacket did with one requirement document.
type Result struct {
	ReqID           string
	RunID           string
	Status          string // completed | blocked | failed
	TasksAdded      []string
	ConfigUpdates   map[string]any
	ClaudeMDSummary string
	Verify          gate.Result
	Git             GitResult
	Error           string
	NeedsHuman      bool
}

// GitResult is the commit recorded for a processed packet.
type GitResult struct {
	Commit string
	Branch string
}

// Pipeline wires the store, progress log, and gate a requirement packet is
// processed through.
type Pipeline struct {
	Dir          string
	ClaudeMDPath string
	Store        *store.Store
	Log          *progresslog.Logger
	Gate         *gate.Gate
}

// New builds a Pipeline rooted at dir.
func New(dir, claudeMDPath string, st *store.Store, log *progresslog.Logger, g *gate.Gate) *Pipeline {
	return &Pipeline{Dir: dir, ClaudeMDPath: claudeMDPath, Store: st, Log: log, Gate: g}
}

// ProcessPacket runs one packet through parse -> validate -> merge -> gate
// -> commit -> archive. A validation failure or an unparseable packet leaves
// the inbox and the store untouched. A gate failure rolls the store and
// CLAUDE.md back to their pre-merge snapshot and leaves the packet in the
// inbox for a human to retry after fixing the cause.
func (p *Pipeline) ProcessPacket(runID, path string) Result {
	result := Result{RunID: runID, Status: "failed"}

	packet, err := ParsePacket(path)
	if err != nil {
		result.Error = fmt.Sprintf("parse failed: %v", err)
		result.NeedsHuman = true
		_ = p.Log.IntakeFail(runID, path, result.Error)
		return result
	}
	result.ReqID = packet.ReqID

	if errs := Validate(packet); len(errs) > 0 {
		result.Error = "validation failed: " + strings.Join(errs, "; ")
		result.NeedsHuman = true
		_ = p.Log.IntakeFail(runID, packet.ReqID, result.Error)
		return result
	}

	_ = p.Log.IntakeStart(runID, packet.ReqID, path)

	claudeBackup, claudeExisted := p.readClaudeMD()

	var storeBackup *store.TaskStore
	var tasksAdded []string
	var claudeSummary string

	err = p.Store.WithLock(func(ts *store.TaskStore) (bool, error) {
		storeBackup = deepCopyStore(ts)

		summary, err := p.mergeClaudeMD(packet.ProjectRequirements)
		if err != nil {
			return false, err
		}
		claudeSummary = summary

		if len(packet.ConfigUpdates) > 0 {
			mergeConfig(&ts.Config, packet.ConfigUpdates)
		}

		existing := map[string]bool{}
		for _, t := range ts.Tasks {
			existing[t.ID] = true
		}
		newTasks, added := convertSeeds(packet.Seeds, existing, time.Now().UTC())
		ts.Tasks = append(ts.Tasks, newTasks...)
		tasksAdded = added
		return true, nil
	})
	if err != nil {
		result.Error = err.Error()
		result.NeedsHuman = true
		_ = p.Log.IntakeFail(runID, packet.ReqID, result.Error)
		return result
	}

	result.TasksAdded = tasksAdded
	result.ConfigUpdates = packet.ConfigUpdates
	result.ClaudeMDSummary = claudeSummary

	gateResult := p.Gate.Run(context.Background())
	result.Verify = gateResult
	if !gateResult.Passed() {
		p.rollback(storeBackup, claudeBackup, claudeExisted)
		result.Status = "blocked"
		result.Error = fmt.Sprintf("gate failed: %s", gateResult.Evidence)
		result.NeedsHuman = true
		_ = p.Log.IntakeFail(runID, packet.ReqID, result.Error)
		return result
	}

	gitResult := p.commit(packet.ReqID, tasksAdded)
	result.Git = gitResult
	if gitResult.Commit == "" {
		result.Status = "blocked"
		result.Error = "git commit failed"
		result.NeedsHuman = true
		_ = p.Log.IntakeFail(runID, packet.ReqID, result.Error)
		return result
	}

	if err := markProcessed(path); err != nil {
		result.Status = "blocked"
		result.Error = fmt.Sprintf("failed to archive packet: %v", err)
		result.NeedsHuman = true
		return result
	}

	result.Status = "completed"
	_ = p.Log.IntakeComplete(runID, packet.ReqID, tasksAdded, claudeSummary, gitResult.Commit)
	return result
}

func (p *Pipeline) readClaudeMD() (data []byte, existed bool) {
	data, err := os.ReadFile(p.ClaudeMDPath)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (p *Pipeline) rollback(storeBackup *store.TaskStore, claudeBackup []byte, claudeExisted bool) {
	_ = p.Store.WithLock(func(ts *store.TaskStore) (bool, error) {
		*ts = *storeBackup
		return true, nil
	})
	if claudeExisted {
		_ = os.WriteFile(p.ClaudeMDPath, claudeBackup, 0o644)
	}
}

func deepCopyStore(ts *store.TaskStore) *store.TaskStore {
	data, _ := json.Marshal(ts)
	var out store.TaskStore
	_ = json.Unmarshal(data, &out)
	return &out
}

// mergeClaudeMD inserts projectRequirements into CLAUDE.md's "## 项目要求"
// section (or appends one), timestamped, so repeated intake runs never
// overwrite an earlier merge's context.
func (p *Pipeline) mergeClaudeMD(projectRequirements string) (string, error) {
	if projectRequirements == "" {
		return "no project requirements to merge", nil
	}
	data, err := os.ReadFile(p.ClaudeMDPath)
	if os.IsNotExist(err) {
		return "CLAUDE.md does not exist, skipped merge", nil
	}
	if err != nil {
		return "", err
	}
	content := string(data)

	timestamp := time.Now().UTC().Format("2006-01-02 15:04")
	block := fmt.Sprintf("\n<!-- intake auto-merged %s -->\n%s\n<!-- end intake -->\n", timestamp, projectRequirements)

	const heading = "## 项目要求"
	idx := strings.Index(content, heading)
	var newContent, summary string
	if idx >= 0 {
		insertAt := idx + len(heading)
		if nl := strings.Index(content[insertAt:], "\n"); nl >= 0 {
			insertAt += nl + 1
		} else {
			insertAt = len(content)
		}
		newContent = content[:insertAt] + block + content[insertAt:]
		summary = "inserted into existing '" + heading + "' section"
	} else {
		newContent = content + "\n\n" + heading + "\n" + block
		summary = "appended new '" + heading + "' section"
	}

	if err := os.WriteFile(p.ClaudeMDPath, []byte(newContent), 0o644); err != nil {
		return "", err
	}
	return summary, nil
}

func mergeConfig(cfg *store.Config, updates map[string]any) {
	if v, ok := updates["lease_ttl_seconds"]; ok {
		cfg.LeaseTTLSeconds = toInt(v)
	}
	if v, ok := updates["max_attempts"]; ok {
		cfg.MaxAttempts = toInt(v)
	}
	if v, ok := updates["verify_required"]; ok {
		cfg.VerifyRequired = toBool(v)
	}
	if v, ok := updates["verify_command"]; ok {
		cfg.VerifyCommand = toString(v)
	}
	if v, ok := updates["retention_days"]; ok {
		cfg.RetentionDays = toInt(v)
	}
	if v, ok := updates["max_runs_mb"]; ok {
		cfg.MaxRunsMB = toInt(v)
	}
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	}
	return 0
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

// convertSeeds turns parsed task seeds into full Task records, folding each
// seed's structured fields into the description/notes and renaming on id
// collision rather than silently dropping the seed.
func convertSeeds(seeds []Seed, existing map[string]bool, now time.Time) ([]task.Task, []string) {
	var tasks []task.Task
	var added []string

	for _, s := range seeds {
		id, renameNote := uniqueID(s.ID, existing)
		existing[id] = true

		var desc strings.Builder
		desc.WriteString(s.Title)
		if s.Goal != "" {
			fmt.Fprintf(&desc, "\ngoal: %s", s.Goal)
		}
		if s.Acceptance != "" {
			fmt.Fprintf(&desc, "\nacceptance: %s", s.Acceptance)
		}
		if s.Constraints != "" {
			fmt.Fprintf(&desc, "\nconstraints: %s", s.Constraints)
		}

		var notes []string
		if s.Verification != "" {
			notes = append(notes, "verify: "+s.Verification)
		}
		if s.Scope != "" {
			notes = append(notes, "scope: "+s.Scope)
		}
		if s.Priority != "" {
			notes = append(notes, "priority: "+s.Priority)
		}
		if renameNote != "" {
			notes = append(notes, renameNote)
		}

		tasks = append(tasks, task.Task{
			ID:          id,
			Description: desc.String(),
			Status:      task.StatusPending,
			DependsOn:   s.DependsOn,
			History:     []task.Attempt{},
			Notes:       strings.Join(notes, "\n"),
			LastUpdate:  now,
		})
		added = append(added, id)
	}
	return tasks, added
}

func uniqueID(base string, existing map[string]bool) (id, renameNote string) {
	if base == "" {
		base = "task"
	}
	if !existing[base] {
		return base, ""
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !existing[candidate] {
			return candidate, fmt.Sprintf("renamed from %s due to id collision", base)
		}
	}
}

// commit stages Task.json and CLAUDE.md and commits them, matching the
// teacher's exec.Command("git", ...) invocation pattern rather than a Go git
// library (none appears anywhere in the pack).
func (p *Pipeline) commit(reqID string, tasksAdded []string) GitResult {
	addCmd := exec.Command("git", "add", "Task.json", "CLAUDE.md")
	addCmd.Dir = p.Dir
	_ = addCmd.Run()

	branch := "main"
	branchCmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	branchCmd.Dir = p.Dir
	if out, err := branchCmd.Output(); err == nil {
		branch = strings.TrimSpace(string(out))
	}

	list := tasksAdded
	suffix := ""
	if len(list) > 5 {
		suffix = fmt.Sprintf(" (+%d more)", len(list)-5)
		list = list[:5]
	}
	msg := fmt.Sprintf("feat(intake): process %s, add %d task(s) [%s]%s", reqID, len(tasksAdded), strings.Join(list, ", "), suffix)

	commitCmd := exec.Command("git", "commit", "-m", msg)
	commitCmd.Dir = p.Dir
	out, err := commitCmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), "nothing to commit") {
			return GitResult{Commit: "no-change", Branch: branch}
		}
		return GitResult{Branch: branch}
	}

	commit := ""
	hashCmd := exec.Command("git", "rev-parse", "--short", "HEAD")
	hashCmd.Dir = p.Dir
	if out, err := hashCmd.Output(); err == nil {
		commit = strings.TrimSpace(string(out))
	}
	return GitResult{Commit: commit, Branch: branch}
}
