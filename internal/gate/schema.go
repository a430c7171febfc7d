package gate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var validStatuses = map[string]bool{
	"pending": true, "in_progress": true, "completed": true,
	"failed": true, "blocked": true, "canceled": true, "abandoned": true,
}

var requiredConfigKeys = []string{"lease_ttl_seconds", "max_attempts", "verify_required"}
var requiredClaimKeys = []string{"claimed_by", "run_id", "claimed_at", "lease_expires_at", "attempt"}

// validateSchema re-parses Task.json as untyped JSON and checks the
// structural invariants a corrupt write could otherwise slip past: a
// version of exactly "2.0", every required config key present, unique task
// ids, statuses drawn from the closed set, and claim objects shaped
// correctly when present.
func (g *Gate) validateSchema() Result {
	const cmd = "schema validation"
	path := filepath.Join(g.Dir, "Task.json")

	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Command: cmd, ExitCode: 1, Evidence: fmt.Sprintf("cannot read %s: %v", path, err)}
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return Result{Command: cmd, ExitCode: 1, Evidence: fmt.Sprintf("invalid JSON: %v", err)}
	}

	var errs []string

	if raw, ok := doc["version"]; !ok {
		errs = append(errs, "missing version field")
	} else {
		var version string
		_ = json.Unmarshal(raw, &version)
		if version != "2.0" {
			errs = append(errs, fmt.Sprintf("version should be \"2.0\", got %q", version))
		}
	}

	if raw, ok := doc["config"]; !ok {
		errs = append(errs, "missing config field")
	} else {
		var cfg map[string]json.RawMessage
		_ = json.Unmarshal(raw, &cfg)
		for _, key := range requiredConfigKeys {
			if _, ok := cfg[key]; !ok {
				errs = append(errs, fmt.Sprintf("config missing required key: %s", key))
			}
		}
	}

	tasksRaw, ok := doc["tasks"]
	if !ok {
		errs = append(errs, "missing tasks field")
	} else {
		var tasks []map[string]json.RawMessage
		if err := json.Unmarshal(tasksRaw, &tasks); err != nil {
			errs = append(errs, "tasks should be an array")
		} else {
			errs = append(errs, validateTasks(tasks)...)
		}
	}

	if len(errs) == 0 {
		return Result{Command: cmd, ExitCode: 0, Evidence: "SCHEMA_OK"}
	}
	return Result{Command: cmd, ExitCode: 1, Evidence: "SCHEMA_ERROR: " + strings.Join(errs, "; ")}
}

func validateTasks(tasks []map[string]json.RawMessage) []string {
	var errs []string
	seen := map[string]bool{}

	for i, t := range tasks {
		idRaw, ok := t["id"]
		if !ok {
			errs = append(errs, fmt.Sprintf("tasks[%d] missing id field", i))
			continue
		}
		var id string
		_ = json.Unmarshal(idRaw, &id)
		if seen[id] {
			errs = append(errs, fmt.Sprintf("duplicate task id: %s", id))
		}
		seen[id] = true

		statusRaw, ok := t["status"]
		if !ok {
			errs = append(errs, fmt.Sprintf("task %q missing status field", id))
		} else {
			var status string
			_ = json.Unmarshal(statusRaw, &status)
			if !validStatuses[status] {
				errs = append(errs, fmt.Sprintf("task %q has invalid status %q", id, status))
			}
		}

		claimRaw, ok := t["claim"]
		if !ok || string(claimRaw) == "null" {
			continue
		}
		var claim map[string]json.RawMessage
		if err := json.Unmarshal(claimRaw, &claim); err != nil {
			errs = append(errs, fmt.Sprintf("task %q claim should be an object", id))
			continue
		}
		for _, key := range requiredClaimKeys {
			if _, ok := claim[key]; !ok {
				errs = append(errs, fmt.Sprintf("task %q claim missing key: %s", id, key))
			}
		}
	}
	return errs
}
