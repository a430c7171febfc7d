// Package intake implements the pipeline that turns a Markdown requirement
// packet dropped in the inbox into tasks merged into the durable store,
// gated, committed, and archived.
package intake

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed is one parsed "### <id>: <title>" subsection under Task Seeds.
type Seed struct {
	ID            string
	Title         string
	Goal          string
	Acceptance    string
	Constraints   string
	Verification  string
	Scope         string
	Priority      string
	DependsOn     []string
}

// Packet is one fully parsed REQ_*.md requirement document.
type Packet struct {
	Path                string
	ReqID               string
	Title               string
	ProjectRequirements string
	ConfigUpdates       map[string]any
	Seeds               []Seed
}

var titleRe = regexp.MustCompile(`(?m)^#\s*(REQ_\w+):\s*(.+)$`)
var statusRe = regexp.MustCompile(`(?mi)^##\s*Status\s*\n+(\w+)`)
var taskHeaderRe = regexp.MustCompile(`^###\s*(\S+):\s*(.+)$`)
var propRe = regexp.MustCompile(`^[-*]\s*(\w+):\s*(.*)$`)
var yamlFenceRe = regexp.MustCompile("(?s)```ya?ml\\s*\\n(.*?)\\n```")

// ScanInbox returns the pending REQ_*.md packets in dir, sorted by filename,
// skipping any whose "## Status" section already reads "processed".
func ScanInbox(dir string) ([]string, error) {
	entries, err := filepath.Glob(filepath.Join(dir, "REQ_*.md"))
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, path := range entries {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if m := statusRe.FindSubmatch(data); m != nil && strings.EqualFold(strings.TrimSpace(string(m[1])), "processed") {
			continue
		}
		pending = append(pending, path)
	}
	sort.Strings(pending)
	return pending, nil
}

// ParsePacket reads and splits a requirement packet into its sections: the
// "## 项目要求" / "## Project Requirements" prose, the "## 运行参数" /
// "## Runtime Parameters" YAML config block, and the "## Task Seeds"
// subsections.
func ParsePacket(path string) (*Packet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	content := string(data)

	p := &Packet{Path: path}
	if m := titleRe.FindStringSubmatch(content); m != nil {
		p.ReqID = m[1]
		p.Title = strings.TrimSpace(m[2])
	} else {
		base := filepath.Base(path)
		p.ReqID = strings.TrimSuffix(base, filepath.Ext(base))
	}

	sections := splitSections(content)
	if v, ok := firstOf(sections, "项目要求", "Project Requirements"); ok {
		p.ProjectRequirements = strings.TrimSpace(v)
	}
	if v, ok := firstOf(sections, "运行参数", "Runtime Parameters"); ok {
		p.ConfigUpdates = parseYAMLParams(v)
	} else {
		p.ConfigUpdates = map[string]any{}
	}
	if v, ok := sections["Task Seeds"]; ok {
		p.Seeds = parseTaskSeeds(v)
	}

	return p, nil
}

func firstOf(sections map[string]string, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := sections[k]; ok {
			return v, true
		}
	}
	return "", false
}

// splitSections breaks content into "## Heading" blocks, keyed by the
// trimmed heading text.
func splitSections(content string) map[string]string {
	sections := map[string]string{}
	var current string
	var buf []string
	flush := func() {
		if current != "" {
			sections[current] = strings.Join(buf, "\n")
		}
	}
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			current = strings.TrimSpace(strings.TrimPrefix(line, "## "))
			buf = nil
			continue
		}
		if current != "" {
			buf = append(buf, line)
		}
	}
	flush()
	return sections
}

func parseYAMLParams(section string) map[string]any {
	text := section
	if m := yamlFenceRe.FindStringSubmatch(section); m != nil {
		text = m[1]
	}
	var out map[string]any
	if err := yaml.Unmarshal([]byte(text), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func parseTaskSeeds(content string) []Seed {
	var seeds []Seed
	var cur *Seed
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "### ") {
			if cur != nil {
				seeds = append(seeds, *cur)
			}
			if m := taskHeaderRe.FindStringSubmatch(line); m != nil {
				cur = &Seed{ID: m[1], Title: strings.TrimSpace(m[2]), Priority: "P1"}
			} else {
				cur = nil
			}
			continue
		}
		if cur == nil {
			continue
		}
		m := propRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key, value := strings.ToLower(m[1]), strings.TrimSpace(m[2])
		switch key {
		case "goal":
			cur.Goal = value
		case "acceptance":
			cur.Acceptance = value
		case "constraints":
			cur.Constraints = value
		case "verification":
			cur.Verification = value
		case "scope":
			cur.Scope = value
		case "priority":
			cur.Priority = value
		case "depends_on":
			cur.DependsOn = parseDependsOn(value)
		}
	}
	if cur != nil {
		seeds = append(seeds, *cur)
	}
	return seeds
}

func parseDependsOn(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
		var out []string
		if json.Unmarshal([]byte(value), &out) == nil {
			return out
		}
		inner := strings.Trim(value, "[]")
		return splitCommaList(inner)
	}
	return splitCommaList(value)
}

func splitCommaList(value string) []string {
	var out []string
	for _, pt := range strings.Split(value, ",") {
		pt = strings.TrimSpace(strings.Trim(pt, `"'`))
		if pt != "" {
			out = append(out, pt)
		}
	}
	return out
}

// Validate checks the structural minimum a packet must carry before it can
// be merged: a req id and at least one task seed, each with a goal and an
// acceptance criterion.
func Validate(p *Packet) []string {
	var errs []string
	if p.ReqID == "" {
		errs = append(errs, "missing req_id")
	}
	if len(p.Seeds) == 0 {
		errs = append(errs, "missing task_seeds")
		return errs
	}
	for i, s := range p.Seeds {
		if s.Goal == "" {
			errs = append(errs, fmtSeedError(i, s.ID, "missing goal"))
		}
		if s.Acceptance == "" {
			errs = append(errs, fmtSeedError(i, s.ID, "missing acceptance"))
		}
	}
	return errs
}

func fmtSeedError(i int, id, reason string) string {
	if id == "" {
		return "task_seeds[" + strconv.Itoa(i) + "] " + reason
	}
	return "task_seeds[" + strconv.Itoa(i) + "] (" + id + ") " + reason
}

// markProcessed moves a packet into an "processed" subdirectory of its own
// inbox so a re-scan never picks it up again.
func markProcessed(path string) error {
	dir := filepath.Join(filepath.Dir(path), "processed")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dir, filepath.Base(path)))
}
