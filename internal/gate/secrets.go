package gate

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

type secretPattern struct {
	re   *regexp.Regexp
	name string
}

var secretPatterns = []secretPattern{
	{regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`), "OpenAI API Key"},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "AWS Access Key"},
	{regexp.MustCompile(`(?i)-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE\s+KEY-----`), "Private Key"},
	{regexp.MustCompile(`(?i)(password|secret|api_key|apikey|token)\s*[=:]\s*['"]?[a-zA-Z0-9_\-]{16,}`), "Generic Secret"},
	{regexp.MustCompile(`ghp_[a-zA-Z0-9]{36}`), "GitHub Personal Access Token"},
	{regexp.MustCompile(`gho_[a-zA-Z0-9]{36}`), "GitHub OAuth Token"},
	{regexp.MustCompile(`xox[baprs]-[a-zA-Z0-9\-]{10,}`), "Slack Token"},
}

type secretFinding struct {
	File   string
	Line   int
	Type   string
	Masked string
}

func scanContent(file, content string) []secretFinding {
	var findings []secretFinding
	for _, p := range secretPatterns {
		for _, loc := range p.re.FindAllStringIndex(content, -1) {
			matched := content[loc[0]:loc[1]]
			line := strings.Count(content[:loc[0]], "\n") + 1
			findings = append(findings, secretFinding{File: file, Line: line, Type: p.name, Masked: maskSecret(matched)})
		}
	}
	return findings
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// scanSecrets scans the progress log, archived run results, and the current
// git diff for credential-shaped strings, matching the scan surface of
// original_source's secrets_scanner.py.
func (g *Gate) scanSecrets() Result {
	const cmd = "secrets scan"
	var findings []secretFinding

	if data, err := os.ReadFile(filepath.Join(g.Dir, "progress.txt")); err == nil {
		findings = append(findings, scanContent("progress.txt", string(data))...)
	}

	runsDir := filepath.Join(g.Dir, "runs")
	if entries, err := os.ReadDir(runsDir); err == nil {
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			if data, err := os.ReadFile(filepath.Join(runsDir, e.Name())); err == nil {
				findings = append(findings, scanContent(filepath.Join("runs", e.Name()), string(data))...)
			}
		}
	}

	findings = append(findings, g.scanGitDiff()...)

	if len(findings) == 0 {
		return Result{Command: cmd, ExitCode: 0, Evidence: "SECRETS_OK"}
	}
	parts := make([]string, 0, len(findings))
	for _, f := range findings {
		parts = append(parts, fmt.Sprintf("[%s] %s:%d -> %s", f.Type, f.File, f.Line, f.Masked))
	}
	return Result{Command: cmd, ExitCode: 1, Evidence: "SECRETS_FOUND: " + strings.Join(parts, "; ")}
}

func (g *Gate) scanGitDiff() []secretFinding {
	var findings []secretFinding
	for _, args := range [][]string{{"diff", "--cached"}, {"diff"}} {
		cmd := exec.Command("git", args...)
		cmd.Dir = g.Dir
		out, err := cmd.Output()
		if err != nil {
			continue
		}
		findings = append(findings, scanContent("git diff", string(out))...)
	}
	return findings
}
