package intake

import (
	"os"
	"path/filepath"
	"testing"
)

const samplePacket = `# REQ_0001: Add health endpoint

## Status

pending

## 项目要求

Every service must expose a /healthz endpoint returning 200 when ready.

## 运行参数

` + "```yaml" + `
verify_command: go test ./...
max_attempts: 5
` + "```" + `

## Task Seeds

### health-endpoint: add /healthz route
- goal: expose liveness status over HTTP
- acceptance: GET /healthz returns 200 with body "ok"
- constraints: no new third-party deps
- verification: go test ./internal/health/...
- scope: internal/health
- priority: P1
- depends_on: []
`

func writePacket(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScanInboxSkipsProcessed(t *testing.T) {
	dir := t.TempDir()
	writePacket(t, dir, "REQ_0001.md", samplePacket)
	writePacket(t, dir, "REQ_0002.md", "# REQ_0002: done\n\n## Status\n\nprocessed\n")

	pending, err := ScanInbox(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || filepath.Base(pending[0]) != "REQ_0001.md" {
		t.Fatalf("expected only REQ_0001.md pending, got %v", pending)
	}
}

func TestParsePacketExtractsSections(t *testing.T) {
	dir := t.TempDir()
	path := writePacket(t, dir, "REQ_0001.md", samplePacket)

	p, err := ParsePacket(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.ReqID != "REQ_0001" {
		t.Fatalf("expected req id REQ_0001, got %q", p.ReqID)
	}
	if p.ProjectRequirements == "" {
		t.Fatal("expected project requirements to be parsed")
	}
	if p.ConfigUpdates["verify_command"] != "go test ./..." {
		t.Fatalf("expected verify_command from runtime params, got %+v", p.ConfigUpdates)
	}
	if len(p.Seeds) != 1 {
		t.Fatalf("expected exactly one task seed, got %d", len(p.Seeds))
	}
	seed := p.Seeds[0]
	if seed.ID != "health-endpoint" || seed.Goal == "" || seed.Acceptance == "" {
		t.Fatalf("seed fields not parsed correctly: %+v", seed)
	}
}

func TestValidateRejectsMissingAcceptance(t *testing.T) {
	p := &Packet{ReqID: "REQ_0009", Seeds: []Seed{{ID: "x", Goal: "do a thing"}}}
	errs := Validate(p)
	if len(errs) == 0 {
		t.Fatal("expected a validation error for missing acceptance")
	}
}

func TestValidateAcceptsWellFormedPacket(t *testing.T) {
	p := &Packet{ReqID: "REQ_0001", Seeds: []Seed{{ID: "x", Goal: "a", Acceptance: "b"}}}
	if errs := Validate(p); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestParseDependsOnHandlesBracketAndCommaForms(t *testing.T) {
	if got := parseDependsOn(`["a", "b"]`); len(got) != 2 {
		t.Fatalf("expected bracketed form to parse two ids, got %v", got)
	}
	if got := parseDependsOn("a, b"); len(got) != 2 {
		t.Fatalf("expected comma form to parse two ids, got %v", got)
	}
	if got := parseDependsOn(""); got != nil {
		t.Fatalf("expected empty depends_on to parse as nil, got %v", got)
	}
}
