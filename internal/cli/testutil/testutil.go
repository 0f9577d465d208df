// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

// OrdersDoc is a JSON lineage document for a file creating dbo.orders.
const OrdersDoc = `{"file_id":"orders","filename":"orders.sql","nodes":[{"id":"orders","name":"orders.sql","type":"FILE"},{"id":"dbo.orders","name":"dbo.orders","type":"TABLE_OR_VIEW"}],"edges":[{"source":"orders","target":"dbo.orders","relationship":"CREATES"}]}`

// ReportDoc is a YAML lineage document for a file reading dbo.orders and
// the pre-existing dbo.raw.
const ReportDoc = `file_id: report
filename: report.sql
nodes:
  - {id: report, name: report.sql, type: FILE}
  - {id: dbo.orders, name: dbo.orders, type: TABLE_OR_VIEW}
  - {id: dbo.raw, name: dbo.raw, type: TABLE_OR_VIEW}
edges:
  - {source: report, target: dbo.orders, relationship: READS_FROM}
  - {source: report, target: dbo.raw, relationship: READS_FROM}
`

// TestProject is a temporary project with lineage documents and a config
// file.
type TestProject struct {
	Root       string
	LineageDir string
	ConfigPath string
}

// SetupTestProject creates a temporary project. The config keeps state in
// the project and adds extraConfig verbatim.
func SetupTestProject(t *testing.T, extraConfig string) *TestProject {
	t.Helper()

	root := t.TempDir()
	p := &TestProject{
		Root:       root,
		LineageDir: filepath.Join(root, "lineage"),
		ConfigPath: filepath.Join(root, "leapmigrate.yaml"),
	}

	if err := os.MkdirAll(p.LineageDir, 0o750); err != nil {
		t.Fatalf("failed to create directory %s: %v", p.LineageDir, err)
	}
	p.WriteLineage(t, "orders.json", OrdersDoc)
	p.WriteLineage(t, "report.yaml", ReportDoc)

	cfg := "state_path: state/state.db\n" + extraConfig
	if err := os.WriteFile(p.ConfigPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return p
}

// WriteLineage writes a lineage document into the project's lineage dir.
func (p *TestProject) WriteLineage(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(p.LineageDir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
