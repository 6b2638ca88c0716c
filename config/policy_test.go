package config

import (
	"os"
	"path/filepath"
	"testing"
)

// writePolicy creates .claude-gui/policy.yaml under a temp project dir.
func writePolicy(t *testing.T, content string) string {
	t.Helper()
	projectDir := t.TempDir()
	dir := filepath.Join(projectDir, ".claude-gui")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "policy.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return projectDir
}

func TestLoadPolicy_Missing(t *testing.T) {
	p, err := LoadPolicy(t.TempDir())
	if err != nil {
		t.Fatalf("LoadPolicy on missing file: %v", err)
	}
	if p != nil {
		t.Errorf("LoadPolicy on missing file = %+v, want nil", p)
	}
}

func TestLoadPolicy_Valid(t *testing.T) {
	projectDir := writePolicy(t, `
always_allow:
  - Read
  - Glob
always_deny:
  - Bash
`)

	p, err := LoadPolicy(projectDir)
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if p == nil {
		t.Fatal("LoadPolicy returned nil for existing policy")
	}

	if len(p.AlwaysAllow) != 2 || p.AlwaysAllow[0] != "Read" || p.AlwaysAllow[1] != "Glob" {
		t.Errorf("AlwaysAllow = %v, want [Read Glob]", p.AlwaysAllow)
	}
	if len(p.AlwaysDeny) != 1 || p.AlwaysDeny[0] != "Bash" {
		t.Errorf("AlwaysDeny = %v, want [Bash]", p.AlwaysDeny)
	}
}

func TestLoadPolicy_Conflict(t *testing.T) {
	projectDir := writePolicy(t, `
always_allow:
  - Bash
always_deny:
  - Bash
`)

	_, err := LoadPolicy(projectDir)
	if err == nil {
		t.Fatal("LoadPolicy should reject a tool listed in both allow and deny")
	}
}

func TestLoadPolicy_Malformed(t *testing.T) {
	projectDir := writePolicy(t, "always_allow: [unclosed")

	_, err := LoadPolicy(projectDir)
	if err == nil {
		t.Fatal("LoadPolicy should fail on malformed YAML")
	}
}
