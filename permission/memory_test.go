package permission

import (
	"os"
	"testing"
)

// TestMain points HOME at a temp dir so the lazily initialized logger never
// touches the real user directories.
func TestMain(m *testing.M) {
	tmp, err := os.MkdirTemp("", "permission-test-home")
	if err != nil {
		os.Exit(1)
	}
	os.Setenv("HOME", tmp)
	os.Unsetenv("XDG_CONFIG_HOME")
	os.Unsetenv("XDG_STATE_HOME")
	code := m.Run()
	os.RemoveAll(tmp)
	os.Exit(code)
}

func TestMemory_MissOnEmpty(t *testing.T) {
	m := NewMemory()
	if _, ok := m.Lookup(Request{ToolName: "Bash"}); ok {
		t.Error("empty memory should miss")
	}
}

func TestMemory_ParamLevel(t *testing.T) {
	m := NewMemory()
	req := Request{ToolName: "Bash", Inputs: map[string]any{"command": "ls"}}

	m.Record(req, Decision{Allow: true})

	d, ok := m.Lookup(req)
	if !ok || !d.Allow {
		t.Errorf("Lookup = %+v, %v; want allow hit", d, ok)
	}

	// Same tool, different inputs: miss.
	other := Request{ToolName: "Bash", Inputs: map[string]any{"command": "rm -rf /"}}
	if _, ok := m.Lookup(other); ok {
		t.Error("different inputs should miss the parameter tier")
	}
}

func TestMemory_StructuralHashIgnoresKeyOrder(t *testing.T) {
	m := NewMemory()
	a := Request{ToolName: "Edit", Inputs: map[string]any{
		"file_path":  "/tmp/x.go",
		"old_string": "a",
		"new_string": "b",
	}}
	b := Request{ToolName: "Edit", Inputs: map[string]any{
		"new_string": "b",
		"file_path":  "/tmp/x.go",
		"old_string": "a",
	}}

	m.Record(a, Decision{Allow: true})

	if _, ok := m.Lookup(b); !ok {
		t.Error("structurally equal inputs should hit regardless of map construction order")
	}
}

func TestMemory_ToolLevelWins(t *testing.T) {
	m := NewMemory()
	req := Request{ToolName: "Read", Inputs: map[string]any{"file_path": "/a"}}

	// Parameter tier says deny; tool tier says allow. Tool tier takes
	// precedence.
	m.Record(req, Decision{Allow: false})
	m.SeedAllowed([]string{"Read"})

	d, ok := m.Lookup(req)
	if !ok || !d.Allow {
		t.Errorf("Lookup = %+v, %v; tool-level always should win", d, ok)
	}
}

func TestMemory_AlwaysPromotesToToolLevel(t *testing.T) {
	m := NewMemory()
	req := Request{ToolName: "Glob", Inputs: map[string]any{"pattern": "*.go"}}

	m.Record(req, Decision{Allow: true, Always: true})

	// A request for the same tool with entirely different inputs hits the
	// tool tier.
	other := Request{ToolName: "Glob", Inputs: map[string]any{"pattern": "*.md"}}
	d, ok := m.Lookup(other)
	if !ok || !d.Allow {
		t.Errorf("Lookup = %+v, %v; Always should promote to tool tier", d, ok)
	}
}

func TestMemory_SeedDenied(t *testing.T) {
	m := NewMemory()
	m.SeedDenied([]string{"Bash"})

	d, ok := m.Lookup(Request{ToolName: "Bash", Inputs: map[string]any{"command": "ls"}})
	if !ok || d.Allow {
		t.Errorf("Lookup = %+v, %v; seeded deny should hit with allow=false", d, ok)
	}
}

func TestMemory_Concurrent(t *testing.T) {
	m := NewMemory()
	done := make(chan bool)

	for i := 0; i < 10; i++ {
		go func(n int) {
			req := Request{ToolName: "Bash", Inputs: map[string]any{"command": "ls", "n": n}}
			for j := 0; j < 100; j++ {
				m.Record(req, Decision{Allow: true})
				m.Lookup(req)
			}
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
