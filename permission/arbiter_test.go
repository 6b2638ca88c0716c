package permission

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestArbiter_MemoryHitSkipsRouter(t *testing.T) {
	memory := NewMemory()
	memory.SeedAllowed([]string{"Read"})
	router := NewRouter()
	surface := &stubSurface{root: "/proj", decision: Decision{Allow: false}}
	router.Register(surface)

	a := NewArbiter(memory, router, nil, time.Second)

	d := a.Decide(context.Background(), Request{ToolName: "Read", Inputs: map[string]any{"file_path": "/proj/x"}})
	if !d.Allow {
		t.Error("always-allowed tool should be granted")
	}
	if surface.calls != 0 {
		t.Errorf("surface invoked %d times, want 0 on memory hit", surface.calls)
	}
}

func TestArbiter_AllowAlwaysThenRepeats(t *testing.T) {
	// One request answered AllowAlways; three identical requests afterwards
	// all resolve immediately with zero surface invocations.
	memory := NewMemory()
	router := NewRouter()
	surface := &stubSurface{root: "/proj", decision: Decision{Allow: true, Always: true}}
	router.Register(surface)

	a := NewArbiter(memory, router, nil, time.Second)
	req := Request{ToolName: "Bash", Inputs: map[string]any{"command": "make test"}}

	if d := a.Decide(context.Background(), req); !d.Allow {
		t.Fatal("first request should be granted by the surface")
	}
	if surface.calls != 1 {
		t.Fatalf("surface calls = %d, want 1", surface.calls)
	}

	for i := 0; i < 3; i++ {
		if d := a.Decide(context.Background(), req); !d.Allow {
			t.Error("repeat request should be granted from memory")
		}
	}
	if surface.calls != 1 {
		t.Errorf("surface calls = %d, want still 1 after repeats", surface.calls)
	}
}

func TestArbiter_SurfaceDecisionRecorded(t *testing.T) {
	memory := NewMemory()
	router := NewRouter()
	surface := &stubSurface{root: "/proj", decision: Decision{Allow: false, Message: "not now"}}
	router.Register(surface)

	a := NewArbiter(memory, router, nil, time.Second)
	req := Request{ToolName: "Write", Inputs: map[string]any{"file_path": "/proj/x"}}

	a.Decide(context.Background(), req)
	a.Decide(context.Background(), req)

	if surface.calls != 1 {
		t.Errorf("surface calls = %d, want 1 (second answered from parameter memory)", surface.calls)
	}
}

func TestArbiter_NoSurfaceUsesPrompt(t *testing.T) {
	promptCalls := 0
	prompt := func(_ context.Context, _ Request) (Decision, error) {
		promptCalls++
		return Decision{Allow: true}, nil
	}

	a := NewArbiter(NewMemory(), NewRouter(), prompt, time.Second)

	d := a.Decide(context.Background(), Request{ToolName: "Bash", Inputs: map[string]any{"command": "ls"}})
	if !d.Allow || promptCalls != 1 {
		t.Errorf("decision = %+v, promptCalls = %d", d, promptCalls)
	}
}

func TestArbiter_NoSurfaceNoPromptDenies(t *testing.T) {
	a := NewArbiter(NewMemory(), NewRouter(), nil, time.Second)

	d := a.Decide(context.Background(), Request{ToolName: "Bash"})
	if d.Allow {
		t.Error("no surface and no prompt must deny")
	}
}

func TestArbiter_TimeoutDenies(t *testing.T) {
	hang := func(ctx context.Context, _ Request) (Decision, error) {
		<-ctx.Done()
		return Decision{Allow: true}, ctx.Err()
	}

	a := NewArbiter(NewMemory(), NewRouter(), hang, 30*time.Millisecond)

	start := time.Now()
	d := a.Decide(context.Background(), Request{ToolName: "Bash"})
	elapsed := time.Since(start)

	if d.Allow {
		t.Error("timed-out arbitration must deny")
	}
	if elapsed > time.Second {
		t.Errorf("deadline not enforced, took %v", elapsed)
	}
}

func TestArbiter_TimeoutNotRecorded(t *testing.T) {
	calls := 0
	prompt := func(ctx context.Context, _ Request) (Decision, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return Decision{}, ctx.Err()
		}
		return Decision{Allow: true}, nil
	}

	a := NewArbiter(NewMemory(), NewRouter(), prompt, 30*time.Millisecond)
	req := Request{ToolName: "Bash", Inputs: map[string]any{"command": "ls"}}

	if d := a.Decide(context.Background(), req); d.Allow {
		t.Fatal("first call should time out and deny")
	}
	// A timeout deny is not remembered; the next identical request prompts
	// again.
	if d := a.Decide(context.Background(), req); !d.Allow {
		t.Error("second call should prompt again and be granted")
	}
	if calls != 2 {
		t.Errorf("prompt calls = %d, want 2", calls)
	}
}

func TestArbiter_SurfaceErrorDenies(t *testing.T) {
	memory := NewMemory()
	router := NewRouter()
	router.Register(&failingSurface{root: "/proj"})

	a := NewArbiter(memory, router, nil, time.Second)
	req := Request{ToolName: "Edit", Inputs: map[string]any{"file_path": "/proj/x"}}

	if d := a.Decide(context.Background(), req); d.Allow {
		t.Error("surface error must deny")
	}
	// Errors are not remembered either.
	if _, ok := memory.Lookup(req); ok {
		t.Error("failed arbitration must not be recorded")
	}
}

type failingSurface struct {
	root string
}

func (f *failingSurface) Root() string { return f.root }

func (f *failingSurface) Decide(_ context.Context, _ Request) (Decision, error) {
	return Decision{}, errors.New("dialog crashed")
}
