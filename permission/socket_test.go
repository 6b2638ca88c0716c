package permission

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func startSocketPair(t *testing.T, arbiter *Arbiter) *SocketClient {
	t.Helper()

	server, err := NewSocketServer(uuid.NewString(), arbiter)
	if err != nil {
		t.Fatalf("NewSocketServer: %v", err)
	}
	server.Start()
	server.WaitReady()
	t.Cleanup(func() { server.Close() })

	client, err := NewSocketClient(server.SocketPath())
	if err != nil {
		t.Fatalf("NewSocketClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client
}

func TestSocket_AllowRoundTrip(t *testing.T) {
	memory := NewMemory()
	memory.SeedAllowed([]string{"Read"})
	arbiter := NewArbiter(memory, NewRouter(), nil, time.Second)

	client := startSocketPair(t, arbiter)

	d, err := client.Ask(Request{
		RequestID: uuid.NewString(),
		ToolName:  "Read",
		Inputs:    map[string]any{"file_path": "/proj/a.go"},
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !d.Allow {
		t.Error("always-allowed tool should be granted over the socket")
	}
}

func TestSocket_DenyWhenNoSurface(t *testing.T) {
	arbiter := NewArbiter(NewMemory(), NewRouter(), nil, 50*time.Millisecond)

	client := startSocketPair(t, arbiter)

	d, err := client.Ask(Request{
		RequestID: uuid.NewString(),
		ToolName:  "Bash",
		Inputs:    map[string]any{"command": "ls"},
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if d.Allow {
		t.Error("request with no surface must be denied over the socket")
	}
}

func TestSocket_SequentialRequests(t *testing.T) {
	memory := NewMemory()
	memory.SeedAllowed([]string{"Glob"})
	memory.SeedDenied([]string{"Bash"})
	arbiter := NewArbiter(memory, NewRouter(), nil, time.Second)

	client := startSocketPair(t, arbiter)

	d, err := client.Ask(Request{RequestID: "1", ToolName: "Glob", Inputs: map[string]any{"pattern": "*"}})
	if err != nil || !d.Allow {
		t.Errorf("Glob: d=%+v err=%v, want allow", d, err)
	}

	d, err = client.Ask(Request{RequestID: "2", ToolName: "Bash", Inputs: map[string]any{"command": "ls"}})
	if err != nil || d.Allow {
		t.Errorf("Bash: d=%+v err=%v, want deny", d, err)
	}
}
