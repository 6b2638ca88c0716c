package permission

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yult97/idea-claude-code-gui-sub001/logger"
)

// WatcherConfig holds the watcher's tuning knobs.
type WatcherConfig struct {
	// PollInterval is how often the request directory is scanned. Polling is
	// deliberate; native filesystem notification is unreliable on at least
	// one supported OS.
	PollInterval time.Duration

	// SettleDelay is how long a newly observed request file is left alone
	// before reading. The subprocess may still be flushing it.
	SettleDelay time.Duration
}

// Watcher polls the shared request directory, deduplicates in-flight
// requests, and dispatches each new one through the arbiter. The directory
// is shared with the subprocess; the watcher never assumes exclusive
// ownership of its contents.
type Watcher struct {
	dir     string
	cfg     WatcherConfig
	arbiter *Arbiter
	writer  *ResponseWriter
	log     *slog.Logger

	// OnDecision, when set, is notified after each arbitration completes.
	OnDecision func(req Request, d Decision)

	mu       sync.Mutex
	inflight map[string]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher over dir.
func NewWatcher(dir string, arbiter *Arbiter, cfg WatcherConfig) *Watcher {
	return &Watcher{
		dir:      dir,
		cfg:      cfg,
		arbiter:  arbiter,
		writer:   NewResponseWriter(dir),
		log:      logger.WithComponent("permission"),
		inflight: make(map[string]struct{}),
	}
}

// Start launches the polling loop. It returns an error only if the request
// directory cannot be created.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(1)
	go w.run(ctx)

	w.log.Info("permission watcher started", "dir", w.dir, "pollInterval", w.cfg.PollInterval)
	return nil
}

// Stop terminates the polling loop and waits for in-flight arbitrations to
// finish.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.log.Info("permission watcher stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

// scan discovers new request files. Transport errors are logged; the loop
// continues on the next tick.
func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn("failed to read request directory", "error", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !isRequestFilename(entry.Name()) {
			continue
		}
		name := entry.Name()
		if !w.claim(name) {
			continue // already being handled
		}
		w.wg.Add(1)
		go w.handle(ctx, name)
	}
}

// claim marks a filename as in flight. Returns false if it already was.
func (w *Watcher) claim(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.inflight[name]; ok {
		return false
	}
	w.inflight[name] = struct{}{}
	return true
}

// release frees the dedup key. Always runs, whatever the handling outcome.
func (w *Watcher) release(name string) {
	w.mu.Lock()
	delete(w.inflight, name)
	w.mu.Unlock()
}

// handle arbitrates one request file.
func (w *Watcher) handle(ctx context.Context, name string) {
	defer w.wg.Done()
	defer w.release(name)

	// Let the subprocess finish flushing the file.
	select {
	case <-ctx.Done():
		return
	case <-time.After(w.cfg.SettleDelay):
	}

	path := filepath.Join(w.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return // consumed elsewhere
		}
		// Retry on the next poll tick.
		w.log.Warn("failed to read request file", "file", name, "error", err)
		return
	}

	requestID := requestIDFromFilename(name)

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		// A file that is still malformed after the settle delay will never
		// parse. Deny and consume it so the subprocess unblocks and the
		// watcher does not re-read it forever.
		w.log.Warn("malformed request file, denying", "file", name, "error", err)
		w.writer.Write(requestID, false)
		return
	}
	if req.RequestID == "" {
		req.RequestID = requestID
	}

	w.log.Info("permission request received", "requestId", req.RequestID, "tool", req.ToolName)

	decision := w.arbiter.Decide(ctx, req)

	if err := w.writer.Write(req.RequestID, decision.Allow); err == nil {
		w.log.Info("permission request resolved",
			"requestId", req.RequestID, "tool", req.ToolName, "allow", decision.Allow)
	}

	if w.OnDecision != nil {
		w.OnDecision(req, decision)
	}
}
