package permission

import (
	"context"
	"log/slog"
	"time"

	"github.com/yult97/idea-claude-code-gui-sub001/logger"
)

// PromptFunc is the synchronous fallback used when no surface is registered.
// It blocks until a decision is made or ctx expires.
type PromptFunc func(ctx context.Context, req Request) (Decision, error)

// Arbiter decides one permission request: decision memory first, then the
// routed surface, then the blocking prompt fallback. Every path that does not
// produce an explicit allow resolves to deny before the timeout elapses.
type Arbiter struct {
	memory  *Memory
	router  *Router
	prompt  PromptFunc
	timeout time.Duration
	log     *slog.Logger
}

// NewArbiter creates an arbiter. prompt may be nil, in which case requests
// with no registered surface are denied immediately.
func NewArbiter(memory *Memory, router *Router, prompt PromptFunc, timeout time.Duration) *Arbiter {
	return &Arbiter{
		memory:  memory,
		router:  router,
		prompt:  prompt,
		timeout: timeout,
		log:     logger.WithComponent("permission"),
	}
}

// Memory returns the arbiter's decision memory.
func (a *Arbiter) Memory() *Memory {
	return a.memory
}

// Router returns the arbiter's dialog router.
func (a *Arbiter) Router() *Router {
	return a.router
}

// Decide resolves one request. A memory hit answers without any UI round
// trip; otherwise the request goes to the routed surface (or the prompt
// fallback) under the arbitration deadline. Timeouts and surface errors deny.
func (a *Arbiter) Decide(ctx context.Context, req Request) Decision {
	if d, ok := a.memory.Lookup(req); ok {
		a.log.Debug("decision from memory", "tool", req.ToolName, "allow", d.Allow)
		return d
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	decide := a.prompt
	if surface := a.router.Route(req); surface != nil {
		decide = surface.Decide
	}
	if decide == nil {
		a.log.Warn("no surface registered and no prompt fallback, denying",
			"tool", req.ToolName, "requestId", req.RequestID)
		return Decision{Message: "no interactive surface available"}
	}

	d, err := a.resolve(ctx, req, decide)
	if err != nil {
		a.log.Warn("arbitration failed, denying",
			"tool", req.ToolName, "requestId", req.RequestID, "error", err)
		return Decision{Message: "arbitration failed"}
	}

	a.memory.Record(req, d)
	a.log.Info("decision recorded", "tool", req.ToolName, "allow", d.Allow, "always", d.Always)
	return d
}

// resolve runs the decision function with exactly one completion path:
// answer, error, or deadline.
func (a *Arbiter) resolve(ctx context.Context, req Request, decide PromptFunc) (Decision, error) {
	type outcome struct {
		d   Decision
		err error
	}
	// Buffered so a late answer after timeout does not leak the goroutine.
	ch := make(chan outcome, 1)

	go func() {
		d, err := decide(ctx, req)
		ch <- outcome{d, err}
	}()

	select {
	case out := <-ch:
		return out.d, out.err
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}
