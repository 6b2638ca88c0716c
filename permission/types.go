// Package permission implements the arbitration service that decides tool-use
// requests from the agent subprocess: a polling watcher over a shared request
// directory, an in-memory decision cache, and routing to interactive surfaces.
package permission

import "context"

// Request is one tool-use permission request. It exists only for the duration
// of one arbitration round trip; RequestID also names the response file.
type Request struct {
	RequestID string         `json:"requestId"`
	ToolName  string         `json:"toolName"`
	Inputs    map[string]any `json:"inputs"`
}

// Decision is an arbitration outcome. The zero value denies, so every
// failure path is fail-closed by construction.
type Decision struct {
	// Allow grants the request.
	Allow bool `json:"allow"`
	// Always promotes the decision into memory at the tool level, skipping
	// future prompts for this tool.
	Always bool `json:"always,omitempty"`
	// Message optionally carries a human-supplied rejection reason.
	Message string `json:"message,omitempty"`
}

// Surface is one interactive window able to prompt a human for a decision.
// There may be several, one per open project.
type Surface interface {
	// Root is the project directory this surface represents, used for
	// routing requests by file path.
	Root() string

	// Decide presents the request and blocks until the human answers or ctx
	// expires.
	Decide(ctx context.Context, req Request) (Decision, error)
}
