package permission

import (
	"path/filepath"
	"strings"
	"sync"
)

// Router selects which registered interactive surface should receive a
// request, based on best-prefix match of a file path extracted from the
// request inputs.
type Router struct {
	mu       sync.RWMutex
	surfaces []Surface
}

// NewRouter creates a router with no surfaces.
func NewRouter() *Router {
	return &Router{}
}

// Register adds a surface. Registration order matters: the first registered
// surface is the fallback when no path-based match succeeds.
func (r *Router) Register(s Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surfaces = append(r.surfaces, s)
}

// Unregister removes a surface.
func (r *Router) Unregister(s Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.surfaces {
		if existing == s {
			r.surfaces = append(r.surfaces[:i], r.surfaces[i+1:]...)
			return
		}
	}
}

// Route picks the surface for a request, or nil when none is registered.
// An exact path match wins outright; otherwise the surface whose root is the
// longest separator-boundary prefix of the candidate path wins; otherwise the
// first registered surface.
func (r *Router) Route(req Request) Surface {
	r.mu.RLock()
	surfaces := append([]Surface(nil), r.surfaces...)
	r.mu.RUnlock()

	if len(surfaces) == 0 {
		return nil
	}

	candidate := ExtractCandidatePath(req.Inputs)
	if candidate == "" {
		return surfaces[0]
	}
	candidate = filepath.Clean(candidate)

	var best Surface
	bestLen := -1
	for _, s := range surfaces {
		root := filepath.Clean(s.Root())
		if candidate == root {
			return s
		}
		if isPathPrefix(root, candidate) && len(root) > bestLen {
			best = s
			bestLen = len(root)
		}
	}
	if best != nil {
		return best
	}
	return surfaces[0]
}

// pathFields are the input keys checked for a candidate path, in priority
// order.
var pathFields = []string{"file_path", "path", "notebook_path"}

// ExtractCandidatePath pulls a file path out of request inputs: explicit path
// fields first, then a scan of a shell command string for path-like tokens.
// Returns "" when nothing path-like is found.
func ExtractCandidatePath(inputs map[string]any) string {
	for _, key := range pathFields {
		if s, ok := inputs[key].(string); ok && s != "" {
			return s
		}
	}
	if cmd, ok := inputs["command"].(string); ok && cmd != "" {
		return scanCommandForPath(cmd)
	}
	return ""
}

// scanCommandForPath returns the first path-like token of a shell command.
// Option flags are skipped; a token counts as path-like when it contains a
// separator or is home-anchored.
func scanCommandForPath(cmd string) string {
	for _, tok := range strings.Fields(cmd) {
		tok = strings.Trim(tok, `"'`)
		if tok == "" || strings.HasPrefix(tok, "-") {
			continue
		}
		if strings.Contains(tok, "://") {
			continue // URL, not a filesystem path
		}
		if strings.HasPrefix(tok, "/") || strings.HasPrefix(tok, "~") || strings.Contains(tok, "/") {
			return tok
		}
	}
	return ""
}

// isPathPrefix reports whether root is a prefix of path anchored on a
// separator boundary. "/app" is not a prefix of "/app-v2/file".
func isPathPrefix(root, path string) bool {
	if !strings.HasPrefix(path, root) {
		return false
	}
	if len(path) == len(root) {
		return true
	}
	if strings.HasSuffix(root, string(filepath.Separator)) {
		return true
	}
	return path[len(root)] == filepath.Separator
}
