package permission

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/yult97/idea-claude-code-gui-sub001/logger"
)

// File naming convention shared with the agent subprocess.
const (
	requestPrefix  = "request-"
	responsePrefix = "response-"
	fileSuffix     = ".json"
)

// responsePayload is the wire shape of a response file.
type responsePayload struct {
	Allow bool `json:"allow"`
}

// ResponseWriter writes arbitration outcomes back to the file transport.
type ResponseWriter struct {
	dir string
	log *slog.Logger
}

// NewResponseWriter creates a writer for the given request directory.
func NewResponseWriter(dir string) *ResponseWriter {
	return &ResponseWriter{
		dir: dir,
		log: logger.WithComponent("permission"),
	}
}

// Write drops response-<id>.json next to the request and then deletes the
// request file. A write failure is logged and returned but must not crash
// the watcher loop: the subprocess stays blocked until its own timeout,
// which is the acceptable degraded mode under the fail-closed policy.
func (w *ResponseWriter) Write(requestID string, allow bool) error {
	data, err := json.Marshal(responsePayload{Allow: allow})
	if err != nil {
		w.log.Error("failed to marshal response", "requestId", requestID, "error", err)
		return err
	}

	respPath := filepath.Join(w.dir, responsePrefix+requestID+fileSuffix)
	if err := os.WriteFile(respPath, data, 0644); err != nil {
		w.log.Error("failed to write response file", "requestId", requestID, "error", err)
		return err
	}

	reqPath := filepath.Join(w.dir, requestPrefix+requestID+fileSuffix)
	if err := os.Remove(reqPath); err != nil && !os.IsNotExist(err) {
		w.log.Warn("failed to delete request file", "requestId", requestID, "error", err)
	}

	w.log.Debug("response written", "requestId", requestID, "allow", allow)
	return nil
}

// requestIDFromFilename recovers the request id from request-<id>.json, or ""
// if the name does not follow the convention.
func requestIDFromFilename(name string) string {
	if !isRequestFilename(name) {
		return ""
	}
	return name[len(requestPrefix) : len(name)-len(fileSuffix)]
}

// isRequestFilename reports whether name follows the request file convention.
func isRequestFilename(name string) bool {
	return len(name) > len(requestPrefix)+len(fileSuffix) &&
		name[:len(requestPrefix)] == requestPrefix &&
		name[len(name)-len(fileSuffix):] == fileSuffix
}
