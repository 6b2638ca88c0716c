// Package session owns one conversation's transcript and UI-visible state,
// applying decoded stream frames to it.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/yult97/idea-claude-code-gui-sub001/logger"
	"github.com/yult97/idea-claude-code-gui-sub001/message"
	"github.com/yult97/idea-claude-code-gui-sub001/stream"
)

// Listeners receive session notifications. Callbacks are invoked outside the
// session lock and may be nil.
type Listeners struct {
	// OnSessionID fires once, the first time the session id is resolved.
	OnSessionID func(sessionID string)
	// OnUpdated fires after any state change a UI would want to repaint for.
	OnUpdated func()
	// OnTurnFailed fires when the current turn ends in an error.
	OnTurnFailed func(errMsg string)
}

// Session is one conversation transcript plus its streaming flags. Frames are
// applied by a single consumption goroutine; reads from other goroutines go
// through the accessors.
type Session struct {
	mu sync.RWMutex

	id            string
	messages      []message.Message
	busy          bool
	loading       bool
	thinking      bool
	lastError     string
	summary       string
	slashCommands []string
	lastModified  time.Time

	// Index into messages of the assistant message currently being streamed,
	// or -1 when no turn is in flight.
	streamingIdx int

	idNotified bool
	listeners  Listeners
	log        *slog.Logger
}

// New creates an empty session.
func New(listeners Listeners) *Session {
	return &Session{
		streamingIdx: -1,
		listeners:    listeners,
		log:          logger.WithComponent("session"),
	}
}

// AddUserMessage appends a user message and marks the session busy for the
// turn it starts. The first user message becomes the session summary.
func (s *Session) AddUserMessage(text string) {
	s.mu.Lock()
	s.messages = append(s.messages, message.Message{
		Type:      message.TypeUser,
		Content:   text,
		Timestamp: time.Now(),
	})
	if s.summary == "" {
		s.summary = text
	}
	s.busy = true
	s.loading = true
	s.streamingIdx = -1
	s.lastError = ""
	s.lastModified = time.Now()
	s.mu.Unlock()

	s.notifyUpdated()
}

// Apply applies one decoded frame to the session.
func (s *Session) Apply(f stream.Frame) {
	switch fr := f.(type) {
	case stream.SystemFrame:
		if fr.SessionID != "" {
			s.setSessionID(fr.SessionID)
		}

	case stream.SessionIDFrame:
		s.setSessionID(fr.SessionID)

	case stream.ThinkingFrame:
		s.mu.Lock()
		s.thinking = true
		s.mu.Unlock()
		s.notifyUpdated()

	case stream.ContentFrame:
		s.appendDelta(fr.Text)

	case stream.AssistantFrame:
		s.mergeAssistant(fr)

	case stream.UserFrame:
		s.mergeToolResults(fr)

	case stream.ResultFrame:
		if fr.IsError {
			s.FailTurn(fr.Result)
		}

	case stream.MessageEndFrame:
		s.endTurn()

	case stream.SlashCommandsFrame:
		s.mu.Lock()
		s.slashCommands = append([]string(nil), fr.Commands...)
		s.mu.Unlock()
		s.notifyUpdated()

	case stream.SendErrorFrame:
		s.FailTurn(fr.Message)

	case stream.CompletionFrame:
		if fr.SessionID != "" {
			s.setSessionID(fr.SessionID)
		}
		if !fr.Success {
			s.mu.RLock()
			failed := s.lastError != ""
			s.mu.RUnlock()
			if !failed {
				s.FailTurn("send failed")
			}
		}

	case stream.DecodeErrorFrame:
		s.log.Warn("malformed frame, skipping", "error", fr.Err, "line", stream.TruncateForLog(fr.Line))

	case stream.UnknownFrame:
		s.log.Debug("unhandled message type", "type", fr.Type)
	}
}

// setSessionID captures or refreshes the session id, notifying listeners on
// first receipt only.
func (s *Session) setSessionID(id string) {
	s.mu.Lock()
	s.id = id
	first := !s.idNotified
	s.idNotified = true
	s.mu.Unlock()

	if first && s.listeners.OnSessionID != nil {
		s.listeners.OnSessionID(id)
	}
}

// appendDelta appends streamed text to the in-flight assistant message,
// creating it on the first delta of a turn. Real output ends the thinking
// indicator.
func (s *Session) appendDelta(text string) {
	s.mu.Lock()
	s.thinking = false
	s.loading = false
	if s.streamingIdx < 0 {
		s.messages = append(s.messages, message.Message{
			Type:      message.TypeAssistant,
			Timestamp: time.Now(),
		})
		s.streamingIdx = len(s.messages) - 1
	}
	s.messages[s.streamingIdx].Content += text
	s.lastModified = time.Now()
	s.mu.Unlock()

	s.notifyUpdated()
}

// mergeAssistant routes a full assistant frame through the merger and
// recomputes the flattened text view.
func (s *Session) mergeAssistant(fr stream.AssistantFrame) {
	payload, err := message.ParseAssistantPayload(fr.Raw)
	if err != nil {
		s.log.Warn("failed to parse assistant message", "error", err)
		return
	}

	s.mu.Lock()
	s.thinking = false
	s.loading = false
	if s.streamingIdx < 0 {
		s.messages = append(s.messages, message.Message{
			Type:      message.TypeAssistant,
			Timestamp: time.Now(),
		})
		s.streamingIdx = len(s.messages) - 1
	}
	msg := &s.messages[s.streamingIdx]
	msg.Raw = message.Merge(msg.Raw, payload)
	msg.Content = message.FlattenContent(msg.Raw)
	s.lastModified = time.Now()
	s.mu.Unlock()

	s.notifyUpdated()
}

// mergeToolResults folds tool_result blocks from a user frame into the
// in-flight assistant message so each result replaces its placeholder instead
// of duplicating it.
func (s *Session) mergeToolResults(fr stream.UserFrame) {
	payload, err := message.ParseAssistantPayload(fr.Raw)
	if err != nil {
		s.log.Warn("failed to parse user message", "error", err)
		return
	}

	var results []message.ContentBlock
	for _, b := range payload.Content {
		if b.Type == "tool_result" {
			results = append(results, b)
		}
	}
	if len(results) == 0 {
		return
	}

	s.mu.Lock()
	if s.streamingIdx < 0 {
		s.mu.Unlock()
		return
	}
	msg := &s.messages[s.streamingIdx]
	msg.Raw = message.Merge(msg.Raw, &message.AssistantPayload{Content: results})
	msg.Content = message.FlattenContent(msg.Raw)
	s.lastModified = time.Now()
	s.mu.Unlock()

	s.notifyUpdated()
}

// endTurn finalizes the current assistant turn.
func (s *Session) endTurn() {
	s.mu.Lock()
	s.busy = false
	s.loading = false
	s.thinking = false
	s.streamingIdx = -1
	s.lastModified = time.Now()
	s.mu.Unlock()

	s.notifyUpdated()
}

// FailTurn records a terminal failure for the current turn. The transcript
// accumulated so far is preserved; an inline error message is appended.
func (s *Session) FailTurn(errMsg string) {
	if errMsg == "" {
		errMsg = "send failed"
	}

	s.mu.Lock()
	s.messages = append(s.messages, message.Message{
		Type:      message.TypeError,
		Content:   errMsg,
		Timestamp: time.Now(),
	})
	s.lastError = errMsg
	s.busy = false
	s.loading = false
	s.thinking = false
	s.streamingIdx = -1
	s.lastModified = time.Now()
	s.mu.Unlock()

	if s.listeners.OnTurnFailed != nil {
		s.listeners.OnTurnFailed(errMsg)
	}
	s.notifyUpdated()
}

func (s *Session) notifyUpdated() {
	if s.listeners.OnUpdated != nil {
		s.listeners.OnUpdated()
	}
}

// ID returns the resolved session id, or "" before the first system frame.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Messages returns a snapshot of the transcript.
func (s *Session) Messages() []message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]message.Message(nil), s.messages...)
}

// IsBusy reports whether a turn is in flight.
func (s *Session) IsBusy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy
}

// IsLoading reports whether the loading indicator should show (send issued,
// no output yet).
func (s *Session) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// IsThinking reports whether the model is in a reasoning stretch.
func (s *Session) IsThinking() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thinking
}

// LastError returns the last turn failure, or "".
func (s *Session) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Summary returns the session summary, derived from the first user message.
func (s *Session) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// SlashCommands returns the slash commands the agent advertised.
func (s *Session) SlashCommands() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.slashCommands...)
}

// LastModified returns the time of the last state change.
func (s *Session) LastModified() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastModified
}
