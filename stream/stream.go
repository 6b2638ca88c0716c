// Package stream decodes the line-oriented event stream emitted by the agent
// subprocess. Each meaningful line carries a bracketed tag followed by a
// payload; the decoder turns one line into one typed Frame without
// interpreting payload semantics.
package stream

import (
	"encoding/json"
	"strings"
)

// Line tags used by the agent subprocess.
const (
	tagMessage       = "[MESSAGE] "
	tagContent       = "[CONTENT] "
	tagThinking      = "[THINKING] "
	tagSessionID     = "[SESSION_ID] "
	tagMessageEnd    = "[MESSAGE_END]"
	tagSlashCommands = "[SLASH_COMMANDS] "
	tagSendError     = "[SEND_ERROR] "
)

// Frame is one decoded unit from the event stream. The set of implementations
// is closed; callers switch on the concrete type.
type Frame interface {
	frame()
}

// SystemFrame is a [MESSAGE] event with type "system". It may carry the
// resolved session id (init subtype).
type SystemFrame struct {
	Subtype   string
	SessionID string
	Raw       json.RawMessage
}

// AssistantFrame is a [MESSAGE] event with type "assistant". Raw holds the
// full structured message for the merger; the decoder does not dig into it.
type AssistantFrame struct {
	Raw json.RawMessage
}

// UserFrame is a [MESSAGE] event with type "user" (tool results echoed back
// through the stream).
type UserFrame struct {
	Raw json.RawMessage
}

// ResultFrame is a [MESSAGE] event with type "result", closing a turn.
type ResultFrame struct {
	Subtype string
	IsError bool
	Result  string
	Raw     json.RawMessage
}

// ContentFrame is a [CONTENT] text delta for the streaming assistant message.
type ContentFrame struct {
	Text string
}

// ThinkingFrame is a [THINKING] text delta emitted while the model reasons.
type ThinkingFrame struct {
	Text string
}

// SessionIDFrame carries the resolved session id for the channel.
type SessionIDFrame struct {
	SessionID string
}

// MessageEndFrame marks the end of the current assistant turn.
type MessageEndFrame struct{}

// SlashCommandsFrame carries the slash commands the agent advertises.
type SlashCommandsFrame struct {
	Commands []string
}

// SendErrorFrame reports a send failure from the subprocess side.
type SendErrorFrame struct {
	Message string
	Raw     json.RawMessage
}

// CompletionFrame is the final bare JSON line signalling turn completion to
// the invoking side.
type CompletionFrame struct {
	Success   bool
	SessionID string
}

// UnknownFrame is a [MESSAGE] event whose type field is not one of the known
// values. The raw payload is preserved so callers can log it.
type UnknownFrame struct {
	Type string
	Raw  json.RawMessage
}

// DecodeErrorFrame reports malformed JSON inside a recognized frame. The
// stream continues; callers log the raw line and move on.
type DecodeErrorFrame struct {
	Line string
	Err  error
}

func (SystemFrame) frame()        {}
func (AssistantFrame) frame()     {}
func (UserFrame) frame()          {}
func (ResultFrame) frame()        {}
func (ContentFrame) frame()       {}
func (ThinkingFrame) frame()      {}
func (SessionIDFrame) frame()     {}
func (MessageEndFrame) frame()    {}
func (SlashCommandsFrame) frame() {}
func (SendErrorFrame) frame()     {}
func (CompletionFrame) frame()    {}
func (UnknownFrame) frame()       {}
func (DecodeErrorFrame) frame()   {}

// messageEnvelope is the minimal shape read from a [MESSAGE] payload to
// discriminate the event type. The full payload travels as Raw.
type messageEnvelope struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	IsError   bool   `json:"is_error"`
	Result    string `json:"result"`
}

// completionLine is the final bare JSON line of a turn.
type completionLine struct {
	Success   *bool  `json:"success"`
	SessionID string `json:"sessionId"`
}

// sendErrorPayload is the shape of a [SEND_ERROR] payload.
type sendErrorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Decode parses one line of subprocess output into a Frame, or nil if the
// line is not a recognized frame. Malformed JSON inside a recognized frame
// yields a DecodeErrorFrame rather than an error; the decoder never fails
// the stream.
func Decode(line string) Frame {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil
	}

	switch {
	case strings.HasPrefix(line, tagMessage):
		return decodeMessage(strings.TrimPrefix(line, tagMessage))

	case strings.HasPrefix(line, tagContent):
		return ContentFrame{Text: strings.TrimPrefix(line, tagContent)}

	case strings.HasPrefix(line, tagThinking):
		return ThinkingFrame{Text: strings.TrimPrefix(line, tagThinking)}

	case strings.HasPrefix(line, tagSessionID):
		id := strings.TrimSpace(strings.TrimPrefix(line, tagSessionID))
		if id == "" {
			return nil
		}
		return SessionIDFrame{SessionID: id}

	case strings.TrimSpace(line) == tagMessageEnd:
		return MessageEndFrame{}

	case strings.HasPrefix(line, tagSlashCommands):
		payload := strings.TrimPrefix(line, tagSlashCommands)
		var cmds []string
		if err := json.Unmarshal([]byte(payload), &cmds); err != nil {
			return DecodeErrorFrame{Line: line, Err: err}
		}
		return SlashCommandsFrame{Commands: cmds}

	case strings.HasPrefix(line, tagSendError):
		payload := strings.TrimPrefix(line, tagSendError)
		var se sendErrorPayload
		if err := json.Unmarshal([]byte(payload), &se); err != nil {
			return DecodeErrorFrame{Line: line, Err: err}
		}
		msg := se.Message
		if msg == "" {
			msg = se.Error
		}
		return SendErrorFrame{Message: msg, Raw: json.RawMessage(payload)}

	case strings.HasPrefix(strings.TrimSpace(line), "{"):
		// A bare JSON object is only meaningful as the turn-completion line.
		// Anything else (verbose CLI chatter) is ignored.
		var cl completionLine
		if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &cl); err != nil || cl.Success == nil {
			return nil
		}
		return CompletionFrame{Success: *cl.Success, SessionID: cl.SessionID}
	}

	return nil
}

// decodeMessage discriminates a [MESSAGE] payload by its type field.
func decodeMessage(payload string) Frame {
	raw := json.RawMessage(payload)

	var env messageEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return DecodeErrorFrame{Line: tagMessage + payload, Err: err}
	}

	switch env.Type {
	case "system":
		return SystemFrame{Subtype: env.Subtype, SessionID: env.SessionID, Raw: raw}
	case "assistant":
		return AssistantFrame{Raw: raw}
	case "user":
		return UserFrame{Raw: raw}
	case "result":
		return ResultFrame{Subtype: env.Subtype, IsError: env.IsError, Result: env.Result, Raw: raw}
	default:
		return UnknownFrame{Type: env.Type, Raw: raw}
	}
}

// TruncateForLog truncates long lines for log messages.
func TruncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
