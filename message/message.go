// Package message defines the conversation data model: messages, content
// blocks, and the snapshot-based merge that reconciles streamed assistant
// message updates.
package message

import (
	"encoding/json"
	"strings"
	"time"
)

// Message types in a transcript.
const (
	TypeUser      = "user"
	TypeAssistant = "assistant"
	TypeSystem    = "system"
	TypeError     = "error"
)

// Message is one entry in a session transcript. Raw is the authoritative
// structured form for assistant messages; Content is the derived flattened
// text view. Assistant messages are mutable while streaming and become
// immutable once the turn ends.
type Message struct {
	Type      string            `json:"type"`
	Content   string            `json:"content"`
	Raw       *AssistantPayload `json:"raw,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ContentBlock is one element of an assistant message's content array. Type
// is one of text, thinking, tool_use, tool_result, image.
type ContentBlock struct {
	Type string `json:"type"`

	// text / thinking
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`

	// image
	Source json.RawMessage `json:"source,omitempty"`
}

// StableKey returns the block's merge identity, or "" when the block has
// none. tool_use blocks key on their id; tool_result blocks key on the
// tool_use they answer. Identity-less blocks are always appended, never
// merged.
func (b ContentBlock) StableKey() string {
	switch b.Type {
	case "tool_use":
		if b.ID != "" {
			return b.ID
		}
	case "tool_result":
		if b.ToolUseID != "" {
			return "tool_result:" + b.ToolUseID
		}
	}
	return ""
}

// AssistantPayload is the raw structured form of an assistant message as it
// arrives on the stream.
type AssistantPayload struct {
	ID         string          `json:"id,omitempty"`
	Model      string          `json:"model,omitempty"`
	StopReason string          `json:"stop_reason,omitempty"`
	Usage      json.RawMessage `json:"usage,omitempty"`
	Content    []ContentBlock  `json:"content"`
}

// messageEnvelope lifts the nested message object out of a [MESSAGE] frame
// payload of type "assistant".
type messageEnvelope struct {
	Message *AssistantPayload `json:"message"`
}

// ParseAssistantPayload extracts the assistant payload from a raw [MESSAGE]
// frame body.
func ParseAssistantPayload(raw json.RawMessage) (*AssistantPayload, error) {
	var env messageEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.Message == nil {
		// Some agents emit the payload at the top level.
		var p AssistantPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return &p, nil
	}
	return env.Message, nil
}

// Merge reconciles an incoming assistant payload against the previously
// merged one, returning a new payload. Neither input is mutated.
//
// Scalar fields take the incoming value when set (last-write-wins). Content
// blocks with a stable identity matching an existing block replace it in
// place, preserving ordering; blocks with a new identity and identity-less
// blocks are appended. This keeps tool steps from disappearing or
// duplicating as later updates for the same message arrive.
func Merge(prev, incoming *AssistantPayload) *AssistantPayload {
	if incoming == nil {
		return prev
	}
	if prev == nil {
		out := *incoming
		out.Content = append([]ContentBlock(nil), incoming.Content...)
		return &out
	}

	out := &AssistantPayload{
		ID:         prev.ID,
		Model:      prev.Model,
		StopReason: prev.StopReason,
		Usage:      prev.Usage,
	}
	if incoming.ID != "" {
		out.ID = incoming.ID
	}
	if incoming.Model != "" {
		out.Model = incoming.Model
	}
	if incoming.StopReason != "" {
		out.StopReason = incoming.StopReason
	}
	if len(incoming.Usage) > 0 {
		out.Usage = incoming.Usage
	}

	out.Content = append([]ContentBlock(nil), prev.Content...)

	index := make(map[string]int, len(out.Content))
	for i, b := range out.Content {
		if key := b.StableKey(); key != "" {
			index[key] = i
		}
	}

	for _, b := range incoming.Content {
		key := b.StableKey()
		if key == "" {
			out.Content = append(out.Content, b)
			continue
		}
		if pos, ok := index[key]; ok {
			out.Content[pos] = b
			continue
		}
		index[key] = len(out.Content)
		out.Content = append(out.Content, b)
	}

	return out
}

// FlattenContent derives the text view of a payload: text blocks verbatim,
// tool blocks as brief one-liners.
func FlattenContent(p *AssistantPayload) string {
	if p == nil {
		return ""
	}

	var sb strings.Builder
	for _, b := range p.Content {
		switch b.Type {
		case "text":
			sb.WriteString(b.Text)
		case "thinking":
			// Thinking is surfaced live via the thinking flag, not the
			// transcript text.
		case "tool_use":
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(formatToolVerb(b.Name))
			if desc := extractToolInputDescription(b.Name, b.Input); desc != "" {
				sb.WriteString(" ")
				sb.WriteString(desc)
			}
		case "tool_result":
			// Results update the matching tool_use line in richer views; the
			// flat text view omits them.
		}
	}
	return sb.String()
}
