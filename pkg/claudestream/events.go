// Package claudestream parses the newline-delimited stream-json output
// emitted by the Claude Code CLI into classified events.
package claudestream

import (
	"encoding/json"
	"strings"
)

// Kind identifies the classification of one stream line.
type Kind string

const (
	KindRaw       Kind = "raw"       // not parseable as JSON, forwarded as opaque text
	KindSystem    Kind = "system"    // system/init envelope
	KindAssistant Kind = "assistant" // assistant message with text/tool_use blocks
	KindUser      Kind = "user"      // user message with tool_result blocks
	KindResult    Kind = "result"    // final cost and token usage
	KindIgnored   Kind = "ignored"   // blank line or unrecognized type
)

// Usage carries token counts from a result envelope.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ContentBlock is one item of a message.content array. Which fields are
// populated depends on Type ("text", "tool_use", or "tool_result").
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use fields
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result fields
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`

	// The CLI has emitted both spellings across versions.
	DurationMS    *int64 `json:"duration_ms,omitempty"`
	DurationMSAlt *int64 `json:"durationMs,omitempty"`
}

// Duration returns the result's duration in milliseconds, tolerating both
// wire spellings.
func (b *ContentBlock) Duration() *int64 {
	if b.DurationMS != nil {
		return b.DurationMS
	}
	return b.DurationMSAlt
}

// Event is one classified stream line.
type Event struct {
	Kind Kind

	// Raw holds the original line text for KindRaw.
	Raw string

	// system fields
	Subtype   string
	Model     string
	SessionID string

	// assistant/user fields
	ParentToolUseID *string
	Blocks          []ContentBlock
	Async           bool // user event carried tool_use_result.isAsync

	// result fields
	CostUSD *float64
	Usage   *Usage
}

type envelope struct {
	Type            string          `json:"type"`
	Subtype         string          `json:"subtype"`
	Model           string          `json:"model"`
	SessionID       string          `json:"session_id"`
	ParentToolUseID *string         `json:"parent_tool_use_id"`
	Message         *messageBody    `json:"message"`
	ToolUseResult   json.RawMessage `json:"tool_use_result"`

	// Both cost spellings appear in the wild.
	CostUSD *float64 `json:"cost_usd"`
	Cost    *float64 `json:"cost"`

	Usage      *Usage `json:"usage"`
	TotalUsage *Usage `json:"total_usage"`
}

type messageBody struct {
	Content []ContentBlock `json:"content"`
}

func messageBlocks(m *messageBody) []ContentBlock {
	if m == nil {
		return nil
	}
	return m.Content
}

// Classify parses one line. It never fails: malformed JSON comes back as
// KindRaw, blank lines and unrecognized types as KindIgnored.
func Classify(line string) Event {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Event{Kind: KindIgnored}
	}

	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return Event{Kind: KindRaw, Raw: trimmed}
	}

	switch env.Type {
	case "system":
		return Event{
			Kind:      KindSystem,
			Subtype:   env.Subtype,
			Model:     env.Model,
			SessionID: env.SessionID,
		}
	case "assistant":
		return Event{
			Kind:            KindAssistant,
			ParentToolUseID: env.ParentToolUseID,
			Blocks:          messageBlocks(env.Message),
		}
	case "user":
		return Event{
			Kind:            KindUser,
			ParentToolUseID: env.ParentToolUseID,
			Blocks:          messageBlocks(env.Message),
			Async:           isAsyncResult(env.ToolUseResult),
		}
	case "result":
		ev := Event{Kind: KindResult}
		ev.CostUSD = env.CostUSD
		if ev.CostUSD == nil {
			ev.CostUSD = env.Cost
		}
		ev.Usage = env.Usage
		if ev.Usage == nil {
			ev.Usage = env.TotalUsage
		}
		return ev
	default:
		return Event{Kind: KindIgnored}
	}
}

// isAsyncResult reports whether a tool_use_result sideband marks the tool as
// having run asynchronously. Anything that is not an object with isAsync=true
// counts as synchronous.
func isAsyncResult(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var marker struct {
		IsAsync bool `json:"isAsync"`
	}
	if err := json.Unmarshal(raw, &marker); err != nil {
		return false
	}
	return marker.IsAsync
}

// FlattenContent renders a tool_result content field as plain text. The wire
// carries either a bare string or an array of text blocks; arrays are joined
// with newlines. Anything else is passed through as raw JSON.
func FlattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		parts := make([]string, 0, len(blocks))
		for _, b := range blocks {
			if b.Type == "text" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}

	return string(raw)
}

// FirstText returns the text of the first text block in a tool_result
// content field, or the whole string when the content is a bare string.
func FirstText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil && len(blocks) > 0 {
		return blocks[0].Text
	}
	return ""
}
