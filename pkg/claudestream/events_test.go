package claudestream

import (
	"encoding/json"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Run("BlankLine", func(t *testing.T) {
		if ev := Classify("   "); ev.Kind != KindIgnored {
			t.Errorf("expected ignored, got %s", ev.Kind)
		}
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		ev := Classify("not json at all")
		if ev.Kind != KindRaw {
			t.Fatalf("expected raw, got %s", ev.Kind)
		}
		if ev.Raw != "not json at all" {
			t.Errorf("expected original text preserved, got %q", ev.Raw)
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		if ev := Classify(`{"type":"heartbeat"}`); ev.Kind != KindIgnored {
			t.Errorf("expected ignored, got %s", ev.Kind)
		}
	})

	t.Run("SystemInit", func(t *testing.T) {
		ev := Classify(`{"type":"system","subtype":"init","model":"claude-sonnet-4","session_id":"abc-123"}`)
		if ev.Kind != KindSystem {
			t.Fatalf("expected system, got %s", ev.Kind)
		}
		if ev.Subtype != "init" {
			t.Errorf("expected subtype init, got %q", ev.Subtype)
		}
		if ev.Model != "claude-sonnet-4" {
			t.Errorf("expected model, got %q", ev.Model)
		}
		if ev.SessionID != "abc-123" {
			t.Errorf("expected session id, got %q", ev.SessionID)
		}
	})

	t.Run("AssistantBlocks", func(t *testing.T) {
		line := `{"type":"assistant","message":{"content":[` +
			`{"type":"text","text":"thinking"},` +
			`{"type":"tool_use","id":"tu_1","name":"Read","input":{"file_path":"/tmp/x"}}]}}`
		ev := Classify(line)
		if ev.Kind != KindAssistant {
			t.Fatalf("expected assistant, got %s", ev.Kind)
		}
		if len(ev.Blocks) != 2 {
			t.Fatalf("expected 2 blocks, got %d", len(ev.Blocks))
		}
		if ev.Blocks[0].Type != "text" || ev.Blocks[0].Text != "thinking" {
			t.Errorf("unexpected text block: %+v", ev.Blocks[0])
		}
		if ev.Blocks[1].Name != "Read" || ev.Blocks[1].ID != "tu_1" {
			t.Errorf("unexpected tool_use block: %+v", ev.Blocks[1])
		}
		if ev.ParentToolUseID != nil {
			t.Errorf("expected no parent_tool_use_id, got %v", *ev.ParentToolUseID)
		}
	})

	t.Run("AssistantParentRouting", func(t *testing.T) {
		ev := Classify(`{"type":"assistant","parent_tool_use_id":"tu_task","message":{"content":[]}}`)
		if ev.ParentToolUseID == nil || *ev.ParentToolUseID != "tu_task" {
			t.Errorf("expected parent_tool_use_id tu_task, got %v", ev.ParentToolUseID)
		}
	})

	t.Run("AssistantNoMessage", func(t *testing.T) {
		ev := Classify(`{"type":"assistant"}`)
		if ev.Kind != KindAssistant {
			t.Fatalf("expected assistant, got %s", ev.Kind)
		}
		if len(ev.Blocks) != 0 {
			t.Errorf("expected no blocks, got %d", len(ev.Blocks))
		}
	})

	t.Run("UserToolResult", func(t *testing.T) {
		line := `{"type":"user","message":{"content":[` +
			`{"type":"tool_result","tool_use_id":"tu_1","content":"done","is_error":false,"duration_ms":42}]}}`
		ev := Classify(line)
		if ev.Kind != KindUser {
			t.Fatalf("expected user, got %s", ev.Kind)
		}
		b := ev.Blocks[0]
		if b.ToolUseID != "tu_1" {
			t.Errorf("expected tool_use_id tu_1, got %q", b.ToolUseID)
		}
		if d := b.Duration(); d == nil || *d != 42 {
			t.Errorf("expected duration 42, got %v", d)
		}
	})

	t.Run("DurationAltSpelling", func(t *testing.T) {
		line := `{"type":"user","message":{"content":[` +
			`{"type":"tool_result","tool_use_id":"tu_1","durationMs":99}]}}`
		ev := Classify(line)
		if d := ev.Blocks[0].Duration(); d == nil || *d != 99 {
			t.Errorf("expected duration 99 via durationMs, got %v", d)
		}
	})

	t.Run("AsyncMarker", func(t *testing.T) {
		ev := Classify(`{"type":"user","tool_use_result":{"isAsync":true},"message":{"content":[]}}`)
		if !ev.Async {
			t.Error("expected async flag set")
		}
		ev = Classify(`{"type":"user","tool_use_result":{"isAsync":false},"message":{"content":[]}}`)
		if ev.Async {
			t.Error("expected async flag clear")
		}
		ev = Classify(`{"type":"user","tool_use_result":"plain string","message":{"content":[]}}`)
		if ev.Async {
			t.Error("expected non-object sideband treated as synchronous")
		}
	})

	t.Run("ResultCostAndUsage", func(t *testing.T) {
		ev := Classify(`{"type":"result","cost_usd":0.25,"usage":{"input_tokens":100,"output_tokens":50}}`)
		if ev.Kind != KindResult {
			t.Fatalf("expected result, got %s", ev.Kind)
		}
		if ev.CostUSD == nil || *ev.CostUSD != 0.25 {
			t.Errorf("expected cost 0.25, got %v", ev.CostUSD)
		}
		if ev.Usage == nil || ev.Usage.InputTokens != 100 || ev.Usage.OutputTokens != 50 {
			t.Errorf("unexpected usage: %+v", ev.Usage)
		}
	})

	t.Run("ResultFallbackSpellings", func(t *testing.T) {
		ev := Classify(`{"type":"result","cost":1.5,"total_usage":{"input_tokens":10,"output_tokens":5}}`)
		if ev.CostUSD == nil || *ev.CostUSD != 1.5 {
			t.Errorf("expected cost fallback 1.5, got %v", ev.CostUSD)
		}
		if ev.Usage == nil || ev.Usage.InputTokens != 10 {
			t.Errorf("expected total_usage fallback, got %+v", ev.Usage)
		}
	})

	t.Run("ResultMissingFields", func(t *testing.T) {
		ev := Classify(`{"type":"result"}`)
		if ev.CostUSD != nil || ev.Usage != nil {
			t.Errorf("expected nil cost and usage, got %v %v", ev.CostUSD, ev.Usage)
		}
	})
}

func TestFlattenContent(t *testing.T) {
	t.Run("BareString", func(t *testing.T) {
		if got := FlattenContent(json.RawMessage(`"plain text"`)); got != "plain text" {
			t.Errorf("expected plain text, got %q", got)
		}
	})

	t.Run("TextBlockArray", func(t *testing.T) {
		raw := json.RawMessage(`[{"type":"text","text":"line one"},{"type":"text","text":"line two"}]`)
		if got := FlattenContent(raw); got != "line one\nline two" {
			t.Errorf("expected joined lines, got %q", got)
		}
	})

	t.Run("MixedBlocksSkipsNonText", func(t *testing.T) {
		raw := json.RawMessage(`[{"type":"text","text":"kept"},{"type":"image","text":"dropped"}]`)
		if got := FlattenContent(raw); got != "kept" {
			t.Errorf("expected only text blocks, got %q", got)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if got := FlattenContent(nil); got != "" {
			t.Errorf("expected empty, got %q", got)
		}
	})

	t.Run("OtherJSONPassthrough", func(t *testing.T) {
		raw := json.RawMessage(`{"unexpected":true}`)
		if got := FlattenContent(raw); got != `{"unexpected":true}` {
			t.Errorf("expected raw passthrough, got %q", got)
		}
	})
}

func TestFirstText(t *testing.T) {
	t.Run("BareString", func(t *testing.T) {
		if got := FirstText(json.RawMessage(`"output_file: /tmp/a.log"`)); got != "output_file: /tmp/a.log" {
			t.Errorf("unexpected: %q", got)
		}
	})

	t.Run("FirstBlockOnly", func(t *testing.T) {
		raw := json.RawMessage(`[{"type":"text","text":"first"},{"type":"text","text":"second"}]`)
		if got := FirstText(raw); got != "first" {
			t.Errorf("expected first, got %q", got)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if got := FirstText(nil); got != "" {
			t.Errorf("expected empty, got %q", got)
		}
	})
}
