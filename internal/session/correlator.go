package session

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/drewfead/agentscope/pkg/claudestream"
	"github.com/google/uuid"
)

// Notification event types delivered through the hub.
const (
	EventSystemInit      = "system_init"
	EventToolEvent       = "tool_event"
	EventToolResult      = "tool_result"
	EventAgentSpawned    = "agent_spawned"
	EventAgentComplete   = "agent_complete"
	EventSessionComplete = "session_complete"
)

// NotifyFunc receives one delta notification. Callbacks are invoked after
// the session lock has been released.
type NotifyFunc func(sessionID, eventType string, payload any)

// AsyncAgentFunc is called when a user event marks a spawned child agent as
// running asynchronously, with the output location to tail.
type AsyncAgentFunc func(toolUseID, outputFile string)

// SystemInitPayload accompanies EventSystemInit.
type SystemInitPayload struct {
	Model string `json:"model"`
}

// ToolResultPayload accompanies EventToolResult.
type ToolResultPayload struct {
	ID            string      `json:"id"`
	Status        AgentStatus `json:"status"`
	OutputPreview string      `json:"output_preview"`
	DurationMS    *int64      `json:"duration_ms"`
	Error         *string     `json:"error"`
}

// SessionCompletePayload accompanies EventSessionComplete.
type SessionCompletePayload struct {
	CostUSD     *float64 `json:"cost_usd"`
	TotalTokens *int     `json:"total_tokens"`
}

// Correlator routes classified stream events into the agent tree. One
// correlator serves exactly one ingestion stream: the primary correlator is
// rooted at the session root, a child correlator at the sub-agent node its
// tail stream was opened for. The cross-reference indexes are per-stream
// lookup tables, never owners.
type Correlator struct {
	state *State
	local *AgentNode // stream-local root
	child bool

	notify  NotifyFunc
	onAsync AsyncAgentFunc

	eventsByToolUse map[string]*ToolEvent
	taskAgents      map[string]*AgentNode
	agentsByID      map[string]*AgentNode
}

// NewCorrelator creates the primary correlator for a session. notify and
// onAsync may be nil (reconstruction replays are listener-free).
func NewCorrelator(state *State, notify NotifyFunc, onAsync AsyncAgentFunc) *Correlator {
	return &Correlator{
		state:           state,
		local:           state.Root,
		notify:          notify,
		onAsync:         onAsync,
		eventsByToolUse: make(map[string]*ToolEvent),
		taskAgents:      make(map[string]*AgentNode),
		agentsByID:      map[string]*AgentNode{state.Root.ID: state.Root},
	}
}

// ChildCorrelator creates a correlator scoped to the sub-agent spawned by
// the given Task invocation. Returns nil if no such agent was spawned on
// this stream.
func (c *Correlator) ChildCorrelator(toolUseID string) *Correlator {
	c.state.mu.Lock()
	agent := c.taskAgents[toolUseID]
	c.state.mu.Unlock()
	if agent == nil {
		return nil
	}
	return &Correlator{
		state:           c.state,
		local:           agent,
		child:           true,
		notify:          c.notify,
		eventsByToolUse: make(map[string]*ToolEvent),
		taskAgents:      make(map[string]*AgentNode),
		agentsByID:      map[string]*AgentNode{agent.ID: agent},
	}
}

// pendingNote is a notification collected under the lock and fired after it
// is released, preserving mutation order.
type pendingNote struct {
	eventType string
	payload   any
}

// FeedLine classifies one line and applies it to the tree. It never fails;
// malformed input becomes a raw-text event on the primary stream and is
// dropped on child streams.
func (c *Correlator) FeedLine(line string) {
	ev := claudestream.Classify(line)
	if ev.Kind == claudestream.KindIgnored {
		return
	}

	var notes []pendingNote
	var asyncID, asyncFile string

	c.state.mu.Lock()
	switch ev.Kind {
	case claudestream.KindRaw:
		if !c.child {
			notes = c.applyRawText(ev.Raw, notes)
		}
	case claudestream.KindSystem:
		if !c.child {
			notes = c.applySystem(&ev, notes)
		}
	case claudestream.KindAssistant:
		notes = c.applyAssistant(&ev, notes)
	case claudestream.KindUser:
		if !c.child && ev.Async {
			asyncID, asyncFile = c.detectAsyncAgent(&ev)
		}
		notes = c.applyUser(&ev, notes)
	case claudestream.KindResult:
		if !c.child {
			notes = c.applyResult(&ev, notes)
		}
	}
	sessionID := c.state.SessionID
	c.state.mu.Unlock()

	if c.notify != nil {
		for _, n := range notes {
			c.notify(sessionID, n.eventType, n.payload)
		}
	}
	if asyncID != "" && asyncFile != "" && c.onAsync != nil {
		c.onAsync(asyncID, asyncFile)
	}
}

func (c *Correlator) applySystem(ev *claudestream.Event, notes []pendingNote) []pendingNote {
	if ev.Subtype != "init" {
		return notes
	}
	c.state.Model = ev.Model
	if ev.SessionID != "" {
		// The server-assigned id is authoritative once known.
		c.state.SessionID = ev.SessionID
	}
	now := time.Now().UTC()
	c.state.Root.Status = StatusRunning
	c.state.Root.StartedAt = &now
	c.state.Status = SessionRunning
	return append(notes, pendingNote{EventSystemInit, SystemInitPayload{Model: ev.Model}})
}

func (c *Correlator) applyAssistant(ev *claudestream.Event, notes []pendingNote) []pendingNote {
	agent := c.resolveOwningAgent(ev.ParentToolUseID)
	for i := range ev.Blocks {
		block := &ev.Blocks[i]
		switch block.Type {
		case "text":
			notes = c.applyTextBlock(block, agent, notes)
		case "tool_use":
			notes = c.applyToolUseBlock(block, agent, notes)
		}
	}
	return notes
}

func (c *Correlator) applyUser(ev *claudestream.Event, notes []pendingNote) []pendingNote {
	for i := range ev.Blocks {
		block := &ev.Blocks[i]
		if block.Type == "tool_result" {
			notes = c.applyToolResult(block, notes)
		}
	}
	return notes
}

func (c *Correlator) applyRawText(text string, notes []pendingNote) []pendingNote {
	event := &ToolEvent{
		ID:           uuid.NewString(),
		AgentID:      c.local.ID,
		ToolName:     "text",
		Summary:      truncate(text, 80),
		Status:       StatusComplete,
		Timestamp:    time.Now().UTC(),
		InputPreview: truncate(text, previewLimit),
	}
	c.local.Events = append(c.local.Events, event)
	return append(notes, pendingNote{EventToolEvent, *event})
}

func (c *Correlator) applyTextBlock(block *claudestream.ContentBlock, agent *AgentNode, notes []pendingNote) []pendingNote {
	if strings.TrimSpace(block.Text) == "" {
		return notes
	}
	event := &ToolEvent{
		ID:           uuid.NewString(),
		AgentID:      agent.ID,
		ToolName:     "text",
		Summary:      truncate(block.Text, 80),
		Status:       StatusComplete,
		Timestamp:    time.Now().UTC(),
		InputPreview: truncate(block.Text, previewLimit),
	}
	agent.Events = append(agent.Events, event)
	return append(notes, pendingNote{EventToolEvent, *event})
}

func (c *Correlator) applyToolUseBlock(block *claudestream.ContentBlock, agent *AgentNode, notes []pendingNote) []pendingNote {
	toolUseID := block.ID
	if toolUseID == "" {
		toolUseID = uuid.NewString()
	}
	toolName := block.Name
	if toolName == "" {
		toolName = "unknown"
	}
	input := decodeInput(block.Input)

	event := &ToolEvent{
		ID:           toolUseID,
		AgentID:      agent.ID,
		ToolName:     toolName,
		Summary:      buildToolSummary(toolName, input),
		Status:       StatusRunning,
		Timestamp:    time.Now().UTC(),
		InputPreview: inputPreview(input),
	}
	agent.Events = append(agent.Events, event)
	c.eventsByToolUse[toolUseID] = event
	notes = append(notes, pendingNote{EventToolEvent, *event})

	if toolName == "Task" {
		now := time.Now().UTC()
		parentID := agent.ID
		child := &AgentNode{
			ID:          toolUseID,
			ParentID:    &parentID,
			AgentType:   strField(input, "subagent_type", "subagent"),
			Description: taskDescription(input),
			Model:       strField(input, "model", ""),
			Status:      StatusRunning,
			StartedAt:   &now,
		}
		agent.Children = append(agent.Children, child)
		c.taskAgents[toolUseID] = child
		c.agentsByID[toolUseID] = child
		notes = append(notes, pendingNote{EventAgentSpawned, summarizeAgent(child)})
	}
	return notes
}

func (c *Correlator) applyToolResult(block *claudestream.ContentBlock, notes []pendingNote) []pendingNote {
	if block.ToolUseID == "" {
		return notes
	}
	event := c.eventsByToolUse[block.ToolUseID]
	if event == nil {
		// The result may belong to another stream's scope; not an error.
		return notes
	}

	content := claudestream.FlattenContent(block.Content)
	if block.IsError {
		event.Status = StatusError
		detail := truncate(content, errorLimit)
		event.Error = &detail
	} else {
		event.Status = StatusComplete
	}
	event.OutputPreview = truncate(content, previewLimit)
	if d := block.Duration(); d != nil {
		event.DurationMS = d
	}

	notes = append(notes, pendingNote{EventToolResult, ToolResultPayload{
		ID:            event.ID,
		Status:        event.Status,
		OutputPreview: event.OutputPreview,
		DurationMS:    event.DurationMS,
		Error:         event.Error,
	}})

	if child := c.taskAgents[block.ToolUseID]; child != nil {
		now := time.Now().UTC()
		if block.IsError {
			child.Status = StatusError
		} else {
			child.Status = StatusComplete
		}
		child.FinishedAt = &now
		notes = append(notes, pendingNote{EventAgentComplete, summarizeAgent(child)})
	}
	return notes
}

func (c *Correlator) applyResult(ev *claudestream.Event, notes []pendingNote) []pendingNote {
	if ev.CostUSD != nil {
		cost := *ev.CostUSD
		c.state.TotalCostUSD = &cost
	}
	if ev.Usage != nil {
		total := ev.Usage.InputTokens + ev.Usage.OutputTokens
		c.state.TotalTokens = &total
	}
	now := time.Now().UTC()
	c.state.Root.Status = StatusComplete
	c.state.Root.FinishedAt = &now
	c.state.FinishedAt = &now
	c.state.Status = SessionCompleted
	return append(notes, pendingNote{EventSessionComplete, SessionCompletePayload{
		CostUSD:     c.state.TotalCostUSD,
		TotalTokens: c.state.TotalTokens,
	}})
}

// detectAsyncAgent scans a user event flagged isAsync for the invocation id
// and the output_file reference embedded in its tool_result text. Only known
// spawned child agents qualify.
func (c *Correlator) detectAsyncAgent(ev *claudestream.Event) (toolUseID, outputFile string) {
	for i := range ev.Blocks {
		block := &ev.Blocks[i]
		if block.Type != "tool_result" {
			continue
		}
		toolUseID = block.ToolUseID
		outputFile = extractOutputFile(claudestream.FirstText(block.Content))
		break
	}
	if toolUseID == "" || outputFile == "" || c.taskAgents[toolUseID] == nil {
		return "", ""
	}
	return toolUseID, outputFile
}

func (c *Correlator) resolveOwningAgent(parentToolUseID *string) *AgentNode {
	if parentToolUseID == nil {
		return c.local
	}
	if agent := c.agentsByID[*parentToolUseID]; agent != nil {
		return agent
	}
	return c.local
}

const (
	previewLimit = 200
	errorLimit   = 500
)

// outputFileRE matches the output-location token the CLI embeds in async
// tool results. A narrow, versioned protocol detail; do not generalize.
var outputFileRE = regexp.MustCompile(`output_file:\s*(\S+)`)

func extractOutputFile(text string) string {
	m := outputFileRE.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// toolSummaries maps tool names to one-line summary formatters. Unknown
// names fall through to the bare tool name.
var toolSummaries = map[string]func(map[string]any) string{
	"Read":  func(in map[string]any) string { return "Read " + strField(in, "file_path", "?") },
	"Write": func(in map[string]any) string { return "Write " + strField(in, "file_path", "?") },
	"Edit":  func(in map[string]any) string { return "Edit " + strField(in, "file_path", "?") },
	"Glob":  func(in map[string]any) string { return "Glob " + strField(in, "pattern", "?") },
	"Grep":  func(in map[string]any) string { return "Grep " + strField(in, "pattern", "?") },
	"Bash": func(in map[string]any) string {
		return "Bash: " + truncate(strField(in, "command", ""), 80)
	},
	"Task": func(in map[string]any) string {
		return "Task: " + truncate(strField(in, "description", strField(in, "prompt", "?")), 80)
	},
	"WebFetch": func(in map[string]any) string { return "WebFetch " + strField(in, "url", "?") },
	"WebSearch": func(in map[string]any) string {
		return "WebSearch: " + truncate(strField(in, "query", "?"), 80)
	},
}

func buildToolSummary(toolName string, input map[string]any) string {
	if format, ok := toolSummaries[toolName]; ok {
		return format(input)
	}
	return toolName
}

func taskDescription(input map[string]any) string {
	if desc := strField(input, "description", ""); desc != "" {
		return desc
	}
	return truncate(strField(input, "prompt", ""), 80)
}

func decodeInput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil || input == nil {
		return map[string]any{}
	}
	return input
}

func inputPreview(input map[string]any) string {
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return truncate(string(raw), previewLimit)
}

func strField(input map[string]any, key, fallback string) string {
	if v, ok := input[key].(string); ok {
		return v
	}
	return fallback
}

// truncate limits s to n characters. Previews are bounded, never elided
// with markers.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
