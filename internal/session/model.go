// Package session holds the live model of one agent run: the agent tree,
// its tool events, and the correlator that builds both from a stream.
package session

import (
	"sync"
	"time"
)

// AgentStatus is the lifecycle state of an agent node or tool event.
type AgentStatus string

const (
	StatusPending  AgentStatus = "pending"
	StatusRunning  AgentStatus = "running"
	StatusComplete AgentStatus = "complete"
	StatusError    AgentStatus = "error"
)

// SessionStatus is the lifecycle state of a whole session.
type SessionStatus string

const (
	SessionStarting  SessionStatus = "starting"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionStopped   SessionStatus = "stopped"
)

// ToolEvent is a single tool invocation. It is created in StatusRunning when
// the invocation is observed and transitions exactly once to StatusComplete
// or StatusError when its result arrives.
type ToolEvent struct {
	ID            string      `json:"id"`
	AgentID       string      `json:"agent_id"`
	ToolName      string      `json:"tool_name"`
	Summary       string      `json:"summary"`
	Status        AgentStatus `json:"status"`
	Timestamp     time.Time   `json:"timestamp"`
	InputPreview  string      `json:"input_preview"`
	OutputPreview string      `json:"output_preview"`
	DurationMS    *int64      `json:"duration_ms"`
	Error         *string     `json:"error"`
}

// AgentNode is one node of the session's execution tree. The root node has
// ID "root" and a nil ParentID; every other node is keyed by the Task tool
// invocation that spawned it.
type AgentNode struct {
	ID          string
	ParentID    *string
	AgentType   string
	Description string
	Model       string
	Status      AgentStatus
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Children    []*AgentNode
	Events      []*ToolEvent
}

// State is the owned data of one session. All mutation goes through mu;
// the primary ingestion loop and any child tail loops share one State.
type State struct {
	mu sync.Mutex

	SessionID    string
	Task         string
	Status       SessionStatus
	StartedAt    *time.Time
	FinishedAt   *time.Time
	Model        string
	TotalCostUSD *float64
	TotalTokens  *int
	Root         *AgentNode
}

// NewState creates a session with a fresh root agent.
func NewState(sessionID, task string, status SessionStatus, startedAt *time.Time) *State {
	return &State{
		SessionID: sessionID,
		Task:      task,
		Status:    status,
		StartedAt: startedAt,
		Root: &AgentNode{
			ID:          "root",
			ParentID:    nil,
			AgentType:   "root",
			Description: "root agent",
			Status:      StatusPending,
		},
	}
}

// AgentSummary is one agent node without its event bodies.
type AgentSummary struct {
	ID          string         `json:"id"`
	ParentID    *string        `json:"parent_id"`
	AgentType   string         `json:"agent_type"`
	Description string         `json:"description"`
	Model       string         `json:"model,omitempty"`
	Status      AgentStatus    `json:"status"`
	StartedAt   *time.Time     `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at"`
	EventCount  int            `json:"event_count"`
	Children    []AgentSummary `json:"children"`
}

// AgentDetail is one agent node including every tool event.
type AgentDetail struct {
	ID          string        `json:"id"`
	ParentID    *string       `json:"parent_id"`
	AgentType   string        `json:"agent_type"`
	Description string        `json:"description"`
	Model       string        `json:"model,omitempty"`
	Status      AgentStatus   `json:"status"`
	StartedAt   *time.Time    `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at"`
	Events      []ToolEvent   `json:"events"`
	Children    []AgentDetail `json:"children"`
}

// Summary is the counts-only projection of a session.
type Summary struct {
	SessionID    string        `json:"session_id"`
	Task         string        `json:"task"`
	Status       SessionStatus `json:"status"`
	StartedAt    *time.Time    `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at"`
	Model        string        `json:"model,omitempty"`
	TotalCostUSD *float64      `json:"total_cost_usd"`
	TotalTokens  *int          `json:"total_tokens"`
	RootAgent    AgentSummary  `json:"root_agent"`
}

// Detail is the full projection of a session.
type Detail struct {
	SessionID    string        `json:"session_id"`
	Task         string        `json:"task"`
	Status       SessionStatus `json:"status"`
	StartedAt    *time.Time    `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at"`
	Model        string        `json:"model,omitempty"`
	TotalCostUSD *float64      `json:"total_cost_usd"`
	TotalTokens  *int          `json:"total_tokens"`
	RootAgent    AgentDetail   `json:"root_agent"`
}

// Summary produces the counts-only projection from the current state.
func (s *State) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		SessionID:    s.SessionID,
		Task:         s.Task,
		Status:       s.Status,
		StartedAt:    s.StartedAt,
		FinishedAt:   s.FinishedAt,
		Model:        s.Model,
		TotalCostUSD: s.TotalCostUSD,
		TotalTokens:  s.TotalTokens,
		RootAgent:    summarizeAgent(s.Root),
	}
}

// Detail produces the full projection from the current state.
func (s *State) Detail() Detail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Detail{
		SessionID:    s.SessionID,
		Task:         s.Task,
		Status:       s.Status,
		StartedAt:    s.StartedAt,
		FinishedAt:   s.FinishedAt,
		Model:        s.Model,
		TotalCostUSD: s.TotalCostUSD,
		TotalTokens:  s.TotalTokens,
		RootAgent:    detailAgent(s.Root),
	}
}

func summarizeAgent(n *AgentNode) AgentSummary {
	sum := AgentSummary{
		ID:          n.ID,
		ParentID:    n.ParentID,
		AgentType:   n.AgentType,
		Description: n.Description,
		Model:       n.Model,
		Status:      n.Status,
		StartedAt:   n.StartedAt,
		FinishedAt:  n.FinishedAt,
		EventCount:  len(n.Events),
		Children:    make([]AgentSummary, 0, len(n.Children)),
	}
	for _, c := range n.Children {
		sum.Children = append(sum.Children, summarizeAgent(c))
	}
	return sum
}

func detailAgent(n *AgentNode) AgentDetail {
	det := AgentDetail{
		ID:          n.ID,
		ParentID:    n.ParentID,
		AgentType:   n.AgentType,
		Description: n.Description,
		Model:       n.Model,
		Status:      n.Status,
		StartedAt:   n.StartedAt,
		FinishedAt:  n.FinishedAt,
		Events:      make([]ToolEvent, 0, len(n.Events)),
		Children:    make([]AgentDetail, 0, len(n.Children)),
	}
	for _, e := range n.Events {
		det.Events = append(det.Events, *e)
	}
	for _, c := range n.Children {
		det.Children = append(det.Children, detailAgent(c))
	}
	return det
}
