// Package watch provides a live viewer for a session being ingested.
package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/drewfead/agentscope/internal/hub"
	"github.com/drewfead/agentscope/internal/session"
	"github.com/drewfead/agentscope/internal/tui"
)

// Model renders a session's delta notifications as they arrive.
type Model struct {
	sessionID string
	state     *session.State
	notifier  *hub.Hub
	listener  *hub.FuncListener

	deltas  chan delta
	lines   []string
	refresh time.Duration

	viewport viewport.Model
	width    int
	height   int
	ready    bool
	follow   bool
}

type delta struct {
	eventType string
	payload   any
}

type (
	deltaMsg delta
	tickMsg  time.Time
)

// New creates a watch model subscribed to the session's notifications. The
// subscription is released when the model quits.
func New(notifier *hub.Hub, state *session.State, refresh time.Duration) *Model {
	if refresh <= 0 {
		refresh = time.Second
	}
	m := &Model{
		sessionID: state.Summary().SessionID,
		state:     state,
		notifier:  notifier,
		deltas:    make(chan delta, 256),
		refresh:   refresh,
		follow:    true,
	}
	m.listener = hub.NewFuncListener(func(_, eventType string, payload any) {
		select {
		case m.deltas <- delta{eventType: eventType, payload: payload}:
		default:
			// Viewer lagging; dropping display deltas is harmless.
		}
	})
	notifier.Register(m.sessionID, m.listener)
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForDelta, m.tick())
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.notifier.Unregister(m.sessionID, m.listener)
			return m, tea.Quit
		case "g":
			m.viewport.GotoTop()
		case "G":
			m.viewport.GotoBottom()
		case "f":
			m.follow = !m.follow
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.YPosition = 2
			m.ready = true
			m.updateContent()
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}

	case deltaMsg:
		m.lines = append(m.lines, m.formatDelta(delta(msg)))
		m.updateContent()
		if m.follow {
			m.viewport.GotoBottom()
		}
		cmds = append(cmds, m.waitForDelta)

	case tickMsg:
		cmds = append(cmds, m.tick())
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(tui.StyleMuted.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) renderHeader() string {
	sum := m.state.Summary()
	parts := []string{
		tui.StyleTitle.Render("agentscope"),
		tui.StyleMuted.Render(sum.SessionID),
		tui.StatusStyle(string(sum.Status)).Render(string(sum.Status)),
	}
	if sum.TotalCostUSD != nil {
		parts = append(parts, tui.StyleAccent.Render(fmt.Sprintf("$%.4f", *sum.TotalCostUSD)))
	}
	if sum.TotalTokens != nil {
		parts = append(parts, tui.StyleMuted.Render(fmt.Sprintf("%d tok", *sum.TotalTokens)))
	}
	return strings.Join(parts, "  ")
}

func (m *Model) renderFooter() string {
	follow := "follow: ON"
	if !m.follow {
		follow = "follow: OFF"
	}
	return tui.StyleMuted.Render(fmt.Sprintf("[q] quit  [g/G] top/bottom  [f] toggle follow  │  %s", follow))
}

func (m *Model) updateContent() {
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
}

func (m *Model) formatDelta(d delta) string {
	stamp := tui.StyleMuted.Render(time.Now().Format("15:04:05"))
	label := tui.StyleAccent.Render(fmt.Sprintf("%-16s", d.eventType))

	var body string
	switch p := d.payload.(type) {
	case session.SystemInitPayload:
		body = "model " + p.Model
	case session.ToolEvent:
		body = p.Summary
	case session.ToolResultPayload:
		body = fmt.Sprintf("%s %s", p.ID, tui.StatusStyle(string(p.Status)).Render(string(p.Status)))
		if p.Error != nil {
			body += " " + tui.StyleMuted.Render(firstLine(*p.Error))
		}
	case session.AgentSummary:
		body = fmt.Sprintf("%s (%s) %s", p.ID, p.AgentType,
			tui.StatusStyle(string(p.Status)).Render(string(p.Status)))
	case session.SessionCompletePayload:
		if p.CostUSD != nil {
			body = fmt.Sprintf("cost $%.4f", *p.CostUSD)
		}
		if p.TotalTokens != nil {
			body += fmt.Sprintf(" tokens %d", *p.TotalTokens)
		}
	default:
		body = fmt.Sprintf("%v", d.payload)
	}
	return fmt.Sprintf("%s %s %s", stamp, label, firstLine(body))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (m *Model) waitForDelta() tea.Msg {
	d, ok := <-m.deltas
	if !ok {
		return nil
	}
	return deltaMsg(d)
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
