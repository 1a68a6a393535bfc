// Command agentscope ingests and inspects Claude Code stream-json sessions.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/drewfead/agentscope/internal/config"
	"github.com/drewfead/agentscope/internal/hub"
	"github.com/drewfead/agentscope/internal/ingest"
	"github.com/drewfead/agentscope/internal/logging"
	"github.com/drewfead/agentscope/internal/logstore"
	"github.com/drewfead/agentscope/internal/registry"
	"github.com/drewfead/agentscope/internal/session"
	"github.com/drewfead/agentscope/internal/tui/watch"
)

var cfg *config.Config

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{
		Level:     parseLevel(cfg.Logging.Level),
		SentryDSN: cfg.Logging.SentryDSN,
		Env:       "production",
		LogFile:   cfg.Logging.File,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Flush(2 * time.Second)
	defer func() {
		if r := recover(); r != nil {
			logging.CapturePanic(r)
			panic(r)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentscope",
	Short: "Observability for Claude Code agent sessions",
	Long: `AgentScope ingests Claude Code stream-json output and reconstructs the
agent tree behind it: which sub-agents were spawned, what tools each one
ran, what they cost, and how they finished.

Sessions are persisted so they can be listed and inspected after the fact,
or watched live while the stream is still being written.`,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <stream-file>",
	Short: "Ingest a stream-json log into the session store",
	Long: `Ingest reads Claude Code stream-json output from a file (or stdin with
"-") and correlates it into a session. Async sub-agent output files
referenced by the stream are tailed alongside the primary log.

Examples:
  agentscope ingest session.jsonl
  claude -p "fix the bug" --output-format stream-json | agentscope ingest -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, _ := cmd.Flags().GetString("task")
		jsonOut, _ := cmd.Flags().GetBool("json")
		return runIngest(args[0], task, jsonOut)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		return runList(jsonOut)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's agent tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		detail, _ := cmd.Flags().GetBool("detail")
		jsonOut, _ := cmd.Flags().GetBool("json")
		return runShow(args[0], detail, jsonOut)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <stream-file>",
	Short: "Ingest a stream and watch it live in the TUI",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, _ := cmd.Flags().GetString("task")
		return runWatch(args[0], task)
	},
}

func runIngest(ref, task string, jsonOut bool) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	reg := registry.New(store)
	notifier := hub.New()

	now := time.Now()
	meta := &logstore.Meta{
		ID:        newSessionID(),
		Task:      task,
		Status:    string(session.SessionRunning),
		StartedAt: &now,
	}
	state := reg.Create(meta)

	runner := ingest.NewRunner(state, notifier, store, ingest.FileSource{}, cfg.Ingest.TailGracePeriod)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := runner.Run(ctx, ref)
	finalizeMeta(store, meta, state, runErr)

	if runErr != nil {
		return fmt.Errorf("ingest failed: %w", runErr)
	}

	sum := state.Summary()
	if jsonOut {
		return printJSON(sum)
	}
	fmt.Printf("Ingested session %s\n", meta.ID)
	printSummaryLine(sum)
	return nil
}

func runList(jsonOut bool) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	states := registry.New(store).List()

	if jsonOut {
		summaries := make([]session.Summary, 0, len(states))
		for _, st := range states {
			summaries = append(summaries, st.Summary())
		}
		return printJSON(summaries)
	}

	if len(states) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}
	fmt.Printf("%-24s %-10s %-20s %-10s %s\n", "SESSION", "STATUS", "STARTED", "COST", "TASK")
	for _, st := range states {
		sum := st.Summary()
		started := "-"
		if sum.StartedAt != nil {
			started = sum.StartedAt.Format("2006-01-02 15:04:05")
		}
		cost := "-"
		if sum.TotalCostUSD != nil {
			cost = fmt.Sprintf("$%.4f", *sum.TotalCostUSD)
		}
		fmt.Printf("%-24s %-10s %-20s %-10s %s\n", sum.SessionID, sum.Status, started, cost, sum.Task)
	}
	return nil
}

func runShow(sessionID string, detail, jsonOut bool) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	state, ok := registry.New(store).Get(sessionID)
	if !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	if jsonOut {
		if detail {
			return printJSON(state.Detail())
		}
		return printJSON(state.Summary())
	}

	sum := state.Summary()
	printSummaryLine(sum)
	fmt.Println()
	if detail {
		printAgentDetail(state.Detail().RootAgent, 0)
	} else {
		printAgentTree(sum.RootAgent, 0)
	}
	return nil
}

func runWatch(ref, task string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	reg := registry.New(store)
	notifier := hub.New()

	now := time.Now()
	meta := &logstore.Meta{
		ID:        newSessionID(),
		Task:      task,
		Status:    string(session.SessionRunning),
		StartedAt: &now,
	}
	state := reg.Create(meta)

	runner := ingest.NewRunner(state, notifier, store, ingest.FileSource{}, cfg.Ingest.TailGracePeriod)

	// The viewer must be subscribed before the first line is fed.
	model := watch.New(notifier, state, cfg.UI.RefreshInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		runErr := runner.Run(ctx, ref)
		finalizeMeta(store, meta, state, runErr)
		errCh <- runErr
	}()

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		cancel()
		runner.Stop()
		<-errCh
		return fmt.Errorf("watch UI failed: %w", err)
	}

	cancel()
	runner.Stop()
	if runErr := <-errCh; runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("ingest failed: %w", runErr)
	}
	return nil
}

func openStore() (logstore.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		return logstore.NewSQLiteStore(cfg.Store.Database)
	case "file", "":
		return logstore.NewFileStore(cfg.Sessions.Dir)
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
}

// newSessionID mints the local session identifier sessions are stored under.
// The stream may later report its own id; the storage key stays stable.
func newSessionID() string {
	return fmt.Sprintf("%s-%s", time.Now().Format("20060102-150405"), uuid.NewString()[:6])
}

func finalizeMeta(store logstore.Store, meta *logstore.Meta, state *session.State, runErr error) {
	sum := state.Summary()
	status := sum.Status
	exit := 0
	if runErr != nil {
		exit = 1
	}
	// A stream may end cleanly without ever emitting a result event; the
	// session must still settle on a terminal status.
	if status != session.SessionCompleted {
		if exit != 0 {
			status = session.SessionFailed
		} else {
			status = session.SessionCompleted
		}
	}
	meta.Status = string(status)
	meta.ExitCode = &exit
	if sum.FinishedAt != nil {
		meta.FinishedAt = sum.FinishedAt
	} else {
		now := time.Now()
		meta.FinishedAt = &now
	}
	if err := store.SaveMeta(meta); err != nil {
		logging.Warn("failed to save session metadata", "session_id", meta.ID, "error", err)
	}
}

func printSummaryLine(sum session.Summary) {
	fmt.Printf("Session:  %s\n", sum.SessionID)
	fmt.Printf("Status:   %s\n", sum.Status)
	if sum.Task != "" {
		fmt.Printf("Task:     %s\n", sum.Task)
	}
	if sum.Model != "" {
		fmt.Printf("Model:    %s\n", sum.Model)
	}
	if sum.TotalCostUSD != nil {
		fmt.Printf("Cost:     $%.4f\n", *sum.TotalCostUSD)
	}
	if sum.TotalTokens != nil {
		fmt.Printf("Tokens:   %d\n", *sum.TotalTokens)
	}
}

func printAgentTree(a session.AgentSummary, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Printf("%s%s [%s] %s (%d events)\n", indent, a.ID, a.Status, a.Description, a.EventCount)
	for _, child := range a.Children {
		printAgentTree(child, depth+1)
	}
}

func printAgentDetail(a session.AgentDetail, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Printf("%s%s [%s] %s\n", indent, a.ID, a.Status, a.Description)
	for _, ev := range a.Events {
		dur := ""
		if ev.DurationMS != nil {
			dur = fmt.Sprintf(" (%dms)", *ev.DurationMS)
		}
		fmt.Printf("%s  • %s [%s]%s\n", indent, ev.Summary, ev.Status, dur)
		if ev.Error != nil {
			fmt.Printf("%s    error: %s\n", indent, firstLine(*ev.Error))
		}
	}
	for _, child := range a.Children {
		printAgentDetail(child, depth+1)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func init() {
	ingestCmd.Flags().StringP("task", "t", "", "Task description to record with the session")
	ingestCmd.Flags().Bool("json", false, "Print the session summary as JSON")

	listCmd.Flags().Bool("json", false, "Print sessions as JSON")

	showCmd.Flags().BoolP("detail", "d", false, "Include every tool event per agent")
	showCmd.Flags().Bool("json", false, "Print as JSON")

	watchCmd.Flags().StringP("task", "t", "", "Task description to record with the session")

	rootCmd.AddCommand(ingestCmd, listCmd, showCmd, watchCmd)
}
