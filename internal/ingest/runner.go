// Package ingest drives stream bytes through the line assembler, classifier,
// and correlator, and supervises tail loops for async sub-agent streams.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/drewfead/agentscope/internal/hub"
	"github.com/drewfead/agentscope/internal/logging"
	"github.com/drewfead/agentscope/internal/logstore"
	"github.com/drewfead/agentscope/internal/session"
	"github.com/drewfead/agentscope/pkg/claudestream"
)

// DefaultTailGrace is how long Run waits for child tail loops after the
// primary stream ends before abandoning them.
const DefaultTailGrace = 5 * time.Second

const readChunkSize = 4096

// Runner ingests one session: a single synchronous primary loop plus zero or
// more concurrent tail loops, all writing into the same session state.
type Runner struct {
	state *session.State
	// sessionID is the registry key the session was created under; the
	// state's own id may be rewritten by system/init adoption mid-stream.
	sessionID string
	corr      *session.Correlator
	source    LogSource
	store     logstore.Store
	grace     time.Duration

	baseCtx context.Context

	tailWG sync.WaitGroup

	mu      sync.Mutex
	cancels []context.CancelFunc
	tailed  map[string]bool // tool_use_id -> tail already started
}

// NewRunner wires a runner for the given session. notifier may be nil for
// silent ingestion; store may be nil to skip persistence.
func NewRunner(state *session.State, notifier *hub.Hub, store logstore.Store, source LogSource, grace time.Duration) *Runner {
	if grace <= 0 {
		grace = DefaultTailGrace
	}
	r := &Runner{
		state:     state,
		sessionID: state.SessionID,
		source:    source,
		store:     store,
		grace:     grace,
		tailed:    make(map[string]bool),
	}

	// Hub deliveries stay keyed by the id the session was registered under,
	// even after a system/init line adopts the stream's own id. Subscribers
	// only ever know the registry key.
	var notify session.NotifyFunc
	if notifier != nil {
		notify = func(_, eventType string, payload any) {
			notifier.Notify(r.sessionID, eventType, payload)
		}
	}
	r.corr = session.NewCorrelator(state, notify, r.startChildTail)
	return r
}

// Run consumes the primary stream at ref until it is exhausted, then joins
// outstanding tail loops for up to the grace period. Loops still running
// after that are abandoned, not cancelled mid-read.
func (r *Runner) Run(ctx context.Context, ref string) error {
	r.mu.Lock()
	r.baseCtx = ctx
	r.mu.Unlock()

	rc, err := r.source.Open(ctx, ref)
	if err != nil {
		return fmt.Errorf("open primary stream: %w", err)
	}
	defer rc.Close()

	assembler := claudestream.NewLineAssembler()
	buf := make([]byte, readChunkSize)
	for {
		n, readErr := rc.Read(buf)
		if n > 0 {
			for _, line := range assembler.Feed(string(buf[:n])) {
				r.persistPrimary(line)
				r.corr.FeedLine(line)
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				r.flushPrimary(assembler)
				r.joinTails()
				return fmt.Errorf("read primary stream: %w", readErr)
			}
			break
		}
	}

	r.flushPrimary(assembler)
	r.joinTails()
	return nil
}

// Stop cancels every tail loop's context. Loops blocked in a read finish on
// their own; Stop only signals.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, len(r.cancels))
	copy(cancels, r.cancels)
	r.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (r *Runner) flushPrimary(assembler *claudestream.LineAssembler) {
	if rest, ok := assembler.Flush(); ok {
		r.persistPrimary(rest)
		r.corr.FeedLine(rest)
	}
}

func (r *Runner) persistPrimary(line string) {
	if r.store == nil {
		return
	}
	if err := r.store.Append(r.sessionID, line); err != nil {
		logging.Warn("failed to persist session line", "session", r.sessionID, "error", err)
	}
}

// startChildTail launches one tail loop for a detected async sub-agent. It
// is invoked by the correlator outside the session lock.
func (r *Runner) startChildTail(toolUseID, outputFile string) {
	r.mu.Lock()
	if r.tailed[toolUseID] {
		r.mu.Unlock()
		return
	}
	r.tailed[toolUseID] = true
	base := r.baseCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	r.cancels = append(r.cancels, cancel)
	r.mu.Unlock()

	child := r.corr.ChildCorrelator(toolUseID)
	if child == nil {
		cancel()
		return
	}

	logging.Info("tailing async sub-agent", "tool_use_id", toolUseID, "output_file", outputFile)

	r.tailWG.Add(1)
	go func() {
		defer r.tailWG.Done()
		defer cancel()
		r.tailChild(ctx, child, toolUseID, outputFile)
	}()
}

// tailChild runs one child ingestion loop. Failures terminate the loop
// quietly; the primary session continues either way.
func (r *Runner) tailChild(ctx context.Context, child *session.Correlator, toolUseID, outputFile string) {
	rc, err := r.source.Open(ctx, outputFile)
	if err != nil {
		logging.Warn("failed to open async sub-agent stream", "tool_use_id", toolUseID, "error", err)
		return
	}
	defer rc.Close()

	assembler := claudestream.NewLineAssembler()
	buf := make([]byte, readChunkSize)
	for {
		if ctx.Err() != nil {
			break
		}
		n, readErr := rc.Read(buf)
		if n > 0 {
			for _, line := range assembler.Feed(string(buf[:n])) {
				r.persistChild(toolUseID, line)
				child.FeedLine(line)
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				logging.Debug("async sub-agent stream ended", "tool_use_id", toolUseID, "error", readErr)
			}
			break
		}
	}

	if rest, ok := assembler.Flush(); ok {
		r.persistChild(toolUseID, rest)
		child.FeedLine(rest)
	}
}

func (r *Runner) persistChild(toolUseID, line string) {
	if r.store == nil {
		return
	}
	if err := r.store.AppendChild(r.sessionID, toolUseID, line); err != nil {
		logging.Warn("failed to persist child line", "tool_use_id", toolUseID, "error", err)
	}
}

// joinTails waits for tail loops up to the grace period, then moves on.
func (r *Runner) joinTails() {
	done := make(chan struct{})
	go func() {
		r.tailWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(r.grace):
		logging.Warn("abandoning unfinished async sub-agent tails", "session", r.sessionID)
	}
}
