// Package registry is the process-wide table of live session models, with
// reconstruction-by-replay for sessions only present on disk.
package registry

import (
	"sort"
	"sync"

	"github.com/drewfead/agentscope/internal/logstore"
	"github.com/drewfead/agentscope/internal/session"
)

// Registry maps session ids to their in-memory models. It is constructed at
// process start and handed to every collaborator that needs it; there is no
// ambient singleton.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session.State
	store    logstore.Store
}

// New creates a registry backed by the given persistence store. store may be
// nil, in which case only in-memory sessions are visible.
func New(store logstore.Store) *Registry {
	return &Registry{
		sessions: make(map[string]*session.State),
		store:    store,
	}
}

// Create registers a fresh session model.
func (r *Registry) Create(meta *logstore.Meta) *session.State {
	state := session.NewState(meta.ID, meta.Task, session.SessionStatus(meta.Status), meta.StartedAt)
	r.mu.Lock()
	r.sessions[meta.ID] = state
	r.mu.Unlock()
	return state
}

// Get returns the in-memory model for a session, reconstructing it from the
// persisted raw-line log when not resident. Any read or parse failure means
// not found, never an error.
func (r *Registry) Get(sessionID string) (*session.State, bool) {
	r.mu.Lock()
	state, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if ok {
		return state, true
	}
	return r.loadFromStore(sessionID)
}

// List returns every known session, in-memory and on-disk, sorted by start
// time descending. Reconstructed sessions are not retained.
func (r *Registry) List() []*session.State {
	r.mu.Lock()
	states := make([]*session.State, 0, len(r.sessions))
	resident := make(map[string]bool, len(r.sessions))
	for id, s := range r.sessions {
		states = append(states, s)
		resident[id] = true
	}
	r.mu.Unlock()

	if r.store != nil {
		ids, err := r.store.List()
		if err == nil {
			for _, id := range ids {
				if resident[id] {
					continue
				}
				if loaded, ok := r.loadFromStore(id); ok {
					states = append(states, loaded)
				}
			}
		}
	}

	sort.Slice(states, func(i, j int) bool {
		si, sj := states[i].Summary(), states[j].Summary()
		switch {
		case si.StartedAt == nil:
			return false
		case sj.StartedAt == nil:
			return true
		default:
			return si.StartedAt.After(*sj.StartedAt)
		}
	})
	return states
}

// loadFromStore rebuilds a session model by replaying its persisted log
// through a fresh, listener-free correlator.
func (r *Registry) loadFromStore(sessionID string) (*session.State, bool) {
	if r.store == nil {
		return nil, false
	}
	meta, err := r.store.LoadMeta(sessionID)
	if err != nil {
		return nil, false
	}

	state := session.NewState(meta.ID, meta.Task, session.SessionStatus(meta.Status), meta.StartedAt)
	state.FinishedAt = meta.FinishedAt

	lines, err := r.store.ReadAll(sessionID)
	if err == nil {
		corr := session.NewCorrelator(state, nil, nil)
		for _, line := range lines {
			corr.FeedLine(line)
		}
	}
	return state, true
}
