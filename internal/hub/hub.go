// Package hub distributes per-session delta notifications to subscribers.
package hub

import "sync"

// Listener receives session notifications. Implementations must be
// comparable (pointer receivers) so Unregister can find them.
type Listener interface {
	OnSessionEvent(sessionID, eventType string, payload any)
}

// FuncListener adapts a plain function to the Listener interface with a
// stable identity.
type FuncListener struct {
	fn func(sessionID, eventType string, payload any)
}

// NewFuncListener wraps fn as a Listener.
func NewFuncListener(fn func(sessionID, eventType string, payload any)) *FuncListener {
	return &FuncListener{fn: fn}
}

// OnSessionEvent implements Listener.
func (l *FuncListener) OnSessionEvent(sessionID, eventType string, payload any) {
	l.fn(sessionID, eventType, payload)
}

// Hub is a per-session registry of listeners.
type Hub struct {
	mu        sync.Mutex
	listeners map[string][]Listener
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{listeners: make(map[string][]Listener)}
}

// Register adds a listener for a session's notifications.
func (h *Hub) Register(sessionID string, l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[sessionID] = append(h.listeners[sessionID], l)
}

// Unregister removes a previously registered listener. Removing an unknown
// listener is a no-op.
func (h *Hub) Unregister(sessionID string, l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	listeners := h.listeners[sessionID]
	for i, registered := range listeners {
		if registered == l {
			h.listeners[sessionID] = append(listeners[:i], listeners[i+1:]...)
			break
		}
	}
	if len(h.listeners[sessionID]) == 0 {
		delete(h.listeners, sessionID)
	}
}

// Notify delivers one event synchronously to every listener registered for
// the session. The listener list is snapshotted under the lock but callbacks
// run outside it, so a callback may itself register or unregister listeners.
func (h *Hub) Notify(sessionID, eventType string, payload any) {
	h.mu.Lock()
	snapshot := make([]Listener, len(h.listeners[sessionID]))
	copy(snapshot, h.listeners[sessionID])
	h.mu.Unlock()

	for _, l := range snapshot {
		l.OnSessionEvent(sessionID, eventType, payload)
	}
}
