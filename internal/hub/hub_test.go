package hub

import (
	"sync"
	"testing"
)

func TestHub(t *testing.T) {
	t.Run("RegisterAndNotify", func(t *testing.T) {
		h := New()
		var got []string
		l := NewFuncListener(func(sessionID, eventType string, payload any) {
			got = append(got, sessionID+"/"+eventType)
		})

		h.Register("s1", l)
		h.Notify("s1", "tool_event", nil)
		h.Notify("s1", "tool_result", nil)

		if len(got) != 2 || got[0] != "s1/tool_event" || got[1] != "s1/tool_result" {
			t.Errorf("unexpected deliveries: %v", got)
		}
	})

	t.Run("ScopedBySession", func(t *testing.T) {
		h := New()
		var count int
		h.Register("s1", NewFuncListener(func(string, string, any) { count++ }))

		h.Notify("s2", "tool_event", nil)

		if count != 0 {
			t.Errorf("listener for s1 must not see s2 events, got %d", count)
		}
	})

	t.Run("MultipleListeners", func(t *testing.T) {
		h := New()
		var a, b int
		h.Register("s1", NewFuncListener(func(string, string, any) { a++ }))
		h.Register("s1", NewFuncListener(func(string, string, any) { b++ }))

		h.Notify("s1", "tool_event", nil)

		if a != 1 || b != 1 {
			t.Errorf("expected both listeners notified, got a=%d b=%d", a, b)
		}
	})

	t.Run("Unregister", func(t *testing.T) {
		h := New()
		var count int
		l := NewFuncListener(func(string, string, any) { count++ })

		h.Register("s1", l)
		h.Notify("s1", "tool_event", nil)
		h.Unregister("s1", l)
		h.Notify("s1", "tool_event", nil)

		if count != 1 {
			t.Errorf("expected 1 delivery after unregister, got %d", count)
		}
	})

	t.Run("UnregisterUnknownNoop", func(t *testing.T) {
		h := New()
		h.Unregister("s1", NewFuncListener(func(string, string, any) {}))
		h.Unregister("never-seen", NewFuncListener(func(string, string, any) {}))
	})

	t.Run("NotifyNoListeners", func(t *testing.T) {
		h := New()
		h.Notify("s1", "tool_event", nil)
	})

	t.Run("PayloadPassthrough", func(t *testing.T) {
		h := New()
		var got any
		h.Register("s1", NewFuncListener(func(_, _ string, payload any) { got = payload }))

		type marker struct{ N int }
		h.Notify("s1", "tool_event", marker{N: 7})

		if m, ok := got.(marker); !ok || m.N != 7 {
			t.Errorf("unexpected payload: %#v", got)
		}
	})

	t.Run("ListenerMayRegisterDuringDelivery", func(t *testing.T) {
		h := New()
		var second int
		l := NewFuncListener(func(string, string, any) {
			h.Register("s1", NewFuncListener(func(string, string, any) { second++ }))
		})
		h.Register("s1", l)

		// Must not deadlock; the snapshot was taken before delivery.
		h.Notify("s1", "tool_event", nil)
		h.Unregister("s1", l)
		h.Notify("s1", "tool_event", nil)

		if second == 0 {
			t.Error("listener registered during delivery never saw later events")
		}
	})

	t.Run("ConcurrentNotify", func(t *testing.T) {
		h := New()
		var mu sync.Mutex
		count := 0
		h.Register("s1", NewFuncListener(func(string, string, any) {
			mu.Lock()
			count++
			mu.Unlock()
		}))

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					h.Notify("s1", "tool_event", nil)
				}
			}()
		}
		wg.Wait()

		if count != 500 {
			t.Errorf("expected 500 deliveries, got %d", count)
		}
	})
}
