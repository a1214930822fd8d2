package activity

import (
	"context"
	"sync"
)

// CaptureHook keeps every event it receives. Tests use it to assert on
// emitted activity.
type CaptureHook struct {
	mu     sync.Mutex
	Events []Event

	// Err is returned from every Notify call.
	Err error
}

func (h *CaptureHook) Notify(_ context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Events = append(h.Events, NormalizeEvent(event))
	return h.Err
}

// Verbs lists the captured verbs in arrival order.
func (h *CaptureHook) Verbs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.Events))
	for i, event := range h.Events {
		out[i] = event.Verb
	}
	return out
}

// Filter returns the captured events with verb.
func (h *CaptureHook) Filter(verb string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, event := range h.Events {
		if event.Verb == verb {
			out = append(out, event)
		}
	}
	return out
}
