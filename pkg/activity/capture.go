package activity

import (
	"context"
	"sync"
)

// CaptureHook records every event it receives. Set Err to make Notify fail
// after recording.
type CaptureHook struct {
	Events []Event
	Err    error
	mu     sync.Mutex
}

func (h *CaptureHook) Notify(_ context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Events = append(h.Events, NormalizeEvent(event))
	return h.Err
}

// Verbs lists the verbs of the recorded events in arrival order.
func (h *CaptureHook) Verbs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	verbs := make([]string, 0, len(h.Events))
	for _, event := range h.Events {
		verbs = append(verbs, event.Verb)
	}
	return verbs
}

// Paths lists the key paths touched by the recorded events, skipping
// whole-object events.
func (h *CaptureHook) Paths() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var paths []string
	for _, event := range h.Events {
		if path := event.Path(); path != "" {
			paths = append(paths, path)
		}
	}
	return paths
}

// Matching returns the recorded events accepted by match.
func (h *CaptureHook) Matching(match Matcher) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, event := range h.Events {
		if match == nil || match(event) {
			out = append(out, event)
		}
	}
	return out
}

// Last returns the most recent event.
func (h *CaptureHook) Last() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.Events) == 0 {
		return Event{}, false
	}
	return h.Events[len(h.Events)-1], true
}

// Reset drops the recorded events.
func (h *CaptureHook) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Events = nil
}
