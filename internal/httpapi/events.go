package httpapi

import (
	"sync"
	"time"

	"github.com/antoniostano/dubstitch/internal/runstore"
)

// Event is one progress message on a run's websocket stream.
type Event struct {
	Type    string                  `json:"type"` // "state" or "segment"
	RunID   string                  `json:"run_id"`
	State   string                  `json:"state,omitempty"`
	Segment *runstore.SegmentRecord `json:"segment,omitempty"`
	AtMS    int64                   `json:"at_ms"`
}

// Hub fans run progress events out to websocket subscribers. Slow
// subscribers drop events instead of blocking the pipeline.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

func (h *Hub) Publish(ev Event) {
	if ev.AtMS == 0 {
		ev.AtMS = time.Now().UnixMilli()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.RunID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a listener for one run's events. The returned
// cancel func must be called exactly once.
func (h *Hub) Subscribe(runID string) (<-chan Event, func()) {
	ch := make(chan Event, 64)
	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[chan Event]struct{})
	}
	h.subs[runID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[runID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, runID)
			}
		}
		h.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}
