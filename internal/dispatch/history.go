package dispatch

import (
	"sync"
	"time"

	"github.com/hyprpal/playpal/internal/state"
)

const defaultHistoryLimit = 128

// Record describes one dispatch decision or delivery outcome.
type Record struct {
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"traceId,omitempty"`
	Signal    string      `json:"signal,omitempty"`
	Tab       state.TabID `json:"tab"`
	URL       string      `json:"url,omitempty"`
	Command   Command     `json:"command"`
	Status    Status      `json:"status"`
	Reason    string      `json:"reason,omitempty"`
	Error     string      `json:"error,omitempty"`
}

type history struct {
	mu      sync.Mutex
	entries []Record
	limit   int
}

func newHistory(limit int) *history {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &history{limit: limit}
}

func (h *history) record(entry Record) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == h.limit {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:h.limit-1]
	}
	h.entries = append(h.entries, entry)
}

func (h *history) snapshot() []Record {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return nil
	}
	return append([]Record(nil), h.entries...)
}
