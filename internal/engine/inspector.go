package engine

import (
	"sync"
	"time"
)

const inspectorHistoryLimit = 128

// SignalRecord captures the handling of one host signal.
type SignalRecord struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Kind      string        `json:"kind"`
	Tab       string        `json:"tab,omitempty"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

type signalLog struct {
	mu      sync.Mutex
	entries []SignalRecord
	limit   int
}

func newSignalLog(limit int) *signalLog {
	if limit <= 0 {
		limit = inspectorHistoryLimit
	}
	return &signalLog{limit: limit}
}

func (l *signalLog) record(entry SignalRecord) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit > 0 && len(l.entries) == l.limit {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:l.limit-1]
	}
	l.entries = append(l.entries, entry)
}

func (l *signalLog) snapshot() []SignalRecord {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	return append([]SignalRecord(nil), l.entries...)
}

// SignalHistory returns the most recently handled signals, oldest first.
func (e *Engine) SignalHistory() []SignalRecord {
	return e.signals.snapshot()
}
