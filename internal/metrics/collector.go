package metrics

import (
	"sort"
	"sync"
	"time"
)

// Outcome labels a single dispatch attempt.
type Outcome string

const (
	OutcomeQueued     Outcome = "queued"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeDropped    Outcome = "dropped"
	OutcomeDelivered  Outcome = "delivered"
	OutcomeFailed     Outcome = "failed"
)

// Collector aggregates anonymous counters for handled signals and dispatched
// commands.
type Collector struct {
	mu       sync.RWMutex
	enabled  bool
	started  time.Time
	signals  map[string]*SignalMetrics
	commands map[string]*CommandMetrics
}

// SignalMetrics captures per-signal-kind counters.
type SignalMetrics struct {
	Kind         string    `json:"kind"`
	Received     uint64    `json:"received"`
	Failed       uint64    `json:"failed"`
	LastReceived time.Time `json:"lastReceived,omitempty"`
	LastFailed   time.Time `json:"lastFailed,omitempty"`
}

// CommandMetrics captures per-command dispatch counters.
type CommandMetrics struct {
	Command        string    `json:"command"`
	Queued         uint64    `json:"queued"`
	Suppressed     uint64    `json:"suppressed"`
	Dropped        uint64    `json:"dropped"`
	Delivered      uint64    `json:"delivered"`
	DeliveryErrors uint64    `json:"deliveryErrors"`
	LastDispatched time.Time `json:"lastDispatched,omitempty"`
}

// Totals aggregates counters across all entries in a snapshot.
type Totals struct {
	Signals        uint64 `json:"signals"`
	SignalErrors   uint64 `json:"signalErrors"`
	Queued         uint64 `json:"queued"`
	Suppressed     uint64 `json:"suppressed"`
	Dropped        uint64 `json:"dropped"`
	Delivered      uint64 `json:"delivered"`
	DeliveryErrors uint64 `json:"deliveryErrors"`
}

// Snapshot is the serializable view of the current metrics state.
type Snapshot struct {
	Enabled  bool             `json:"enabled"`
	Started  time.Time        `json:"started,omitempty"`
	Totals   Totals           `json:"totals"`
	Signals  []SignalMetrics  `json:"signals,omitempty"`
	Commands []CommandMetrics `json:"commands,omitempty"`
}

// NewCollector returns a collector with the provided opt-in state.
func NewCollector(enabled bool) *Collector {
	c := &Collector{}
	c.SetEnabled(enabled)
	return c
}

// Enabled reports whether collection is currently active.
func (c *Collector) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetEnabled toggles collection, resetting counters when enabling.
func (c *Collector) SetEnabled(enabled bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	if !enabled {
		c.signals = nil
		c.commands = nil
		c.started = time.Time{}
		return
	}
	c.started = time.Now()
	c.signals = make(map[string]*SignalMetrics)
	c.commands = make(map[string]*CommandMetrics)
}

// RecordSignal increments the received counter for a signal kind.
func (c *Collector) RecordSignal(kind string) {
	c.updateSignal(kind, func(m *SignalMetrics, now time.Time) {
		m.Received++
		m.LastReceived = now
	})
}

// RecordSignalError increments the failure counter for a signal kind.
func (c *Collector) RecordSignalError(kind string) {
	c.updateSignal(kind, func(m *SignalMetrics, now time.Time) {
		m.Failed++
		m.LastFailed = now
	})
}

// RecordDispatch counts one outcome for a command.
func (c *Collector) RecordDispatch(command string, outcome Outcome) {
	if c == nil {
		return
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	if c.commands == nil {
		c.commands = make(map[string]*CommandMetrics)
	}
	m, ok := c.commands[command]
	if !ok {
		m = &CommandMetrics{Command: command}
		c.commands[command] = m
	}
	switch outcome {
	case OutcomeQueued:
		m.Queued++
		m.LastDispatched = now
	case OutcomeSuppressed:
		m.Suppressed++
	case OutcomeDropped:
		m.Dropped++
	case OutcomeDelivered:
		m.Delivered++
	case OutcomeFailed:
		m.DeliveryErrors++
	}
}

func (c *Collector) updateSignal(kind string, mutate func(*SignalMetrics, time.Time)) {
	if c == nil || mutate == nil {
		return
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	if c.signals == nil {
		c.signals = make(map[string]*SignalMetrics)
	}
	m, ok := c.signals[kind]
	if !ok {
		m = &SignalMetrics{Kind: kind}
		c.signals[kind] = m
	}
	mutate(m, now)
}

// Snapshot returns the current counters for serialization or display.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{Enabled: c.enabled}
	if !c.enabled {
		return snap
	}
	snap.Started = c.started
	for _, m := range c.signals {
		snap.Signals = append(snap.Signals, *m)
		snap.Totals.Signals += m.Received
		snap.Totals.SignalErrors += m.Failed
	}
	for _, m := range c.commands {
		snap.Commands = append(snap.Commands, *m)
		snap.Totals.Queued += m.Queued
		snap.Totals.Suppressed += m.Suppressed
		snap.Totals.Dropped += m.Dropped
		snap.Totals.Delivered += m.Delivered
		snap.Totals.DeliveryErrors += m.DeliveryErrors
	}
	sort.Slice(snap.Signals, func(i, j int) bool { return snap.Signals[i].Kind < snap.Signals[j].Kind })
	sort.Slice(snap.Commands, func(i, j int) bool { return snap.Commands[i].Command < snap.Commands[j].Command })
	return snap
}
