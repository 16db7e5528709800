package config

import (
	"context"
	"reflect"
	"sync"
)

// Change records a single key transition reported by a store.
type Change struct {
	OldValue any `json:"oldValue,omitempty" yaml:"oldValue"`
	NewValue any `json:"newValue,omitempty" yaml:"newValue"`
}

// Changes maps changed keys to their transitions.
type Changes map[string]Change

// Store persists settings as a flat key/value document and reports changes.
type Store interface {
	// Get returns the stored values for the requested keys. Missing keys are
	// absent from the result.
	Get(ctx context.Context, keys []string) (map[string]any, error)
	// Set writes the provided values and publishes the resulting changes.
	Set(ctx context.Context, values map[string]any) error
	// Changes streams change notifications, including those caused by Set.
	Changes() <-chan Changes
}

// diffValues computes the changes needed to go from prev to next for the
// keys present in next. Removed keys are reported when removed is true.
func diffValues(prev, next map[string]any, removed bool) Changes {
	changes := Changes{}
	for k, v := range next {
		old, ok := prev[k]
		if ok && reflect.DeepEqual(old, v) {
			continue
		}
		changes[k] = Change{OldValue: old, NewValue: v}
	}
	if removed {
		for k, v := range prev {
			if _, ok := next[k]; !ok {
				changes[k] = Change{OldValue: v}
			}
		}
	}
	return changes
}

func pick(values map[string]any, keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := values[k]; ok {
			out[k] = v
		}
	}
	return out
}

// publisher fans change notifications out on a buffered channel. Sends never
// block; a full buffer drops the notification.
type publisher struct {
	ch      chan Changes
	dropped func(Changes)
}

func newPublisher(size int) *publisher {
	if size <= 0 {
		size = 16
	}
	return &publisher{ch: make(chan Changes, size)}
}

func (p *publisher) publish(changes Changes) {
	if len(changes) == 0 {
		return
	}
	select {
	case p.ch <- changes:
	default:
		if p.dropped != nil {
			p.dropped(changes)
		}
	}
}

// MemoryStore keeps settings in memory.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]any
	pub    *publisher
}

// NewMemoryStore returns a store seeded with the provided values.
func NewMemoryStore(initial map[string]any) *MemoryStore {
	values := make(map[string]any, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &MemoryStore{values: values, pub: newPublisher(64)}
}

func (m *MemoryStore) Get(ctx context.Context, keys []string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return pick(m.values, keys), nil
}

func (m *MemoryStore) Set(ctx context.Context, values map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	changes := diffValues(m.values, values, false)
	for k, v := range values {
		m.values[k] = v
	}
	m.mu.Unlock()
	m.pub.publish(changes)
	return nil
}

func (m *MemoryStore) Changes() <-chan Changes {
	return m.pub.ch
}

var _ Store = (*MemoryStore)(nil)
