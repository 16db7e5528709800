package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyprpal/playpal/internal/dispatch"
	"github.com/hyprpal/playpal/internal/state"
)

// Delivery records one message handed to a tab's agent.
type Delivery struct {
	Tab     state.TabID      `json:"tab" yaml:"tab"`
	Command dispatch.Command `json:"command" yaml:"command"`
}

// MemoryHost is an in-process host used by tests and scenario replay.
type MemoryHost struct {
	mu        sync.Mutex
	tabs      []state.Tab
	focused   state.WindowID
	sent      []Delivery
	injected  []state.TabID
	injectErr error
}

// NewMemoryHost returns a host holding the provided tabs. The window of the
// first active tab starts focused.
func NewMemoryHost(tabs ...state.Tab) *MemoryHost {
	h := &MemoryHost{focused: state.WindowNone}
	for _, tab := range tabs {
		h.tabs = append(h.tabs, tab)
		if tab.Active && h.focused == state.WindowNone {
			h.focused = tab.WindowID
		}
	}
	return h
}

// Upsert adds or replaces a tab. Activating a tab deactivates its siblings.
func (h *MemoryHost) Upsert(tab state.Tab) {
	h.mu.Lock()
	defer h.mu.Unlock()
	replaced := false
	for i := range h.tabs {
		if h.tabs[i].ID == tab.ID {
			h.tabs[i] = tab
			replaced = true
		} else if tab.Active && h.tabs[i].WindowID == tab.WindowID {
			h.tabs[i].Active = false
		}
	}
	if !replaced {
		h.tabs = append(h.tabs, tab)
	}
}

// Activate marks id as the active tab of its window.
func (h *MemoryHost) Activate(id state.TabID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := h.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("activate %s: %w", id, state.ErrTabNotFound)
	}
	window := h.tabs[idx].WindowID
	for i := range h.tabs {
		if h.tabs[i].WindowID == window {
			h.tabs[i].Active = i == idx
		}
	}
	return nil
}

// Remove closes a tab.
func (h *MemoryHost) Remove(id state.TabID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if idx := h.indexLocked(id); idx >= 0 {
		h.tabs = append(h.tabs[:idx], h.tabs[idx+1:]...)
	}
}

// Focus sets the window the user is working in.
func (h *MemoryHost) Focus(window state.WindowID) {
	h.mu.Lock()
	h.focused = window
	h.mu.Unlock()
}

// FailInjection makes later Inject calls return err.
func (h *MemoryHost) FailInjection(err error) {
	h.mu.Lock()
	h.injectErr = err
	h.mu.Unlock()
}

func (h *MemoryHost) Tab(ctx context.Context, id state.TabID) (*state.Tab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := h.indexLocked(id)
	if idx < 0 {
		return nil, fmt.Errorf("tab %s: %w", id, state.ErrTabNotFound)
	}
	tab := h.tabs[idx]
	return &tab, nil
}

func (h *MemoryHost) TabsInWindow(ctx context.Context, window state.WindowID) ([]state.Tab, error) {
	return h.filter(ctx, func(tab state.Tab) bool { return tab.WindowID == window })
}

func (h *MemoryHost) ActiveTabs(ctx context.Context) ([]state.Tab, error) {
	return h.filter(ctx, func(tab state.Tab) bool { return tab.Active })
}

func (h *MemoryHost) CurrentWindowTabs(ctx context.Context) ([]state.Tab, error) {
	h.mu.Lock()
	focused := h.focused
	h.mu.Unlock()
	if focused == state.WindowNone {
		return nil, nil
	}
	return h.TabsInWindow(ctx, focused)
}

// SendMessage records the delivery. Messages to missing tabs fail.
func (h *MemoryHost) SendMessage(ctx context.Context, id state.TabID, msg dispatch.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.indexLocked(id) < 0 {
		return fmt.Errorf("send to %s: %w", id, state.ErrTabNotFound)
	}
	h.sent = append(h.sent, Delivery{Tab: id, Command: msg.Action})
	return nil
}

// Inject records an agent injection.
func (h *MemoryHost) Inject(ctx context.Context, tab state.Tab) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.injectErr != nil {
		return h.injectErr
	}
	h.injected = append(h.injected, tab.ID)
	return nil
}

// Deliveries returns every recorded delivery in order.
func (h *MemoryHost) Deliveries() []Delivery {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Delivery(nil), h.sent...)
}

// Injections returns the tabs that received the agent, in order.
func (h *MemoryHost) Injections() []state.TabID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]state.TabID(nil), h.injected...)
}

// Reset clears recorded deliveries and injections.
func (h *MemoryHost) Reset() {
	h.mu.Lock()
	h.sent = nil
	h.injected = nil
	h.mu.Unlock()
}

func (h *MemoryHost) filter(ctx context.Context, keep func(state.Tab) bool) ([]state.Tab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []state.Tab
	for _, tab := range h.tabs {
		if keep(tab) {
			out = append(out, tab)
		}
	}
	return out, nil
}

func (h *MemoryHost) indexLocked(id state.TabID) int {
	for i := range h.tabs {
		if h.tabs[i].ID == id {
			return i
		}
	}
	return -1
}

var (
	_ state.TabSource    = (*MemoryHost)(nil)
	_ dispatch.Messenger = (*MemoryHost)(nil)
)
