package state

import (
	"context"
	"errors"
	"fmt"
)

// TabID identifies a browsing context capable of hosting a player agent.
type TabID string

// NoTab is the sentinel for "no tab recorded yet".
const NoTab TabID = ""

// WindowID identifies a browser window grouping tabs that share focus.
type WindowID int

// WindowNone is reported when no browser window holds focus. It is also the
// initial value of the last focused window.
const WindowNone WindowID = -1

// PowerState mirrors the host's idle reporting.
type PowerState string

const (
	PowerActive PowerState = "active"
	PowerIdle   PowerState = "idle"
	PowerLocked PowerState = "locked"
)

// ParsePowerState validates a reported power state.
func ParsePowerState(s string) (PowerState, error) {
	switch PowerState(s) {
	case PowerActive, PowerIdle, PowerLocked:
		return PowerState(s), nil
	default:
		return "", fmt.Errorf("unknown power state %q", s)
	}
}

// Tab describes one browsing context as reported by the host.
type Tab struct {
	ID       TabID    `json:"id" yaml:"id"`
	WindowID WindowID `json:"windowId" yaml:"windowId"`
	URL      string   `json:"url,omitempty" yaml:"url"`
	Active   bool     `json:"active" yaml:"active"`
}

// ErrTabNotFound is returned by sources when a tab no longer exists.
var ErrTabNotFound = errors.New("tab not found")

// TabSource abstracts the host queries the engine needs. Implementations must
// return within a bounded time; tabs may vanish between calls.
type TabSource interface {
	Tab(ctx context.Context, id TabID) (*Tab, error)
	TabsInWindow(ctx context.Context, window WindowID) ([]Tab, error)
	// ActiveTabs returns the active tab of every window.
	ActiveTabs(ctx context.Context) ([]Tab, error)
	// CurrentWindowTabs returns all tabs of the window the user is working in.
	CurrentWindowTabs(ctx context.Context) ([]Tab, error)
}

// CloneTabs returns a copy of the provided slice.
func CloneTabs(src []Tab) []Tab {
	if len(src) == 0 {
		return nil
	}
	return append([]Tab(nil), src...)
}
