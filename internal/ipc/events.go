package ipc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyprpal/playpal/internal/config"
	"github.com/hyprpal/playpal/internal/state"
)

// SocketFileName is the filename of the signal socket within the runtime dir.
const SocketFileName = "signals.sock"

// Kind names a host signal.
type Kind string

const (
	KindTabActivated       Kind = "tab-activated"
	KindTabUpdated         Kind = "tab-updated"
	KindWindowFocusChanged Kind = "window-focus-changed"
	KindRuntimeMessage     Kind = "runtime-message"
	KindCommandInvoked     Kind = "command-invoked"
	KindPowerStateChanged  Kind = "power-state-changed"
	KindStorageChanged     Kind = "storage-changed"
)

// Kinds lists every signal kind.
var Kinds = []Kind{
	KindTabActivated,
	KindTabUpdated,
	KindWindowFocusChanged,
	KindRuntimeMessage,
	KindCommandInvoked,
	KindPowerStateChanged,
	KindStorageChanged,
}

// Valid reports whether k is a known signal kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// TabMessage is the payload a tab's agent sends to the engine. Absent fields
// mean the dimension did not change.
type TabMessage struct {
	Minimized      *bool `json:"minimized,omitempty" yaml:"minimized,omitempty"`
	Visible        *bool `json:"visible,omitempty" yaml:"visible,omitempty"`
	CursorNearEdge *bool `json:"cursorNearEdge,omitempty" yaml:"cursorNearEdge,omitempty"`
}

// Ack acknowledges a runtime message.
type Ack struct {
	Seq      uint64         `json:"seq"`
	Response map[string]any `json:"response"`
}

// Event is a single host signal. Only the fields relevant to Kind are set.
type Event struct {
	Kind Kind   `json:"kind" yaml:"kind"`
	Seq  uint64 `json:"seq,omitempty" yaml:"seq,omitempty"`

	Tab    state.TabID     `json:"tab,omitempty" yaml:"tab,omitempty"`
	Window *state.WindowID `json:"window,omitempty" yaml:"window,omitempty"`
	Status string          `json:"status,omitempty" yaml:"status,omitempty"`
	Active *bool           `json:"active,omitempty" yaml:"active,omitempty"`
	URL    string          `json:"url,omitempty" yaml:"url,omitempty"`

	Message *TabMessage    `json:"message,omitempty" yaml:"message,omitempty"`
	Command string         `json:"command,omitempty" yaml:"command,omitempty"`
	State   string         `json:"state,omitempty" yaml:"state,omitempty"`
	Changes config.Changes `json:"changes,omitempty" yaml:"changes,omitempty"`

	// Reply delivers the acknowledgement for runtime messages. Nil when the
	// sender does not expect one.
	Reply func(Ack) error `json:"-" yaml:"-"`
}

// WindowOrNone returns the event's window, or WindowNone when absent.
func (e Event) WindowOrNone() state.WindowID {
	if e.Window == nil {
		return state.WindowNone
	}
	return *e.Window
}

// Validate checks that the fields required by the event kind are present.
func (e Event) Validate() error {
	switch e.Kind {
	case KindTabActivated:
		if e.Tab == state.NoTab || e.Window == nil {
			return errors.New("tab-activated requires tab and window")
		}
	case KindTabUpdated, KindRuntimeMessage:
		if e.Tab == state.NoTab {
			return fmt.Errorf("%s requires tab", e.Kind)
		}
	case KindCommandInvoked:
		if e.Command == "" {
			return errors.New("command-invoked requires command")
		}
	case KindPowerStateChanged:
		if _, err := state.ParsePowerState(e.State); err != nil {
			return err
		}
	case KindWindowFocusChanged, KindStorageChanged:
	default:
		return fmt.Errorf("unknown signal kind %q", e.Kind)
	}
	return nil
}

// DefaultSocketPath returns the expected location of the signal socket.
func DefaultSocketPath() (string, error) {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	base := runtimeDir
	if base == "" {
		base = os.TempDir()
		if base == "" {
			return "", errors.New("no runtime directory available")
		}
	}
	return filepath.Join(base, "playpal", SocketFileName), nil
}
