package control

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/hyprpal/playpal/internal/config"
	"github.com/hyprpal/playpal/internal/dispatch"
	"github.com/hyprpal/playpal/internal/engine"
	"github.com/hyprpal/playpal/internal/state"
)

const (
	// SocketFileName is the filename of the control socket within the runtime dir.
	SocketFileName = "control.sock"

	// Action names supported by the control protocol.
	ActionStatus      = "status"
	ActionReload      = "reload"
	ActionCommand     = "command"
	ActionHistory     = "history"
	ActionMetrics     = "metrics"
	ActionSettingsSet = "settings.set"

	// Response statuses.
	StatusOK    = "ok"
	StatusError = "error"
)

// Request represents a control API request.
type Request struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// Response represents a control API response.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// DaemonStatus describes the running daemon's session and effective settings.
type DaemonStatus struct {
	Instance string                `json:"instance"`
	Started  time.Time             `json:"started"`
	Session  state.SessionSnapshot `json:"session"`
	Options  config.Options        `json:"options"`
	Patterns []config.Pattern      `json:"patterns,omitempty"`
	// Disabled reflects the stored master switch; Options already has the
	// override applied.
	Disabled bool `json:"disabled"`
}

// History carries the recent signal and dispatch logs.
type History struct {
	Signals    []engine.SignalRecord `json:"signals,omitempty"`
	Dispatches []dispatch.Record     `json:"dispatches,omitempty"`
}

// DefaultSocketPath returns the expected location of the playpal control socket.
func DefaultSocketPath() (string, error) {
	if env := os.Getenv("PLAYPAL_CONTROL_SOCKET"); env != "" {
		return env, nil
	}
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
