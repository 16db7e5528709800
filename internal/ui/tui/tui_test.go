package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hyprpal/playpal/internal/config"
	"github.com/hyprpal/playpal/internal/control/client"
	"github.com/hyprpal/playpal/internal/dispatch"
	"github.com/hyprpal/playpal/internal/metrics"
	"github.com/hyprpal/playpal/internal/state"
)

type fakeSource struct {
	status    client.DaemonStatus
	statusErr error
	history   client.History
	snap      metrics.Snapshot
}

func (f fakeSource) Status(context.Context) (client.DaemonStatus, error) {
	return f.status, f.statusErr
}

func (f fakeSource) History(context.Context) (client.History, error) { return f.history, nil }

func (f fakeSource) Metrics(context.Context) (client.Metrics, error) { return f.snap, nil }

func TestFrameRendersSessionAndDispatches(t *testing.T) {
	src := fakeSource{
		status: client.DaemonStatus{
			Session:  state.SessionSnapshot{LastActiveTab: "A", LastActiveWindow: 2, Power: state.PowerActive},
			Options:  config.Options{AutoPause: true, FocusResume: true},
			Patterns: []config.Pattern{{Pattern: "https://www.youtube.com/*", Enabled: true}},
		},
		history: client.History{Dispatches: []dispatch.Record{{
			Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
			Signal:    "tab-activated",
			Tab:       "B",
			Command:   dispatch.CommandStop,
			Status:    dispatch.StatusSuppressed,
			Reason:    "disabled for tab",
		}}},
		snap: metrics.Snapshot{Enabled: true, Totals: metrics.Totals{Signals: 4, Queued: 1}},
	}
	out := New(src, nil).Frame(context.Background())
	for _, want := range []string{
		"Last tab: A  window: 2  power: active",
		"Options: autopause, focusresume",
		"* https://www.youtube.com/*",
		"suppressed (disabled for tab)",
		"Signals 4 (0 failed)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("frame missing %q:\n%s", want, out)
		}
	}
}

func TestFrameShowsEmptySessionAndDisabled(t *testing.T) {
	src := fakeSource{status: client.DaemonStatus{
		Session:  state.SessionSnapshot{LastActiveTab: state.NoTab, LastActiveWindow: state.WindowNone, Power: state.PowerLocked},
		Disabled: true,
	}}
	out := New(src, nil).Frame(context.Background())
	if !strings.Contains(out, "Last tab: (none)  window: (none)  power: locked") {
		t.Fatalf("unexpected session line:\n%s", out)
	}
	if !strings.Contains(out, "Extension DISABLED") || !strings.Contains(out, "Options: (all off)") {
		t.Fatalf("expected disabled banner and empty options:\n%s", out)
	}
	if strings.Contains(out, "Signals") {
		t.Fatalf("metrics line should be hidden when telemetry is off:\n%s", out)
	}
}

func TestFrameReportsStatusError(t *testing.T) {
	out := New(fakeSource{statusErr: errors.New("dial failed")}, nil).Frame(context.Background())
	if out != "error: dial failed\n" {
		t.Fatalf("unexpected frame %q", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Fatalf("truncate = %q", got)
	}
}
