package client

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyprpal/playpal/internal/config"
	"github.com/hyprpal/playpal/internal/control"
	"github.com/hyprpal/playpal/internal/dispatch"
	"github.com/hyprpal/playpal/internal/engine"
	"github.com/hyprpal/playpal/internal/metrics"
	"github.com/hyprpal/playpal/internal/state"
)

func startTestServer(t *testing.T, handler func(net.Conn)) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "socket")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen on unix socket: %v", err)
	}
	go func() {
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		handler(conn)
	}()
	return path
}

// respond decodes one request, checks its action, and writes resp.
func respond(t *testing.T, action string, resp control.Response, check func(control.Request)) func(net.Conn) {
	return func(conn net.Conn) {
		defer conn.Close()
		var req control.Request
		if err := json.NewDecoder(conn).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Action != action {
			t.Errorf("unexpected action %q", req.Action)
			return
		}
		if check != nil {
			check(req)
		}
		if err := json.NewEncoder(conn).Encode(resp); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}
}

func newClient(t *testing.T, path string) *Client {
	t.Helper()
	cli, err := New(path)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	return cli
}

func TestStatusSuccess(t *testing.T) {
	started := time.Now().UTC().Round(time.Second)
	path := startTestServer(t, respond(t, control.ActionStatus, control.Response{Status: control.StatusOK, Data: control.DaemonStatus{
		Instance: "abc",
		Started:  started,
		Session:  state.SessionSnapshot{LastActiveTab: "A", LastActiveWindow: 1, Power: state.PowerLocked},
		Options:  config.Options{AutoPause: true},
		Patterns: []config.Pattern{{Pattern: "https://www.youtube.com/*", Enabled: true}},
	}}, nil))

	status, err := newClient(t, path).Status(context.Background())
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status.Instance != "abc" || !status.Started.Equal(started) {
		t.Fatalf("unexpected status header: %#v", status)
	}
	if status.Session.LastActiveTab != "A" || status.Session.Power != state.PowerLocked {
		t.Fatalf("unexpected session: %#v", status.Session)
	}
	if !status.Options.AutoPause || len(status.Patterns) != 1 {
		t.Fatalf("unexpected settings: %#v", status)
	}
}

func TestStatusError(t *testing.T) {
	path := startTestServer(t, respond(t, control.ActionStatus, control.Response{Status: control.StatusError, Error: "boom"}, nil))
	if _, err := newClient(t, path).Status(context.Background()); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom error, got %v", err)
	}
}

func TestCommand(t *testing.T) {
	path := startTestServer(t, respond(t, control.ActionCommand, control.Response{Status: control.StatusOK}, func(req control.Request) {
		if req.Params["name"] != "toggle-play" {
			t.Errorf("unexpected params: %#v", req.Params)
		}
	}))
	cli := newClient(t, path)
	if err := cli.Command(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty command")
	}
	if err := cli.Command(context.Background(), "toggle-play"); err != nil {
		t.Fatalf("Command returned error: %v", err)
	}
}

func TestSet(t *testing.T) {
	path := startTestServer(t, respond(t, control.ActionSettingsSet, control.Response{Status: control.StatusOK}, func(req control.Request) {
		if req.Params["key"] != "autopause" || req.Params["value"] != false {
			t.Errorf("unexpected params: %#v", req.Params)
		}
	}))
	cli := newClient(t, path)
	if err := cli.Set(context.Background(), "", true); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if err := cli.Set(context.Background(), "autopause", false); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
}

func TestHistory(t *testing.T) {
	path := startTestServer(t, respond(t, control.ActionHistory, control.Response{Status: control.StatusOK, Data: control.History{
		Signals:    []engine.SignalRecord{{ID: "sig-1", Kind: "tab-activated", Tab: "A"}},
		Dispatches: []dispatch.Record{{TraceID: "sig-1", Tab: "B", Command: dispatch.CommandStop, Status: dispatch.StatusDelivered}},
	}}, nil))
	history, err := newClient(t, path).History(context.Background())
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(history.Signals) != 1 || history.Signals[0].ID != "sig-1" {
		t.Fatalf("unexpected signals: %#v", history.Signals)
	}
	if len(history.Dispatches) != 1 || history.Dispatches[0].Command != dispatch.CommandStop {
		t.Fatalf("unexpected dispatches: %#v", history.Dispatches)
	}
}

func TestMetrics(t *testing.T) {
	path := startTestServer(t, respond(t, control.ActionMetrics, control.Response{Status: control.StatusOK, Data: metrics.Snapshot{
		Enabled: true,
		Totals:  metrics.Totals{Signals: 3, Queued: 2, Delivered: 1},
	}}, nil))
	snap, err := newClient(t, path).Metrics(context.Background())
	if err != nil {
		t.Fatalf("Metrics returned error: %v", err)
	}
	if !snap.Enabled || snap.Totals.Signals != 3 || snap.Totals.Delivered != 1 {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
}

func TestReloadDialError(t *testing.T) {
	cli := newClient(t, filepath.Join(t.TempDir(), "missing.sock"))
	if err := cli.Reload(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
}
