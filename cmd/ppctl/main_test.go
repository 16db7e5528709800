package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyprpal/playpal/internal/config"
	"github.com/hyprpal/playpal/internal/control/client"
	"github.com/hyprpal/playpal/internal/ipc"
	"github.com/hyprpal/playpal/internal/metrics"
	"github.com/hyprpal/playpal/internal/state"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestRunCheckSuccess(t *testing.T) {
	cfg := `patterns:
  - https://www.youtube.com/*
  - https://open.spotify.com/*
dispatch:
  timeoutMs: 1500
`
	path := writeTempConfig(t, cfg)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	if err := runCheck([]string{"--config", path}, &stdout, &stderr); err != nil {
		t.Fatalf("runCheck returned error: %v", err)
	}
	if strings.TrimSpace(stdout.String()) != "Configuration OK" {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
	if strings.TrimSpace(stderr.String()) != "" {
		t.Fatalf("expected no stderr, got %q", stderr.String())
	}
}

func TestRunCheckFailure(t *testing.T) {
	cfg := `patterns:
  - ""
  - ftp://example.com/*
dispatch:
  queueSize: -1
browser:
  debuggerURL: ws://127.0.0.1:9222/devtools/browser/x
  launch: [chromium]
`
	path := writeTempConfig(t, cfg)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	err := runCheck([]string{"--config", path}, &stdout, &stderr)
	if err == nil {
		t.Fatalf("expected error from runCheck")
	}
	if strings.TrimSpace(stdout.String()) != "" {
		t.Fatalf("expected no stdout, got %q", stdout.String())
	}
	output := stderr.String()
	for _, want := range []string{
		"Configuration has",
		"patterns[0]: pattern cannot be empty",
		`patterns[1]: pattern "ftp://example.com/*" must start with http`,
		"dispatch.queueSize: cannot be negative",
		"browser: set either debuggerURL or launch, not both",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("missing %q in %q", want, output)
		}
	}
}

func TestBuildSignal(t *testing.T) {
	ev, err := buildSignal([]string{"tab-activated", "-tab", "A", "-window", "3"})
	if err != nil {
		t.Fatalf("buildSignal returned error: %v", err)
	}
	if ev.Kind != ipc.KindTabActivated || ev.Tab != "A" || ev.WindowOrNone() != 3 {
		t.Fatalf("unexpected event: %#v", ev)
	}

	ev, err = buildSignal([]string{"runtime-message", "-tab", "B", "-minimized", "true", "-seq", "7"})
	if err != nil {
		t.Fatalf("buildSignal returned error: %v", err)
	}
	if ev.Message == nil || ev.Message.Minimized == nil || !*ev.Message.Minimized {
		t.Fatalf("expected minimized message, got %#v", ev.Message)
	}
	if ev.Message.Visible != nil || ev.Seq != 7 {
		t.Fatalf("unexpected message fields: %#v", ev)
	}

	ev, err = buildSignal([]string{"window-focus-changed", "-window", "-1"})
	if err != nil {
		t.Fatalf("buildSignal returned error: %v", err)
	}
	if ev.WindowOrNone() != state.WindowNone {
		t.Fatalf("expected WindowNone, got %d", ev.WindowOrNone())
	}
}

func TestBuildSignalErrors(t *testing.T) {
	cases := [][]string{
		nil,
		{"bogus"},
		{"tab-activated", "-tab", "A"},
		{"power-state-changed", "-state", "asleep"},
		{"tab-updated", "-tab", "A", "-active", "maybe"},
		{"command-invoked"},
	}
	for _, args := range cases {
		if _, err := buildSignal(args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestParseSetting(t *testing.T) {
	key, value, err := parseSetting([]string{"autopause", "false"})
	if err != nil || key != "autopause" || value {
		t.Fatalf("unexpected parse: %q %t %v", key, value, err)
	}
	if _, _, err := parseSetting([]string{"autopause"}); err == nil {
		t.Fatalf("expected arity error")
	}
	if _, _, err := parseSetting([]string{"autopause", "yes"}); err == nil {
		t.Fatalf("expected bool error")
	}
}

func TestPrintStatusAndMetrics(t *testing.T) {
	var out bytes.Buffer
	printStatus(&out, client.DaemonStatus{
		Instance: "abc",
		Session:  state.SessionSnapshot{LastActiveTab: "A", LastActiveWindow: 1, Power: state.PowerIdle},
		Options:  config.Options{AutoPause: true},
		Patterns: []config.Pattern{{Pattern: "https://www.youtube.com/*", Enabled: false}},
	})
	text := out.String()
	for _, want := range []string{"Last active tab: A", "Power: idle", "autopause", "https://www.youtube.com/*"} {
		if !strings.Contains(text, want) {
			t.Fatalf("status output missing %q:\n%s", want, text)
		}
	}

	out.Reset()
	printMetrics(&out, metrics.Snapshot{})
	if !strings.Contains(out.String(), "Telemetry disabled") {
		t.Fatalf("unexpected metrics output: %q", out.String())
	}
	out.Reset()
	printMetrics(&out, metrics.Snapshot{Enabled: true, Commands: []metrics.CommandMetrics{{Command: "stop", Queued: 2}}})
	if !strings.Contains(out.String(), "stop") {
		t.Fatalf("expected command row: %q", out.String())
	}
}
