package scenario

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyprpal/playpal/internal/metrics"
	"github.com/hyprpal/playpal/internal/util"
)

func quietLogger() *util.Logger {
	return util.NewLoggerWithWriter(util.LevelError, io.Discard)
}

func TestPlayTwoWindowsScenario(t *testing.T) {
	sc, err := Load(filepath.Join("testdata", "two-windows.yaml"))
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	var out bytes.Buffer
	if err := Play(context.Background(), sc, &out, quietLogger()); err != nil {
		t.Fatalf("Play returned error: %v\n%s", err, out.String())
	}
	text := out.String()
	for _, want := range []string{
		"scenario: two windows with a disabled site",
		"step 1: tab-activated tab=B window=1",
		"  -> stop A",
		"  xx resume B: suppressed disabled for tab",
		"step 3: set focuspause=true focusresume=true",
		"  -> resume C",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestPlayReportsMismatch(t *testing.T) {
	sc, err := Parse([]byte(`tabs:
  - {id: A, windowId: 1, url: "https://a.example/", active: true}
  - {id: B, windowId: 1, url: "https://b.example/", active: false}
steps:
  - host: {activate: B}
    signal: {kind: tab-activated, tab: B, window: 1}
    expect: ["stop A"]
`))
	if err != nil {
		t.Fatalf("parse scenario: %v", err)
	}
	err = Play(context.Background(), sc, io.Discard, quietLogger())
	if err == nil || !strings.Contains(err.Error(), "step 1: deliveries differ") {
		t.Fatalf("expected delivery mismatch, got %v", err)
	}
}

func TestPlayerCountsIntoCollector(t *testing.T) {
	sc, err := Parse([]byte(`tabs:
  - {id: A, windowId: 1, url: "https://a.example/", active: true}
steps:
  - signal: {kind: power-state-changed, state: locked}
    expect: ["stop A"]
`))
	if err != nil {
		t.Fatalf("parse scenario: %v", err)
	}
	collector := metrics.NewCollector(true)
	p, err := NewPlayer(context.Background(), sc, quietLogger(), collector)
	if err != nil {
		t.Fatalf("NewPlayer returned error: %v", err)
	}
	defer p.Close()
	if err := p.Step(context.Background(), 1, sc.Steps[0], io.Discard); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if p.Deliveries() != 1 {
		t.Fatalf("expected one delivery, got %d", p.Deliveries())
	}
	totals := collector.Snapshot().Totals
	if totals.Signals != 1 || totals.Delivered != 1 {
		t.Fatalf("unexpected totals: %#v", totals)
	}
}

func TestParseRejectsInvalidSteps(t *testing.T) {
	cases := map[string]string{
		"empty step":    "steps:\n  - expect: []\n",
		"invalid event": "steps:\n  - signal: {kind: tab-activated, tab: A}\n",
		"bad yaml":      "steps: [",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
