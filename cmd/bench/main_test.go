package main

import (
	"bytes"
	"context"
	"io"
	"math"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/hyprpal/playpal/internal/metrics"
	"github.com/hyprpal/playpal/internal/scenario"
	"github.com/hyprpal/playpal/internal/util"
)

func TestPercentile(t *testing.T) {
	cases := []struct {
		name     string
		values   []time.Duration
		p        float64
		expected time.Duration
	}{
		{name: "empty", values: nil, p: 0.5, expected: 0},
		{name: "lower bound", values: []time.Duration{time.Millisecond, 2 * time.Millisecond}, p: -0.1, expected: time.Millisecond},
		{name: "upper bound", values: []time.Duration{time.Millisecond, 2 * time.Millisecond}, p: 1.2, expected: 2 * time.Millisecond},
		{name: "median", values: []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}, p: 0.5, expected: 2 * time.Millisecond},
		{
			name:     "p95",
			values:   []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond, 4 * time.Millisecond, 5 * time.Millisecond},
			p:        0.95,
			expected: 5 * time.Millisecond,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := percentile(tc.values, tc.p); got != tc.expected {
				t.Fatalf("percentile(%s, %f) = %s, want %s", tc.name, tc.p, got, tc.expected)
			}
		})
	}
}

func TestStepsPerSecond(t *testing.T) {
	cases := []struct {
		name     string
		total    time.Duration
		steps    int
		expected float64
	}{
		{name: "zero duration", total: 0, steps: 10, expected: 0},
		{name: "zero steps", total: time.Second, steps: 0, expected: 0},
		{name: "positive", total: 10 * time.Millisecond, steps: 4, expected: 400},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := stepsPerSecond(tc.total, tc.steps)
			if math.Abs(got-tc.expected) > 1e-9 {
				t.Fatalf("stepsPerSecond(%s) = %f, want %f", tc.name, got, tc.expected)
			}
		})
	}
}

func TestSafeDivide(t *testing.T) {
	cases := []struct {
		total    int
		count    int
		expected float64
	}{
		{total: 10, count: 2, expected: 5},
		{total: 0, count: 10, expected: 0},
		{total: 10, count: 0, expected: 0},
	}

	for _, tc := range cases {
		got := safeDivide(tc.total, tc.count)
		if math.Abs(got-tc.expected) > 1e-9 {
			t.Fatalf("safeDivide(%d, %d) = %f, want %f", tc.total, tc.count, got, tc.expected)
		}
	}
}

func TestFormatBytesSigned(t *testing.T) {
	if got := formatBytesSigned(0); got != "0 B (0.00 MiB)" {
		t.Fatalf("formatBytesSigned(0) = %q", got)
	}
	if got := formatBytesSigned(1024); got != "1024 B (0.00 MiB)" {
		t.Fatalf("formatBytesSigned(1024) = %q", got)
	}
	if got := formatBytesSigned(-2048); got != "-2048 B (0.00 MiB)" {
		t.Fatalf("formatBytesSigned(-2048) = %q", got)
	}
}

func TestBuildReport(t *testing.T) {
	sc := &scenario.Scenario{Name: "test", Steps: make([]scenario.Step, 2)}
	results := []iterationResult{
		{duration: 10 * time.Millisecond, steps: []time.Duration{time.Millisecond, 2 * time.Millisecond}, deliveries: 5},
		{duration: 12 * time.Millisecond, steps: []time.Duration{3 * time.Millisecond, 4 * time.Millisecond}, deliveries: 3},
	}
	start := runtime.MemStats{Mallocs: 1000, TotalAlloc: 4096, HeapAlloc: 2048}
	end := runtime.MemStats{Mallocs: 1500, TotalAlloc: 8192, HeapAlloc: 3072}

	report := buildReport(sc, 1, results, metrics.Totals{Delivered: 8}, start, end)
	summary := report.Summary

	if summary.TotalSteps != 4 {
		t.Fatalf("TotalSteps = %d, want 4", summary.TotalSteps)
	}
	if summary.Deliveries.Total != 8 || math.Abs(summary.Deliveries.PerStep-2) > 1e-9 {
		t.Fatalf("unexpected deliveries: %#v", summary.Deliveries)
	}
	if summary.Allocations.Total != 500 || math.Abs(summary.Allocations.PerStep-125) > 1e-9 {
		t.Fatalf("unexpected allocations: %#v", summary.Allocations)
	}
	if summary.Allocations.HeapAllocDelta != 1024 {
		t.Fatalf("HeapAllocDelta = %d, want 1024", summary.Allocations.HeapAllocDelta)
	}
	if math.Abs(summary.Latency.Mean-2.5) > 1e-9 || math.Abs(summary.Latency.Max-4) > 1e-9 {
		t.Fatalf("unexpected latency: %#v", summary.Latency)
	}
	if math.Abs(summary.TotalDurationMs-10) > 1e-9 {
		t.Fatalf("TotalDurationMs = %f, want 10", summary.TotalDurationMs)
	}
	if len(report.DurationsMs) != 4 {
		t.Fatalf("expected 4 step durations, got %d", len(report.DurationsMs))
	}
}

func TestPrintHumanSummary(t *testing.T) {
	summary := benchSummary{
		Scenario:          "test",
		Iterations:        2,
		StepsPerIteration: 3,
		TotalSteps:        6,
		Deliveries:        benchDeliveryStats{Total: 12, PerIteration: 6, PerStep: 2},
		Outcomes:          metrics.Totals{Queued: 12, Suppressed: 1, Delivered: 12},
		Latency:           benchLatencyStats{Min: 1, Mean: 2, Median: 1.5, P95: 3.5, Max: 4},
		Allocations:       benchAllocationStats{Total: 120, PerStep: 20, HeapAllocDelta: 1024},
		StepsPerSecond:    300,
	}

	var buf bytes.Buffer
	if err := printHumanSummary(summary, &buf); err != nil {
		t.Fatalf("printHumanSummary returned error: %v", err)
	}

	output := buf.String()
	checks := []string{
		"test",
		"12 (6.00 / iter, 2.00 / step)",
		"queued 12 | suppressed 1 | dropped 0 | delivered 12 | errors 0",
		"min 1.000 | mean 2.000 | median 1.500 | p95 3.500 | max 4.000",
		"120 total (20.00 / step)",
		"1024 B (0.00 MiB)",
		"300.00",
	}
	for _, c := range checks {
		if !strings.Contains(output, c) {
			t.Fatalf("expected summary to contain %q, got:\n%s", c, output)
		}
	}
}

func TestReplayIterationWithDefaultScenario(t *testing.T) {
	sc, err := scenario.Parse([]byte(defaultScenario))
	if err != nil {
		t.Fatalf("parse default scenario: %v", err)
	}
	collector := metrics.NewCollector(true)
	logger := util.NewLoggerWithWriter(util.LevelError, io.Discard)
	res, err := replayIteration(context.Background(), sc, logger, collector)
	if err != nil {
		t.Fatalf("replayIteration returned error: %v", err)
	}
	if len(res.steps) != len(sc.Steps) {
		t.Fatalf("expected %d step timings, got %d", len(sc.Steps), len(res.steps))
	}
	if res.deliveries == 0 {
		t.Fatalf("expected the synthetic stream to deliver commands")
	}
	if got := collector.Snapshot().Totals.Signals; got != uint64(len(sc.Steps)) {
		t.Fatalf("Signals = %d, want %d", got, len(sc.Steps))
	}
}
