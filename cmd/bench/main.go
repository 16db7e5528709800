package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hyprpal/playpal/internal/metrics"
	"github.com/hyprpal/playpal/internal/scenario"
	"github.com/hyprpal/playpal/internal/util"
)

type benchLatencyStats struct {
	Min    float64 `json:"minMs"`
	Mean   float64 `json:"meanMs"`
	Median float64 `json:"medianMs"`
	P95    float64 `json:"p95Ms"`
	Max    float64 `json:"maxMs"`
}

type benchAllocationStats struct {
	Total          uint64  `json:"totalAllocations"`
	PerStep        float64 `json:"allocationsPerStep"`
	BytesTotal     uint64  `json:"bytesTotal"`
	BytesPerStep   float64 `json:"bytesPerStep"`
	HeapAllocDelta int64   `json:"heapAllocDeltaBytes"`
}

type benchDeliveryStats struct {
	Total        int     `json:"total"`
	PerIteration float64 `json:"perIteration"`
	PerStep      float64 `json:"perStep"`
}

type benchSummary struct {
	Scenario          string               `json:"scenario"`
	Iterations        int                  `json:"iterations"`
	StepsPerIteration int                  `json:"stepsPerIteration"`
	TotalSteps        int                  `json:"totalSteps"`
	WarmupIterations  int                  `json:"warmupIterations"`
	Deliveries        benchDeliveryStats   `json:"deliveries"`
	Outcomes          metrics.Totals       `json:"outcomes"`
	Latency           benchLatencyStats    `json:"latency"`
	IterationDuration benchLatencyStats    `json:"iterationDuration"`
	Allocations       benchAllocationStats `json:"allocations"`
	TotalDurationMs   float64              `json:"totalDurationMs"`
	StepsPerSecond    float64              `json:"stepsPerSecond"`
}

type benchReport struct {
	Summary     benchSummary `json:"summary"`
	DurationsMs []float64    `json:"durationsMs"`
}

type iterationResult struct {
	duration   time.Duration
	steps      []time.Duration
	deliveries int
}

// defaultScenario cycles focus and activation across two windows.
const defaultScenario = `name: synthetic tab churn
patterns:
  - https://www.youtube.com/*
settings:
  focuspause: true
  focusresume: true
tabs:
  - {id: A, windowId: 1, url: "https://www.youtube.com/watch?v=a", active: true}
  - {id: B, windowId: 1, url: "https://www.youtube.com/watch?v=b", active: false}
  - {id: C, windowId: 2, url: "https://www.youtube.com/watch?v=c", active: true}
steps:
  - host: {activate: B}
    signal: {kind: tab-activated, tab: B, window: 1}
  - host: {focus: 2}
    signal: {kind: window-focus-changed, window: 2}
  - signal: {kind: runtime-message, tab: C, message: {visible: false}}
  - host: {focus: 1}
    signal: {kind: window-focus-changed, window: 1}
  - host: {activate: A}
    signal: {kind: tab-activated, tab: A, window: 1}
  - signal: {kind: power-state-changed, state: locked}
  - signal: {kind: power-state-changed, state: active}
  - signal: {kind: command-invoked, command: toggle-play}
`

func main() {
	scenarioPath := flag.String("scenario", "", "path to a replay scenario (defaults to a built-in synthetic stream)")
	iterations := flag.Int("iterations", 10, "number of times to replay the scenario")
	warmup := flag.Int("warmup", 0, "number of warm-up iterations to run before timing")
	cpuProfile := flag.String("cpu-profile", "", "write CPU profile to file")
	memProfile := flag.String("mem-profile", "", "write heap profile to file")
	logLevel := flag.String("log-level", "error", "log level (trace|debug|info|warn|error)")
	outputPath := flag.String("output", "-", "write JSON report to file ('-' for stdout)")
	humanSummary := flag.Bool("human", false, "print a tabular summary alongside the JSON output")
	flag.Parse()

	if *iterations <= 0 {
		fmt.Fprintln(os.Stderr, "iterations must be positive")
		os.Exit(1)
	}
	if *warmup < 0 {
		fmt.Fprintln(os.Stderr, "warmup must be zero or positive")
		os.Exit(1)
	}

	logger := util.NewLogger(util.ParseLogLevel(*logLevel))

	var (
		sc  *scenario.Scenario
		err error
	)
	if *scenarioPath != "" {
		sc, err = scenario.Load(*scenarioPath)
	} else {
		sc, err = scenario.Parse([]byte(defaultScenario))
	}
	if err != nil {
		exitErr(fmt.Errorf("load scenario: %w", err))
	}
	if len(sc.Steps) == 0 {
		exitErr(errors.New("scenario contains no steps"))
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			exitErr(fmt.Errorf("create cpu profile: %w", err))
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			exitErr(fmt.Errorf("start cpu profile: %w", err))
		}
		defer pprof.StopCPUProfile()
	}

	ctx := context.Background()
	for i := 0; i < *warmup; i++ {
		if _, err := replayIteration(ctx, sc, logger, nil); err != nil {
			exitErr(fmt.Errorf("warmup iteration %d: %w", i+1, err))
		}
	}

	collector := metrics.NewCollector(true)
	runtime.GC()
	var startMem runtime.MemStats
	runtime.ReadMemStats(&startMem)

	results := make([]iterationResult, 0, *iterations)
	for i := 0; i < *iterations; i++ {
		res, err := replayIteration(ctx, sc, logger, collector)
		if err != nil {
			exitErr(fmt.Errorf("iteration %d: %w", i+1, err))
		}
		results = append(results, res)
	}

	runtime.GC()
	var endMem runtime.MemStats
	runtime.ReadMemStats(&endMem)

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			exitErr(fmt.Errorf("create mem profile: %w", err))
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			exitErr(fmt.Errorf("write heap profile: %w", err))
		}
	}

	report := buildReport(sc, *warmup, results, collector.Snapshot().Totals, startMem, endMem)
	if err := writeReport(report, *outputPath); err != nil {
		exitErr(fmt.Errorf("encode report: %w", err))
	}
	if *humanSummary {
		if err := printHumanSummary(report.Summary, os.Stdout); err != nil {
			exitErr(fmt.Errorf("print human summary: %w", err))
		}
	}
}

// replayIteration plays every step on a fresh player, timing each step from
// signal to flushed deliveries.
func replayIteration(ctx context.Context, sc *scenario.Scenario, logger *util.Logger, collector *metrics.Collector) (iterationResult, error) {
	p, err := scenario.NewPlayer(ctx, sc, logger, collector)
	if err != nil {
		return iterationResult{}, err
	}
	defer p.Close()

	res := iterationResult{steps: make([]time.Duration, 0, len(sc.Steps))}
	start := time.Now()
	for i, step := range sc.Steps {
		stepStart := time.Now()
		if err := p.Step(ctx, i+1, step, io.Discard); err != nil {
			return iterationResult{}, err
		}
		res.steps = append(res.steps, time.Since(stepStart))
	}
	res.duration = time.Since(start)
	res.deliveries = p.Deliveries()
	return res, nil
}

func buildReport(sc *scenario.Scenario, warmup int, results []iterationResult, outcomes metrics.Totals, start, end runtime.MemStats) benchReport {
	iterations := len(results)
	totalSteps := len(sc.Steps) * iterations

	var (
		durations          []time.Duration
		iterationDurations []time.Duration
		deliveries         int
	)
	for _, res := range results {
		durations = append(durations, res.steps...)
		iterationDurations = append(iterationDurations, res.duration)
		deliveries += res.deliveries
	}
	latencyStats, totalStepDuration := buildLatencyStats(durations)
	iterationStats, _ := buildLatencyStats(iterationDurations)

	allocs := end.Mallocs - start.Mallocs
	bytesAllocated := end.TotalAlloc - start.TotalAlloc

	durationsMs := make([]float64, len(durations))
	for i, d := range durations {
		durationsMs[i] = toMillis(d)
	}

	name := sc.Name
	if name == "" {
		name = "(unnamed)"
	}
	summary := benchSummary{
		Scenario:          name,
		Iterations:        iterations,
		WarmupIterations:  warmup,
		StepsPerIteration: len(sc.Steps),
		TotalSteps:        totalSteps,
		Deliveries: benchDeliveryStats{
			Total:        deliveries,
			PerIteration: safeDivide(deliveries, iterations),
			PerStep:      safeDivide(deliveries, totalSteps),
		},
		Outcomes:          outcomes,
		Latency:           latencyStats,
		IterationDuration: iterationStats,
		Allocations: benchAllocationStats{
			Total:          allocs,
			PerStep:        perStep(float64(allocs), totalSteps),
			BytesTotal:     bytesAllocated,
			BytesPerStep:   perStep(float64(bytesAllocated), totalSteps),
			HeapAllocDelta: int64(end.HeapAlloc) - int64(start.HeapAlloc),
		},
		TotalDurationMs: toMillis(totalStepDuration),
		StepsPerSecond:  stepsPerSecond(totalStepDuration, totalSteps),
	}
	return benchReport{Summary: summary, DurationsMs: durationsMs}
}

func buildLatencyStats(durations []time.Duration) (benchLatencyStats, time.Duration) {
	stats := benchLatencyStats{}
	if len(durations) == 0 {
		return stats, 0
	}
	total := time.Duration(0)
	for _, d := range durations {
		total += d
	}
	mean := total / time.Duration(len(durations))
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	stats.Min = toMillis(sorted[0])
	stats.Mean = toMillis(mean)
	stats.Median = toMillis(percentile(sorted, 0.50))
	stats.P95 = toMillis(percentile(sorted, 0.95))
	stats.Max = toMillis(sorted[len(sorted)-1])
	return stats, total
}

func safeDivide(total int, count int) float64 {
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

func perStep(total float64, steps int) float64 {
	if steps == 0 {
		return total
	}
	return total / float64(steps)
}

func writeReport(report benchReport, outputPath string) error {
	var w io.Writer
	switch strings.TrimSpace(outputPath) {
	case "", "-":
		w = os.Stdout
	default:
		dir := filepath.Dir(outputPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create report dir: %w", err)
			}
		}
		out, err := os.Create(outputPath)
		if err != nil {
			return err
		}
		defer out.Close()
		w = out
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func printHumanSummary(summary benchSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Scenario:\t%s\n", summary.Scenario)
	fmt.Fprintf(tw, "Iterations:\t%d (warmup %d)\n", summary.Iterations, summary.WarmupIterations)
	fmt.Fprintf(tw, "Steps:\t%d total (%d / iteration)\n", summary.TotalSteps, summary.StepsPerIteration)
	fmt.Fprintf(tw, "Deliveries:\t%d (%.2f / iter, %.2f / step)\n", summary.Deliveries.Total, summary.Deliveries.PerIteration, summary.Deliveries.PerStep)
	o := summary.Outcomes
	fmt.Fprintf(tw, "Dispatch outcomes:\tqueued %d | suppressed %d | dropped %d | delivered %d | errors %d\n", o.Queued, o.Suppressed, o.Dropped, o.Delivered, o.DeliveryErrors)
	latency := summary.Latency
	fmt.Fprintf(tw, "Step latency (ms):\tmin %.3f | mean %.3f | median %.3f | p95 %.3f | max %.3f\n", latency.Min, latency.Mean, latency.Median, latency.P95, latency.Max)
	it := summary.IterationDuration
	fmt.Fprintf(tw, "Iteration duration (ms):\tmin %.3f | mean %.3f | median %.3f | p95 %.3f | max %.3f\n", it.Min, it.Mean, it.Median, it.P95, it.Max)
	allocs := summary.Allocations
	fmt.Fprintf(tw, "Allocations:\t%d total (%.2f / step)\n", allocs.Total, allocs.PerStep)
	fmt.Fprintf(tw, "Bytes allocated:\t%s (%.2f / step)\n", formatBytesUnsigned(allocs.BytesTotal), allocs.BytesPerStep)
	fmt.Fprintf(tw, "Heap delta:\t%s\n", formatBytesSigned(allocs.HeapAllocDelta))
	fmt.Fprintf(tw, "Steps/sec:\t%.2f\n", summary.StepsPerSecond)
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

func formatBytesUnsigned(bytes uint64) string {
	const miB = 1024 * 1024
	if bytes == 0 {
		return "0 B (0.00 MiB)"
	}
	return fmt.Sprintf("%d B (%.2f MiB)", bytes, float64(bytes)/float64(miB))
}

func formatBytesSigned(delta int64) string {
	if delta == 0 {
		return "0 B (0.00 MiB)"
	}
	sign := ""
	if delta < 0 {
		sign = "-"
		delta = -delta
	}
	return sign + formatBytesUnsigned(uint64(delta))
}

func stepsPerSecond(total time.Duration, steps int) float64 {
	if total <= 0 || steps == 0 {
		return 0
	}
	return float64(steps) / total.Seconds()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(p*float64(len(sorted)-1) + 0.5)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
