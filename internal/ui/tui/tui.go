package tui

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hyprpal/playpal/internal/config"
	"github.com/hyprpal/playpal/internal/control/client"
	"github.com/hyprpal/playpal/internal/dispatch"
	"github.com/hyprpal/playpal/internal/state"
)

const (
	defaultRefresh = 500 * time.Millisecond
	urlWidth       = 48
	recentRows     = 12
)

// Source is the subset of the control client the dashboard polls.
type Source interface {
	Status(ctx context.Context) (client.DaemonStatus, error)
	History(ctx context.Context) (client.History, error)
	Metrics(ctx context.Context) (client.Metrics, error)
}

// Renderer periodically polls the daemon and renders a textual dashboard.
type Renderer struct {
	Source  Source
	Writer  io.Writer
	Refresh time.Duration
}

// New returns a renderer configured with sensible defaults.
func New(src Source, w io.Writer) *Renderer {
	return &Renderer{Source: src, Writer: w, Refresh: defaultRefresh}
}

// Run starts the render loop until the context is cancelled.
func (r *Renderer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.Writer == nil {
		r.Writer = os.Stdout
	}
	if r.Source == nil {
		return fmt.Errorf("tui renderer requires a control client")
	}

	refresh := r.Refresh
	if refresh <= 0 {
		refresh = defaultRefresh
	}

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	fmt.Fprint(r.Writer, "\033[?25l")
	defer fmt.Fprint(r.Writer, "\033[?25h")

	r.render(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.render(ctx)
		}
	}
}

func (r *Renderer) render(ctx context.Context) {
	var buf bytes.Buffer
	buf.WriteString("\033[H\033[2J")
	buf.WriteString("playpal inspector (Ctrl+C to exit)\n")
	buf.WriteString(time.Now().Format(time.RFC1123))
	buf.WriteString("\n\n")
	buf.WriteString(r.Frame(ctx))
	fmt.Fprint(r.Writer, buf.String())
}

// Frame renders one dashboard body without terminal control sequences.
func (r *Renderer) Frame(ctx context.Context) string {
	status, err := r.Source.Status(ctx)
	if err != nil {
		return fmt.Sprintf("error: %v\n", err)
	}
	var b strings.Builder
	b.WriteString(renderSession(status))
	b.WriteString(renderOptions(status.Options))
	b.WriteString(renderPatterns(status.Patterns))

	history, err := r.Source.History(ctx)
	if err != nil {
		b.WriteString(fmt.Sprintf("history unavailable: %v\n", err))
	} else {
		b.WriteString(renderDispatches(history.Dispatches))
	}

	snap, err := r.Source.Metrics(ctx)
	if err == nil && snap.Enabled {
		t := snap.Totals
		b.WriteString(fmt.Sprintf("Signals %d (%d failed)  queued %d  suppressed %d  dropped %d  delivered %d  errors %d\n",
			t.Signals, t.SignalErrors, t.Queued, t.Suppressed, t.Dropped, t.Delivered, t.DeliveryErrors))
	}
	return b.String()
}

func renderSession(status client.DaemonStatus) string {
	var b strings.Builder
	tab := string(status.Session.LastActiveTab)
	if status.Session.LastActiveTab == state.NoTab {
		tab = "(none)"
	}
	window := "(none)"
	if status.Session.LastActiveWindow != state.WindowNone {
		window = fmt.Sprintf("%d", status.Session.LastActiveWindow)
	}
	b.WriteString(fmt.Sprintf("Last tab: %s  window: %s  power: %s\n", tab, window, status.Session.Power))
	if status.Disabled {
		b.WriteString("Extension DISABLED\n")
	}
	b.WriteByte('\n')
	return b.String()
}

func renderOptions(opts config.Options) string {
	flags := []struct {
		name string
		on   bool
	}{
		{config.KeyAutoPause, opts.AutoPause},
		{config.KeyAutoResume, opts.AutoResume},
		{config.KeyScrollPause, opts.ScrollPause},
		{config.KeyLockPause, opts.LockPause},
		{config.KeyLockResume, opts.LockResume},
		{config.KeyFocusPause, opts.FocusPause},
		{config.KeyFocusResume, opts.FocusResume},
		{config.KeyCursorTracking, opts.CursorTracking},
		{config.KeyDebugMode, opts.DebugMode},
	}
	var on []string
	for _, f := range flags {
		if f.on {
			on = append(on, f.name)
		}
	}
	if len(on) == 0 {
		return "Options: (all off)\n\n"
	}
	return "Options: " + strings.Join(on, ", ") + "\n\n"
}

func renderPatterns(patterns []config.Pattern) string {
	var b strings.Builder
	b.WriteString("Patterns:\n")
	if len(patterns) == 0 {
		b.WriteString("  (none)\n\n")
		return b.String()
	}
	for _, p := range patterns {
		mark := " "
		if p.Enabled {
			mark = "*"
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", mark, p.Pattern))
	}
	b.WriteByte('\n')
	return b.String()
}

func renderDispatches(records []dispatch.Record) string {
	var b strings.Builder
	b.WriteString("Recent dispatches:\n")
	if len(records) == 0 {
		b.WriteString("  (none)\n\n")
		return b.String()
	}
	if len(records) > recentRows {
		records = records[len(records)-recentRows:]
	}
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Time\tSignal\tTab\tCommand\tStatus\tURL")
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		signal := rec.Signal
		if signal == "" {
			signal = "-"
		}
		status := string(rec.Status)
		if rec.Reason != "" {
			status += " (" + rec.Reason + ")"
		}
		if rec.Error != "" {
			status += ": " + rec.Error
		}
		url := rec.URL
		if url == "" {
			url = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", rec.Timestamp.Format("15:04:05.000"), signal, rec.Tab, rec.Command, status, truncate(url, urlWidth))
	}
	tw.Flush()
	b.WriteByte('\n')
	return b.String()
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
