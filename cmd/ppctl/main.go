package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/hyprpal/playpal/internal/config"
	"github.com/hyprpal/playpal/internal/control/client"
	"github.com/hyprpal/playpal/internal/ipc"
	"github.com/hyprpal/playpal/internal/state"
	"github.com/hyprpal/playpal/internal/ui/tui"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	fs := flag.NewFlagSet("ppctl", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	socket := fs.String("socket", "", "path to playpal control socket")
	signalSocket := fs.String("signal-socket", "", "path to playpal signal socket")
	timeout := fs.Duration("timeout", 3*time.Second, "control request timeout")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <command> [args]\n", fs.Name())
		fmt.Fprintln(fs.Output())
		fmt.Fprintln(fs.Output(), "Commands:")
		fmt.Fprintln(fs.Output(), "  status\t\t\tshow session state and effective settings")
		fmt.Fprintln(fs.Output(), "  reload\t\t\ttrigger a live config reload")
		fmt.Fprintln(fs.Output(), "  command <name>\tinvoke toggle-extension|toggle-play|toggle_mute")
		fmt.Fprintln(fs.Output(), "  set <key> <bool>\tstore a setting or pattern flag")
		fmt.Fprintln(fs.Output(), "  history\t\tlist recent signals and dispatches")
		fmt.Fprintln(fs.Output(), "  metrics\t\tshow signal and dispatch counters")
		fmt.Fprintln(fs.Output(), "  signal <kind> [flags]\tsend a raw signal to the daemon")
		fmt.Fprintln(fs.Output(), "  tui\t\t\tlaunch the interactive TUI")
		fmt.Fprintln(fs.Output(), "  check --config <path>\tvalidate a configuration file")
		fmt.Fprintln(fs.Output())
		fmt.Fprintln(fs.Output(), "Flags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return fmt.Errorf("missing subcommand")
	}

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	switch args[0] {
	case "check":
		return runCheck(args[1:], os.Stdout, os.Stderr)
	case "signal":
		return runSignal(ctx, *signalSocket, args[1:], os.Stdout)
	}

	cli, err := client.New(*socket)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	switch args[0] {
	case "status":
		status, err := cli.Status(ctx)
		if err != nil {
			return err
		}
		printStatus(os.Stdout, status)
		return nil
	case "reload":
		if err := cli.Reload(ctx); err != nil {
			return err
		}
		fmt.Println("Reload requested")
		return nil
	case "command":
		if len(args) < 2 {
			return fmt.Errorf("command requires a name")
		}
		if err := cli.Command(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("Invoked %s\n", args[1])
		return nil
	case "set":
		key, value, err := parseSetting(args[1:])
		if err != nil {
			return err
		}
		if err := cli.Set(ctx, key, value); err != nil {
			return err
		}
		fmt.Printf("Stored %s=%t\n", key, value)
		return nil
	case "history":
		history, err := cli.History(ctx)
		if err != nil {
			return err
		}
		printHistory(os.Stdout, history)
		return nil
	case "metrics":
		snap, err := cli.Metrics(ctx)
		if err != nil {
			return err
		}
		printMetrics(os.Stdout, snap)
		return nil
	case "tui":
		return runTUI(cli)
	default:
		fs.Usage()
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func runCheck(args []string, stdout io.Writer, stderr io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *configPath == "" {
		fs.Usage()
		return fmt.Errorf("check requires --config <path>")
	}

	lintErrs, err := config.LintFile(*configPath)
	if err != nil {
		return err
	}
	if len(lintErrs) == 0 {
		fmt.Fprintln(stdout, "Configuration OK")
		return nil
	}

	fmt.Fprintf(stderr, "Configuration has %d issue(s):\n", len(lintErrs))
	for _, lintErr := range lintErrs {
		fmt.Fprintf(stderr, "- %s\n", lintErr.Error())
	}
	return fmt.Errorf("configuration validation failed")
}

func parseSetting(args []string) (string, bool, error) {
	if len(args) != 2 {
		return "", false, fmt.Errorf("set requires <key> <true|false>")
	}
	value, err := strconv.ParseBool(args[1])
	if err != nil {
		return "", false, fmt.Errorf("invalid value %q: %w", args[1], err)
	}
	return args[0], value, nil
}

// buildSignal turns `signal <kind> [flags]` arguments into an event.
func buildSignal(args []string) (ipc.Event, error) {
	if len(args) == 0 {
		return ipc.Event{}, fmt.Errorf("signal requires a kind")
	}
	ev := ipc.Event{Kind: ipc.Kind(args[0])}
	if !ev.Kind.Valid() {
		return ipc.Event{}, fmt.Errorf("unknown signal kind %q", args[0])
	}

	fs := flag.NewFlagSet("signal "+args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	tab := fs.String("tab", "", "tab id")
	window := fs.String("window", "", "window id (-1 for none)")
	status := fs.String("status", "", "tab load status")
	active := fs.String("active", "", "tab active flag (true|false)")
	url := fs.String("url", "", "tab address")
	command := fs.String("command", "", "shortcut command name")
	power := fs.String("state", "", "power state (active|idle|locked)")
	minimized := fs.String("minimized", "", "message: minimized flag")
	visible := fs.String("visible", "", "message: visible flag")
	nearEdge := fs.String("near-edge", "", "message: cursor near edge flag")
	seq := fs.Uint64("seq", 0, "message sequence number")
	if err := fs.Parse(args[1:]); err != nil {
		return ipc.Event{}, err
	}

	ev.Tab = state.TabID(*tab)
	ev.Status = *status
	ev.URL = *url
	ev.Command = *command
	ev.State = *power
	ev.Seq = *seq
	if *window != "" {
		id, err := strconv.Atoi(*window)
		if err != nil {
			return ipc.Event{}, fmt.Errorf("invalid window %q: %w", *window, err)
		}
		w := state.WindowID(id)
		ev.Window = &w
	}
	var err error
	if ev.Active, err = optionalBool("active", *active); err != nil {
		return ipc.Event{}, err
	}
	if ev.Kind == ipc.KindRuntimeMessage {
		msg := ipc.TabMessage{}
		if msg.Minimized, err = optionalBool("minimized", *minimized); err != nil {
			return ipc.Event{}, err
		}
		if msg.Visible, err = optionalBool("visible", *visible); err != nil {
			return ipc.Event{}, err
		}
		if msg.CursorNearEdge, err = optionalBool("near-edge", *nearEdge); err != nil {
			return ipc.Event{}, err
		}
		ev.Message = &msg
	}
	if err := ev.Validate(); err != nil {
		return ipc.Event{}, err
	}
	return ev, nil
}

func optionalBool(name, raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid -%s %q: %w", name, raw, err)
	}
	return &v, nil
}

func runSignal(ctx context.Context, path string, args []string, stdout io.Writer) error {
	ev, err := buildSignal(args)
	if err != nil {
		return err
	}
	if path == "" {
		if path, err = ipc.DefaultSocketPath(); err != nil {
			return err
		}
	}
	ack, err := ipc.Send(ctx, path, ev)
	if err != nil {
		return err
	}
	if ack == nil {
		fmt.Fprintf(stdout, "Sent %s\n", ev.Kind)
		return nil
	}
	fmt.Fprintf(stdout, "Ack %d: %v\n", ack.Seq, ack.Response)
	return nil
}

func printStatus(w io.Writer, status client.DaemonStatus) {
	tab := string(status.Session.LastActiveTab)
	if tab == "" {
		tab = "(none)"
	}
	fmt.Fprintf(w, "Instance: %s (up since %s)\n", status.Instance, status.Started.Format(time.RFC3339))
	fmt.Fprintf(w, "Last active tab: %s\n", tab)
	fmt.Fprintf(w, "Last active window: %d\n", status.Session.LastActiveWindow)
	fmt.Fprintf(w, "Power: %s\n", status.Session.Power)
	fmt.Fprintf(w, "Disabled: %t\n", status.Disabled)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Setting\tValue")
	o := status.Options
	for _, row := range []struct {
		key string
		on  bool
	}{
		{config.KeyAutoPause, o.AutoPause},
		{config.KeyAutoResume, o.AutoResume},
		{config.KeyScrollPause, o.ScrollPause},
		{config.KeyLockPause, o.LockPause},
		{config.KeyLockResume, o.LockResume},
		{config.KeyFocusPause, o.FocusPause},
		{config.KeyFocusResume, o.FocusResume},
		{config.KeyCursorTracking, o.CursorTracking},
		{config.KeyDebugMode, o.DebugMode},
	} {
		fmt.Fprintf(tw, "%s\t%t\n", row.key, row.on)
	}
	for _, p := range status.Patterns {
		fmt.Fprintf(tw, "%s\t%t\n", p.Pattern, p.Enabled)
	}
	tw.Flush()
}

func printHistory(w io.Writer, history client.History) {
	if len(history.Signals) == 0 && len(history.Dispatches) == 0 {
		fmt.Fprintln(w, "No history recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Signal\tKind\tTab\tDuration\tError")
	for _, rec := range history.Signals {
		errText := rec.Error
		if errText == "" {
			errText = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", rec.ID, rec.Kind, rec.Tab, rec.Duration, errText)
	}
	tw.Flush()
	fmt.Fprintln(w)

	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Signal\tTab\tCommand\tStatus\tDetail")
	for _, rec := range history.Dispatches {
		detail := rec.Reason
		if rec.Error != "" {
			detail = rec.Error
		}
		if detail == "" {
			detail = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", rec.TraceID, rec.Tab, rec.Command, rec.Status, detail)
	}
	tw.Flush()
}

func printMetrics(w io.Writer, snap client.Metrics) {
	if !snap.Enabled {
		fmt.Fprintln(w, "Telemetry disabled (set telemetry.enabled: true)")
		return
	}
	t := snap.Totals
	fmt.Fprintf(w, "Signals: %d (%d failed)\n", t.Signals, t.SignalErrors)
	fmt.Fprintf(w, "Dispatch: queued %d, suppressed %d, dropped %d, delivered %d, errors %d\n",
		t.Queued, t.Suppressed, t.Dropped, t.Delivered, t.DeliveryErrors)
	if len(snap.Commands) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Command\tQueued\tSuppressed\tDropped\tDelivered\tErrors")
	for _, c := range snap.Commands {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", c.Command, c.Queued, c.Suppressed, c.Dropped, c.Delivered, c.DeliveryErrors)
	}
	tw.Flush()
}

func runTUI(cli *client.Client) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	renderer := tui.New(cli, os.Stdout)
	if err := renderer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
