// Package scenario replays scripted browser sessions against the engine
// using an in-memory host.
package scenario

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gopkg.in/yaml.v3"

	"github.com/hyprpal/playpal/internal/browser"
	"github.com/hyprpal/playpal/internal/config"
	"github.com/hyprpal/playpal/internal/dispatch"
	"github.com/hyprpal/playpal/internal/engine"
	"github.com/hyprpal/playpal/internal/ipc"
	"github.com/hyprpal/playpal/internal/metrics"
	"github.com/hyprpal/playpal/internal/state"
	"github.com/hyprpal/playpal/internal/util"
)

// Scenario is a scripted browser session.
type Scenario struct {
	Name     string         `yaml:"name"`
	Patterns []string       `yaml:"patterns"`
	Settings map[string]any `yaml:"settings"`
	Tabs     []state.Tab    `yaml:"tabs"`
	Focus    *int           `yaml:"focus"`
	Steps    []Step         `yaml:"steps"`
}

// Step changes the host, then delivers one signal. Expect lists the
// deliveries the step must produce as "command tab" pairs.
type Step struct {
	Host   HostChange     `yaml:"host"`
	Set    map[string]any `yaml:"set"`
	Signal *ipc.Event     `yaml:"signal"`
	Expect []string       `yaml:"expect"`
}

// HostChange mutates the in-memory browser before a signal fires.
type HostChange struct {
	Upsert   []state.Tab   `yaml:"upsert"`
	Activate state.TabID   `yaml:"activate"`
	Remove   []state.TabID `yaml:"remove"`
	Focus    *int          `yaml:"focus"`
}

// Load reads a scenario document.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	for i, step := range sc.Steps {
		if step.Signal == nil && len(step.Set) == 0 {
			return nil, fmt.Errorf("steps[%d]: needs a signal or set", i)
		}
		if step.Signal != nil {
			if err := step.Signal.Validate(); err != nil {
				return nil, fmt.Errorf("steps[%d]: %w", i, err)
			}
		}
	}
	return &sc, nil
}

// Records are diffed by position, so the ring must outlast a scenario.
const historyLimit = 1 << 16

// Player drives one run of a scenario.
type Player struct {
	host   *browser.MemoryHost
	store  *config.MemoryStore
	engine *engine.Engine
	disp   *dispatch.Dispatcher
	seen   int
	hist   int
	seq    int
}

// NewPlayer builds a fresh host, settings cache, dispatcher and engine for
// sc and seeds the session from the focused window. Collector may be nil.
func NewPlayer(ctx context.Context, sc *Scenario, logger *util.Logger, collector *metrics.Collector) (*Player, error) {
	store := config.NewMemoryStore(sc.Settings)
	cache := config.NewCache(store, sc.Patterns, logger.Named("settings"))
	if err := cache.Load(ctx); err != nil {
		return nil, err
	}
	host := browser.NewMemoryHost(sc.Tabs...)
	if sc.Focus != nil {
		host.Focus(state.WindowID(*sc.Focus))
	}
	disp := dispatch.New(host, cache, logger.Named("dispatch"), dispatch.Options{
		HistoryLimit: historyLimit,
		Metrics:      collector,
		Debug:        func() bool { return cache.Options().DebugMode },
	})

	p := &Player{host: host, store: store, disp: disp}
	p.engine = engine.New(cache, host, disp, logger, engine.Options{
		Injector: host,
		Metrics:  collector,
		NewID: func() string {
			p.seq++
			return fmt.Sprintf("step-%d", p.seq)
		},
	})
	if err := p.engine.Prime(ctx); err != nil {
		disp.Close()
		return nil, fmt.Errorf("prime session: %w", err)
	}
	return p, nil
}

// Close stops the player's dispatcher.
func (p *Player) Close() {
	p.disp.Close()
}

// Deliveries returns how many messages reached tabs so far.
func (p *Player) Deliveries() int {
	return len(p.host.Deliveries())
}

// Step runs step n and writes its report to out. It fails when the step's
// deliveries differ from its expectation.
func (p *Player) Step(ctx context.Context, n int, step Step, out io.Writer) error {
	if err := p.applyHost(step.Host); err != nil {
		return fmt.Errorf("step %d: %w", n, err)
	}
	if len(step.Set) > 0 {
		if err := p.store.Set(ctx, step.Set); err != nil {
			return fmt.Errorf("step %d: %w", n, err)
		}
		fmt.Fprintf(out, "step %d: set %s\n", n, formatValues(step.Set))
	}
	if step.Signal != nil {
		fmt.Fprintf(out, "step %d: %s\n", n, formatSignal(*step.Signal))
		p.engine.Handle(ctx, *step.Signal)
	}
	// The daemon feeds store notifications back as storage-changed signals.
	for _, changes := range drain(p.store) {
		p.engine.Handle(ctx, ipc.Event{Kind: ipc.KindStorageChanged, Changes: changes})
	}
	p.disp.Flush()

	got := p.newDeliveries()
	for _, line := range got {
		fmt.Fprintf(out, "  -> %s\n", line)
	}
	for _, rec := range p.newRecords() {
		switch rec.Status {
		case dispatch.StatusSuppressed, dispatch.StatusDropped, dispatch.StatusFailed:
			fmt.Fprintf(out, "  xx %s %s: %s %s%s\n", rec.Command, rec.Tab, rec.Status, rec.Reason, rec.Error)
		}
	}
	if step.Expect != nil {
		if diff := cmp.Diff(step.Expect, got, cmpopts.EquateEmpty()); diff != "" {
			return fmt.Errorf("step %d: deliveries differ (-want +got):\n%s", n, diff)
		}
	}
	return nil
}

// Play runs every step of sc on a fresh player and writes what each step
// delivered. It stops at the first failing step.
func Play(ctx context.Context, sc *Scenario, out io.Writer, logger *util.Logger) error {
	p, err := NewPlayer(ctx, sc, logger, nil)
	if err != nil {
		return err
	}
	defer p.Close()
	if sc.Name != "" {
		fmt.Fprintf(out, "scenario: %s\n", sc.Name)
	}
	for i, step := range sc.Steps {
		if err := p.Step(ctx, i+1, step, out); err != nil {
			return err
		}
	}
	return nil
}

func (p *Player) applyHost(change HostChange) error {
	for _, tab := range change.Upsert {
		p.host.Upsert(tab)
	}
	if change.Activate != state.NoTab {
		if err := p.host.Activate(change.Activate); err != nil {
			return err
		}
	}
	for _, id := range change.Remove {
		p.host.Remove(id)
	}
	if change.Focus != nil {
		p.host.Focus(state.WindowID(*change.Focus))
	}
	return nil
}

func (p *Player) newDeliveries() []string {
	all := p.host.Deliveries()
	out := make([]string, 0, len(all)-p.seen)
	for _, d := range all[p.seen:] {
		out = append(out, fmt.Sprintf("%s %s", d.Command, d.Tab))
	}
	p.seen = len(all)
	return out
}

func (p *Player) newRecords() []dispatch.Record {
	all := p.engine.DispatchHistory()
	out := all[p.hist:]
	p.hist = len(all)
	return out
}

func drain(store *config.MemoryStore) []config.Changes {
	var out []config.Changes
	for {
		select {
		case c := <-store.Changes():
			out = append(out, c)
		default:
			return out
		}
	}
}

func formatSignal(ev ipc.Event) string {
	parts := []string{string(ev.Kind)}
	if ev.Tab != state.NoTab {
		parts = append(parts, "tab="+string(ev.Tab))
	}
	if ev.Window != nil {
		parts = append(parts, fmt.Sprintf("window=%d", *ev.Window))
	}
	if ev.Status != "" {
		parts = append(parts, "status="+ev.Status)
	}
	if ev.Command != "" {
		parts = append(parts, "command="+ev.Command)
	}
	if ev.State != "" {
		parts = append(parts, "state="+ev.State)
	}
	if ev.Message != nil {
		parts = append(parts, "message="+formatMessage(*ev.Message))
	}
	return strings.Join(parts, " ")
}

func formatMessage(msg ipc.TabMessage) string {
	var parts []string
	add := func(name string, v *bool) {
		if v != nil {
			parts = append(parts, fmt.Sprintf("%s:%t", name, *v))
		}
	}
	add("minimized", msg.Minimized)
	add("visible", msg.Visible)
	add("cursorNearEdge", msg.CursorNearEdge)
	return "{" + strings.Join(parts, ",") + "}"
}

func formatValues(values map[string]any) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, values[k]))
	}
	return strings.Join(parts, " ")
}
