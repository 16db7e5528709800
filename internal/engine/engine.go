package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hyprpal/playpal/internal/config"
	"github.com/hyprpal/playpal/internal/dispatch"
	"github.com/hyprpal/playpal/internal/ipc"
	"github.com/hyprpal/playpal/internal/metrics"
	"github.com/hyprpal/playpal/internal/state"
	"github.com/hyprpal/playpal/internal/util"
)

// Command names the host binds to user shortcuts.
const (
	CommandToggleExtension = "toggle-extension"
	CommandTogglePlay      = "toggle-play"
	CommandToggleMute      = "toggle_mute"
	// CommandToggleMuteAlias is the hyphenated spelling some hosts bind.
	CommandToggleMuteAlias = "toggle-mute"
)

// StatusComplete is the load status reported when a tab finished loading.
const StatusComplete = "complete"

// Injector loads the player agent into a tab.
type Injector interface {
	Inject(ctx context.Context, tab state.Tab) error
}

// Options carries optional collaborators.
type Options struct {
	Injector Injector
	Metrics  *metrics.Collector
	Session  *state.Session
	// NewID generates signal correlation ids.
	NewID func() string
}

// Engine decides which commands each host signal produces.
type Engine struct {
	session    *state.Session
	cache      *config.Cache
	tabs       state.TabSource
	dispatcher *dispatch.Dispatcher
	injector   Injector
	logger     *util.Logger
	metrics    *metrics.Collector
	signals    *signalLog
	newID      func() string
}

// New creates an engine. The dispatcher should share the cache as its policy.
func New(cache *config.Cache, tabs state.TabSource, dispatcher *dispatch.Dispatcher, logger *util.Logger, opts Options) *Engine {
	session := opts.Session
	if session == nil {
		session = state.NewSession()
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Engine{
		session:    session,
		cache:      cache,
		tabs:       tabs,
		dispatcher: dispatcher,
		injector:   opts.Injector,
		logger:     logger,
		metrics:    opts.Metrics,
		signals:    newSignalLog(0),
		newID:      newID,
	}
}

// Session returns the engine's session state.
func (e *Engine) Session() *state.Session {
	return e.session
}

// Cache returns the configuration cache.
func (e *Engine) Cache() *config.Cache {
	return e.cache
}

// DispatchHistory returns recent dispatch records.
func (e *Engine) DispatchHistory() []dispatch.Record {
	return e.dispatcher.History()
}

// Prime seeds the session from the host so signals arriving right after
// startup are not ignored as coming from an unfocused window.
func (e *Engine) Prime(ctx context.Context) error {
	tabs, err := e.tabs.CurrentWindowTabs(ctx)
	if err != nil {
		return fmt.Errorf("query current window: %w", err)
	}
	for _, tab := range tabs {
		if !tab.Active {
			continue
		}
		e.session.SetLastActiveWindow(tab.WindowID)
		e.session.SetLastActiveTab(tab.ID)
		e.debugf("primed session with tab %s in window %d", tab.ID, tab.WindowID)
		return nil
	}
	return nil
}

// TabActivated handles a tab becoming active inside a window.
func (e *Engine) TabActivated(ctx context.Context, id state.TabID, window state.WindowID) {
	if window != e.session.LastActiveWindow() {
		e.debugf("ignoring activation of tab %s in unfocused window %d", id, window)
		return
	}
	prev := e.session.LastActiveTab()
	if prev == id {
		return
	}
	opts := e.cache.Options()
	if opts.AutoPause && prev != state.NoTab {
		if tab, ok := e.lookup(ctx, prev); ok {
			e.debugf("tab changed, stopping tab %s", prev)
			e.dispatcher.Dispatch(ctx, tab, dispatch.CommandStop)
		}
	}
	if tab, ok := e.lookup(ctx, id); ok && opts.AutoResume {
		e.debugf("tab changed, resuming tab %s", id)
		e.dispatcher.Dispatch(ctx, tab, dispatch.CommandResume)
	}
	e.session.SetLastActiveTab(id)
}

// TabUpdate describes a tab-updated signal. Active and URL are filled from
// the host when absent.
type TabUpdate struct {
	Tab    state.TabID
	Status string
	Active *bool
	URL    string
}

// TabUpdated injects the agent into finished tabs whose address matches a
// known pattern and stops background tabs that finished loading.
func (e *Engine) TabUpdated(ctx context.Context, update TabUpdate) {
	if update.Status != StatusComplete {
		return
	}
	tab := &state.Tab{ID: update.Tab, WindowID: state.WindowNone, URL: update.URL}
	if update.Active == nil || update.URL == "" {
		resolved, ok := e.lookup(ctx, update.Tab)
		if !ok {
			return
		}
		tab = resolved
	} else {
		tab.Active = *update.Active
	}

	if e.injector != nil && e.cache.MatchesAny(tab.URL) {
		e.debugf("injecting agent into tab %s with url %s", tab.ID, tab.URL)
		if err := e.injector.Inject(ctx, *tab); err != nil {
			e.logger.Debugf("inject into tab %s: %v", tab.ID, err)
		}
	}
	if !tab.Active {
		e.debugf("background tab %s finished loading, stopping", tab.ID)
		e.dispatcher.Dispatch(ctx, tab, dispatch.CommandStop)
	}
}

// WindowFocusChanged handles focus moving to window, which may be
// state.WindowNone.
func (e *Engine) WindowFocusChanged(ctx context.Context, window state.WindowID) {
	prev := e.session.LastActiveWindow()
	if window == prev {
		return
	}
	opts := e.cache.Options()
	if opts.FocusPause && e.session.Power() != state.PowerLocked && prev != state.WindowNone {
		e.debugf("window changed, stopping tabs in window %d", prev)
		for _, tab := range e.windowTabs(ctx, prev) {
			e.dispatcher.Dispatch(ctx, &tab, dispatch.CommandStop)
		}
	}
	if opts.FocusResume && window != state.WindowNone {
		e.debugf("window changed, resuming tabs in window %d", window)
		for _, tab := range e.windowTabs(ctx, window) {
			if !tab.Active && opts.AutoPause {
				continue
			}
			e.dispatcher.Dispatch(ctx, &tab, dispatch.CommandResume)
		}
	}
	e.session.SetLastActiveWindow(window)
}

// Message handles a report from a tab's agent and returns the response to
// acknowledge it with. The response is returned even when the sender is
// unknown.
func (e *Engine) Message(ctx context.Context, sender state.TabID, msg ipc.TabMessage) map[string]any {
	ack := map[string]any{}
	if sender == state.NoTab {
		return ack
	}
	tab, ok := e.lookup(ctx, sender)
	if !ok {
		return ack
	}
	opts := e.cache.Options()

	if msg.Minimized != nil {
		if *msg.Minimized && opts.AutoPause {
			e.debugf("window minimized, stopping tab %s", tab.ID)
			e.dispatcher.Dispatch(ctx, tab, dispatch.CommandStop)
		} else if !*msg.Minimized && opts.AutoResume {
			e.debugf("window restored, resuming tab %s", tab.ID)
			e.dispatcher.Dispatch(ctx, tab, dispatch.CommandResume)
		}
	}
	if msg.Visible != nil && opts.ScrollPause {
		if *msg.Visible {
			e.debugf("player visible, resuming tab %s", tab.ID)
			e.dispatcher.Dispatch(ctx, tab, dispatch.CommandResume)
		} else {
			e.debugf("player scrolled out of view, stopping tab %s", tab.ID)
			e.dispatcher.Dispatch(ctx, tab, dispatch.CommandStop)
		}
	}
	if msg.CursorNearEdge != nil && e.cursorTracking(ctx) {
		if *msg.CursorNearEdge && opts.AutoPause {
			e.debugf("cursor near window edge, stopping tab %s", tab.ID)
			e.dispatcher.Dispatch(ctx, tab, dispatch.CommandStop)
		} else if !*msg.CursorNearEdge && opts.AutoResume {
			e.debugf("cursor back in window, resuming tab %s", tab.ID)
			e.dispatcher.Dispatch(ctx, tab, dispatch.CommandResume)
		}
	}
	return ack
}

// cursorTracking reads the option from the store rather than the cache so a
// value written moments ago is honoured.
func (e *Engine) cursorTracking(ctx context.Context) bool {
	values, err := e.cache.Store().Get(ctx, []string{config.KeyCursorTracking})
	if err != nil {
		e.logger.Debugf("read %s: %v", config.KeyCursorTracking, err)
		return false
	}
	enabled, _ := values[config.KeyCursorTracking].(bool)
	return enabled
}

// ErrUnknownCommand is returned by Command for names it does not handle.
var ErrUnknownCommand = errors.New("unknown command")

// Command handles a user shortcut.
func (e *Engine) Command(ctx context.Context, name string) error {
	switch name {
	case CommandToggleExtension:
		disabled, err := e.cache.ToggleDisabled(ctx)
		if err != nil {
			return fmt.Errorf("toggle extension: %w", err)
		}
		e.debugf("toggle extension command received, disabled=%t", disabled)
	case CommandTogglePlay:
		e.debugf("toggle play command received")
		e.broadcastCurrentWindow(ctx, dispatch.CommandToggle)
	case CommandToggleMute, CommandToggleMuteAlias:
		e.debugf("toggle mute command received")
		e.broadcastCurrentWindow(ctx, dispatch.CommandToggleMute)
	default:
		return fmt.Errorf("%w %q", ErrUnknownCommand, name)
	}
	return nil
}

func (e *Engine) broadcastCurrentWindow(ctx context.Context, cmd dispatch.Command) {
	tabs, err := e.tabs.CurrentWindowTabs(ctx)
	if err != nil {
		e.logger.Debugf("query current window: %v", err)
		return
	}
	for _, tab := range tabs {
		e.dispatcher.Dispatch(ctx, &tab, cmd)
	}
}

// PowerStateChanged records the new power state and stops or resumes the
// active tab of every window.
func (e *Engine) PowerStateChanged(ctx context.Context, power state.PowerState) {
	e.session.SetPower(power)
	opts := e.cache.Options()
	for _, tab := range e.activeTabs(ctx) {
		if power == state.PowerLocked {
			if opts.LockPause {
				e.debugf("screen locked, stopping tab %s", tab.ID)
				e.dispatcher.Dispatch(ctx, &tab, dispatch.CommandStop)
			}
			continue
		}
		if !opts.LockResume {
			continue
		}
		if !tab.Active && opts.AutoPause {
			continue
		}
		e.debugf("power state %s, resuming tab %s", power, tab.ID)
		e.dispatcher.Dispatch(ctx, &tab, dispatch.CommandResume)
	}
}

// StorageChanged applies persisted setting changes. Toggling disabled
// re-derives the cache and then resumes or stops every active tab.
func (e *Engine) StorageChanged(ctx context.Context, changes config.Changes) {
	keys := make([]string, 0, len(changes))
	for key := range changes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	disabledChanged := false
	for _, key := range keys {
		change := changes[key]
		e.debugf("setting %s changed from %v to %v", key, change.OldValue, change.NewValue)
		if key == config.KeyDisabled {
			disabledChanged = true
			continue
		}
		if err := e.cache.ApplyChange(ctx, key, change.NewValue); err != nil {
			e.logger.Warnf("apply setting %s: %v", key, err)
		}
	}
	if !disabledChanged {
		return
	}
	if err := e.cache.ApplyChange(ctx, config.KeyDisabled, changes[config.KeyDisabled].NewValue); err != nil {
		e.logger.Warnf("apply setting %s: %v", config.KeyDisabled, err)
		return
	}

	disabled := e.cache.Raw().Options.Disabled
	for _, tab := range e.activeTabs(ctx) {
		if disabled {
			// Suppressed by the dispatcher; kept so the decision shows up in
			// the dispatch history.
			e.dispatcher.Dispatch(ctx, &tab, dispatch.CommandStop)
			continue
		}
		e.debugf("extension enabled, resuming tab %s", tab.ID)
		e.dispatcher.Dispatch(ctx, &tab, dispatch.CommandResume)
	}
}

func (e *Engine) lookup(ctx context.Context, id state.TabID) (*state.Tab, bool) {
	tab, err := e.tabs.Tab(ctx, id)
	if err != nil {
		e.logger.Debugf("resolve tab %s: %v", id, err)
		return nil, false
	}
	return tab, true
}

func (e *Engine) windowTabs(ctx context.Context, window state.WindowID) []state.Tab {
	tabs, err := e.tabs.TabsInWindow(ctx, window)
	if err != nil {
		e.logger.Debugf("query window %d: %v", window, err)
		return nil
	}
	return tabs
}

func (e *Engine) activeTabs(ctx context.Context) []state.Tab {
	tabs, err := e.tabs.ActiveTabs(ctx)
	if err != nil {
		e.logger.Debugf("query active tabs: %v", err)
		return nil
	}
	return tabs
}

// debugf logs decisions. With debugMode on they are promoted to info so they
// show up without raising the log level.
func (e *Engine) debugf(format string, args ...any) {
	if e.logger == nil {
		return
	}
	if e.cache.Options().DebugMode {
		e.logger.Infof(format, args...)
		return
	}
	e.logger.Debugf(format, args...)
}

func (e *Engine) trace(event string, fields map[string]any) {
	if e.logger == nil || !e.logger.Enabled(util.LevelTrace) {
		return
	}
	e.logger.Tracef("%s %s", event, formatTraceFields(fields))
}

func formatTraceFields(fields map[string]any) string {
	if len(fields) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		val, err := json.Marshal(fields[k])
		if err != nil {
			b.WriteString(strconv.Quote(fmt.Sprintf("<marshal error: %v>", err)))
			continue
		}
		b.Write(val)
	}
	b.WriteByte('}')
	return b.String()
}
