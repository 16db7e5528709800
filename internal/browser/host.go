package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hyprpal/playpal/internal/config"
	"github.com/hyprpal/playpal/internal/dispatch"
	"github.com/hyprpal/playpal/internal/state"
	"github.com/hyprpal/playpal/internal/util"
)

// MessageSource tags messages posted to the player agent.
const MessageSource = "playpal"

const (
	visibleJS = `() => document.visibilityState === "visible"`
	focusJS   = `() => document.hasFocus()`
	postJS    = `(source, action) => window.postMessage({ source, action }, "*")`
)

// Host reaches the browser over the Chrome DevTools Protocol. Every page
// target is a tab; its window comes from Browser.getWindowForTarget.
type Host struct {
	browser  *rod.Browser
	launched bool
	logger   *util.Logger

	mu     sync.RWMutex
	script string
}

// Connect attaches to the browser at cfg.DebuggerURL, or launches one from
// cfg.Launch when no URL is configured.
func Connect(ctx context.Context, cfg config.BrowserConfig, logger *util.Logger) (*Host, error) {
	controlURL := cfg.DebuggerURL
	launched := false
	if controlURL == "" && len(cfg.Launch) > 0 {
		l := launcher.New().Bin(cfg.Launch[0]).Headless(cfg.Headless)
		for _, raw := range cfg.Launch[1:] {
			name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
		url, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = url
		launched = true
	}
	if controlURL == "" {
		return nil, errors.New("no debuggerURL or launch command provided")
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	logger.Infof("browser connected at %s", controlURL)
	return &Host{browser: b, launched: launched, logger: logger}, nil
}

// LoadAgentScript reads the player agent from path. An empty path clears the
// script and disables injection.
func (h *Host) LoadAgentScript(path string) error {
	if path == "" {
		h.mu.Lock()
		h.script = ""
		h.mu.Unlock()
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read agent script: %w", err)
	}
	h.mu.Lock()
	h.script = string(data)
	h.mu.Unlock()
	return nil
}

// Close disconnects, shutting the browser down only when this host launched
// it.
func (h *Host) Close() error {
	if h.launched {
		return h.browser.Close()
	}
	return nil
}

func (h *Host) Tab(ctx context.Context, id state.TabID) (*state.Tab, error) {
	page, err := h.page(ctx, id)
	if err != nil {
		return nil, err
	}
	tab, err := h.describe(ctx, page)
	if err != nil {
		return nil, err
	}
	return &tab, nil
}

func (h *Host) TabsInWindow(ctx context.Context, window state.WindowID) ([]state.Tab, error) {
	return h.collect(ctx, func(tab state.Tab) bool { return tab.WindowID == window })
}

func (h *Host) ActiveTabs(ctx context.Context) ([]state.Tab, error) {
	return h.collect(ctx, func(tab state.Tab) bool { return tab.Active })
}

// CurrentWindowTabs resolves the window holding the focused document. When no
// page reports focus the first visible page's window is used.
func (h *Host) CurrentWindowTabs(ctx context.Context) ([]state.Tab, error) {
	pages, err := h.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	window := state.WindowNone
	fallback := state.WindowNone
	for _, page := range pages {
		focused, err := evalBool(ctx, page, focusJS)
		if err != nil {
			continue
		}
		if focused {
			window, err = windowOf(page)
			if err == nil {
				break
			}
		}
		if fallback == state.WindowNone {
			if visible, err := evalBool(ctx, page, visibleJS); err == nil && visible {
				if w, err := windowOf(page); err == nil {
					fallback = w
				}
			}
		}
	}
	if window == state.WindowNone {
		window = fallback
	}
	if window == state.WindowNone {
		return nil, nil
	}
	return h.TabsInWindow(ctx, window)
}

// SendMessage posts {source, action} into the page so the agent's message
// listener picks it up.
func (h *Host) SendMessage(ctx context.Context, id state.TabID, msg dispatch.Message) error {
	page, err := h.page(ctx, id)
	if err != nil {
		return err
	}
	if _, err := page.Context(ctx).Evaluate(rod.Eval(postJS, MessageSource, string(msg.Action))); err != nil {
		return fmt.Errorf("post %s to %s: %w", msg.Action, id, err)
	}
	return nil
}

// Inject evaluates the agent script in the tab.
func (h *Host) Inject(ctx context.Context, tab state.Tab) error {
	h.mu.RLock()
	script := h.script
	h.mu.RUnlock()
	if script == "" {
		h.logger.Debugf("no agent script configured; skipping injection into %s", tab.ID)
		return nil
	}
	page, err := h.page(ctx, tab.ID)
	if err != nil {
		return err
	}
	res, err := proto.RuntimeEvaluate{Expression: script}.Call(page.Context(ctx))
	if err != nil {
		return fmt.Errorf("inject agent into %s: %w", tab.ID, err)
	}
	if res.ExceptionDetails != nil {
		return fmt.Errorf("inject agent into %s: %s", tab.ID, res.ExceptionDetails.Text)
	}
	return nil
}

func (h *Host) page(ctx context.Context, id state.TabID) (*rod.Page, error) {
	pages, err := h.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	for _, page := range pages {
		if string(page.TargetID) == string(id) {
			return page, nil
		}
	}
	return nil, fmt.Errorf("tab %s: %w", id, state.ErrTabNotFound)
}

func (h *Host) collect(ctx context.Context, keep func(state.Tab) bool) ([]state.Tab, error) {
	pages, err := h.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	var out []state.Tab
	for _, page := range pages {
		tab, err := h.describe(ctx, page)
		if err != nil {
			// Pages close while we iterate.
			h.logger.Debugf("skipping page %s: %v", page.TargetID, err)
			continue
		}
		if keep(tab) {
			out = append(out, tab)
		}
	}
	return out, nil
}

func (h *Host) describe(ctx context.Context, page *rod.Page) (state.Tab, error) {
	page = page.Context(ctx)
	info, err := page.Info()
	if err != nil {
		return state.Tab{}, fmt.Errorf("page info: %w", err)
	}
	window, err := windowOf(page)
	if err != nil {
		return state.Tab{}, err
	}
	visible, err := evalBool(ctx, page, visibleJS)
	if err != nil {
		return state.Tab{}, err
	}
	return state.Tab{
		ID:       state.TabID(page.TargetID),
		WindowID: window,
		URL:      info.URL,
		Active:   visible,
	}, nil
}

func windowOf(page *rod.Page) (state.WindowID, error) {
	res, err := proto.BrowserGetWindowForTarget{TargetID: page.TargetID}.Call(page)
	if err != nil {
		return state.WindowNone, fmt.Errorf("window for %s: %w", page.TargetID, err)
	}
	return state.WindowID(res.WindowID), nil
}

func evalBool(ctx context.Context, page *rod.Page, js string) (bool, error) {
	res, err := page.Context(ctx).Evaluate(rod.Eval(js))
	if err != nil {
		return false, fmt.Errorf("evaluate on %s: %w", page.TargetID, err)
	}
	return res.Value.Bool(), nil
}

var (
	_ state.TabSource    = (*Host)(nil)
	_ dispatch.Messenger = (*Host)(nil)
)
