package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/gobwas/glob"

	"github.com/hyprpal/playpal/internal/rules"
	"github.com/hyprpal/playpal/internal/state"
	"github.com/hyprpal/playpal/internal/util"
)

// Cache mirrors the settings store in memory. It keeps raw values; readers
// get the effective view with the disabled override applied.
type Cache struct {
	store  Store
	logger *util.Logger

	mu       sync.RWMutex
	deployed []string
	raw      Settings

	globMu sync.Mutex
	globs  map[string]glob.Glob
}

// NewCache returns a cache holding defaults for the deployed patterns. Call
// Load to pull persisted values.
func NewCache(store Store, deployed []string, logger *util.Logger) *Cache {
	return &Cache{
		store:    store,
		logger:   logger,
		deployed: append([]string(nil), deployed...),
		raw:      DefaultSettings(deployed),
		globs:    make(map[string]glob.Glob),
	}
}

// Store returns the backing store.
func (c *Cache) Store() Store {
	return c.store
}

// Load reads every recognized key from the store and merges it onto the
// defaults. Patterns learned from change notifications stay recognized.
func (c *Cache) Load(ctx context.Context) error {
	c.mu.RLock()
	fresh := DefaultSettings(c.deployed)
	for _, p := range c.raw.Patterns {
		if _, known := fresh.Get(p.Pattern); !known {
			fresh.Patterns = append(fresh.Patterns, Pattern{Pattern: p.Pattern, Enabled: true})
		}
	}
	c.mu.RUnlock()

	values, err := c.store.Get(ctx, fresh.Keys())
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	for _, key := range fresh.Keys() {
		v, ok := values[key]
		if !ok {
			continue
		}
		if _, err := fresh.Set(key, v); err != nil {
			c.logger.Warnf("ignoring stored value: %v", err)
		}
	}

	c.mu.Lock()
	c.raw = fresh
	c.mu.Unlock()
	return nil
}

// ApplyChange writes a single key into the live settings. A change to
// disabled re-derives the whole cache from the store.
func (c *Cache) ApplyChange(ctx context.Context, key string, value any) error {
	c.mu.Lock()
	known, err := c.raw.Set(key, value)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if !known {
		c.logger.Debugf("ignoring change to unrecognized key %q", key)
	}
	if key == KeyDisabled {
		return c.Load(ctx)
	}
	return nil
}

// SetDeployed replaces the deployed pattern list and reloads.
func (c *Cache) SetDeployed(ctx context.Context, patterns []string) error {
	c.mu.Lock()
	c.deployed = append([]string(nil), patterns...)
	c.raw = DefaultSettings(c.deployed)
	c.mu.Unlock()
	return c.Load(ctx)
}

// SetDisabled persists the master switch and re-derives the cache.
func (c *Cache) SetDisabled(ctx context.Context, disabled bool) error {
	if err := c.store.Set(ctx, map[string]any{KeyDisabled: disabled}); err != nil {
		return fmt.Errorf("persist disabled: %w", err)
	}
	return c.ApplyChange(ctx, KeyDisabled, disabled)
}

// ToggleDisabled flips the master switch and returns the new value.
func (c *Cache) ToggleDisabled(ctx context.Context) (bool, error) {
	c.mu.RLock()
	next := !c.raw.Options.Disabled
	c.mu.RUnlock()
	return next, c.SetDisabled(ctx, next)
}

// Settings returns the effective settings.
func (c *Cache) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.raw.Effective()
}

// Options returns the effective fixed options.
func (c *Cache) Options() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.raw.Options.Disabled {
		return Options{Disabled: true}
	}
	return c.raw.Options
}

// Raw returns the stored values without the disabled override.
func (c *Cache) Raw() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.raw.Clone()
}

// Patterns returns every known address pattern regardless of its flag.
func (c *Cache) Patterns() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.raw.Patterns))
	for _, p := range c.raw.Patterns {
		out = append(out, p.Pattern)
	}
	return out
}

// IsEnabledFor reports whether policy applies to the tab. Absent tabs and a
// disabled configuration are never enabled; otherwise the first matching
// pattern decides and an unmatched address is enabled.
func (c *Cache) IsEnabledFor(tab *state.Tab) bool {
	if tab == nil {
		return false
	}
	settings := c.Settings()
	if settings.Options.Disabled {
		return false
	}
	for _, p := range settings.Patterns {
		if c.match(p.Pattern, tab.URL) {
			return p.Enabled
		}
	}
	return true
}

// MatchesAny reports whether the address matches any known pattern.
func (c *Cache) MatchesAny(address string) bool {
	for _, p := range c.Patterns() {
		if c.match(p, address) {
			return true
		}
	}
	return false
}

func (c *Cache) match(pattern, address string) bool {
	c.globMu.Lock()
	g, ok := c.globs[pattern]
	if !ok {
		compiled, err := rules.CompilePattern(pattern)
		if err != nil {
			c.logger.Warnf("pattern %q does not compile: %v", pattern, err)
		}
		g = compiled
		c.globs[pattern] = g
	}
	c.globMu.Unlock()
	if g == nil {
		return false
	}
	return g.Match(address)
}
