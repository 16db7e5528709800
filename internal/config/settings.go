package config

import (
	"fmt"

	"github.com/hyprpal/playpal/internal/rules"
)

// Option keys persisted in the settings store.
const (
	KeyAutoPause      = "autopause"
	KeyAutoResume     = "autoresume"
	KeyScrollPause    = "scrollpause"
	KeyLockPause      = "lockpause"
	KeyLockResume     = "lockresume"
	KeyFocusPause     = "focuspause"
	KeyFocusResume    = "focusresume"
	KeyDisabled       = "disabled"
	KeyCursorTracking = "cursorTracking"
	KeyDebugMode      = "debugMode"
)

// OptionKeys lists the fixed option keys in a stable order.
var OptionKeys = []string{
	KeyAutoPause,
	KeyAutoResume,
	KeyScrollPause,
	KeyLockPause,
	KeyLockResume,
	KeyFocusPause,
	KeyFocusResume,
	KeyDisabled,
	KeyCursorTracking,
	KeyDebugMode,
}

// Options holds the fixed boolean policy switches.
type Options struct {
	AutoPause      bool `json:"autopause" yaml:"autopause"`
	AutoResume     bool `json:"autoresume" yaml:"autoresume"`
	ScrollPause    bool `json:"scrollpause" yaml:"scrollpause"`
	LockPause      bool `json:"lockpause" yaml:"lockpause"`
	LockResume     bool `json:"lockresume" yaml:"lockresume"`
	FocusPause     bool `json:"focuspause" yaml:"focuspause"`
	FocusResume    bool `json:"focusresume" yaml:"focusresume"`
	Disabled       bool `json:"disabled" yaml:"disabled"`
	CursorTracking bool `json:"cursorTracking" yaml:"cursorTracking"`
	DebugMode      bool `json:"debugMode" yaml:"debugMode"`
}

// DefaultOptions returns the built-in option values.
func DefaultOptions() Options {
	return Options{
		AutoPause:  true,
		AutoResume: true,
		LockPause:  true,
		LockResume: true,
	}
}

func (o *Options) field(key string) *bool {
	switch key {
	case KeyAutoPause:
		return &o.AutoPause
	case KeyAutoResume:
		return &o.AutoResume
	case KeyScrollPause:
		return &o.ScrollPause
	case KeyLockPause:
		return &o.LockPause
	case KeyLockResume:
		return &o.LockResume
	case KeyFocusPause:
		return &o.FocusPause
	case KeyFocusResume:
		return &o.FocusResume
	case KeyDisabled:
		return &o.Disabled
	case KeyCursorTracking:
		return &o.CursorTracking
	case KeyDebugMode:
		return &o.DebugMode
	default:
		return nil
	}
}

// Pattern is an address pattern with its enabled flag.
type Pattern struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// Settings is the live policy configuration: fixed options plus address
// patterns in insertion order. Lookups over Patterns use first-match order.
type Settings struct {
	Options  Options   `json:"options"`
	Patterns []Pattern `json:"patterns"`
}

// DefaultSettings returns defaults with every deployed pattern enabled.
func DefaultSettings(patterns []string) Settings {
	s := Settings{Options: DefaultOptions()}
	for _, p := range patterns {
		if s.patternIndex(p) >= 0 {
			continue
		}
		s.Patterns = append(s.Patterns, Pattern{Pattern: p, Enabled: true})
	}
	return s
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := Settings{Options: s.Options}
	if len(s.Patterns) > 0 {
		out.Patterns = append([]Pattern(nil), s.Patterns...)
	}
	return out
}

// Keys returns every recognized key: fixed options followed by patterns.
func (s Settings) Keys() []string {
	keys := append([]string(nil), OptionKeys...)
	for _, p := range s.Patterns {
		keys = append(keys, p.Pattern)
	}
	return keys
}

// Effective applies the disabled override: when Disabled is set every other
// option and every pattern reads false. The receiver is left untouched.
func (s Settings) Effective() Settings {
	out := s.Clone()
	if !s.Options.Disabled {
		return out
	}
	out.Options = Options{Disabled: true}
	for i := range out.Patterns {
		out.Patterns[i].Enabled = false
	}
	return out
}

// Set writes a single key. Booleans apply directly and nil (a removed key)
// reads as false. Unknown keys that look like address patterns are appended.
// It reports whether the key was recognized.
func (s *Settings) Set(key string, value any) (bool, error) {
	var b bool
	switch v := value.(type) {
	case nil:
	case bool:
		b = v
	default:
		return false, fmt.Errorf("option %q: expected bool, got %T", key, value)
	}
	if f := s.Options.field(key); f != nil {
		*f = b
		return true, nil
	}
	if !rules.IsAddressPattern(key) {
		return false, nil
	}
	if idx := s.patternIndex(key); idx >= 0 {
		s.Patterns[idx].Enabled = b
		return true, nil
	}
	s.Patterns = append(s.Patterns, Pattern{Pattern: key, Enabled: b})
	return true, nil
}

// Get reads a single key.
func (s Settings) Get(key string) (bool, bool) {
	if f := s.Options.field(key); f != nil {
		return *f, true
	}
	if idx := s.patternIndex(key); idx >= 0 {
		return s.Patterns[idx].Enabled, true
	}
	return false, false
}

func (s *Settings) patternIndex(pattern string) int {
	for i, p := range s.Patterns {
		if p.Pattern == pattern {
			return i
		}
	}
	return -1
}
