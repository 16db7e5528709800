package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyprpal/playpal/internal/rules"
)

// Config is the daemon configuration document.
type Config struct {
	Patterns    []string        `yaml:"patterns"`
	Store       string          `yaml:"store"`
	AgentScript string          `yaml:"agentScript"`
	Browser     BrowserConfig   `yaml:"browser"`
	Dispatch    DispatchConfig  `yaml:"dispatch"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// BrowserConfig describes how the daemon reaches the browser over CDP.
type BrowserConfig struct {
	DebuggerURL string   `yaml:"debuggerURL"`
	Launch      []string `yaml:"launch"`
	Headless    bool     `yaml:"headless"`
}

// DispatchConfig tunes the command outbox.
type DispatchConfig struct {
	TimeoutMs int `yaml:"timeoutMs"`
	QueueSize int `yaml:"queueSize"`
}

// Timeout returns the per-send timeout.
func (d DispatchConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// TelemetryConfig toggles local counters.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// UnmarshalYAML accepts the legacy "hosts" key as an alias for patterns.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type rawConfig struct {
		Patterns    []string        `yaml:"patterns"`
		Hosts       []string        `yaml:"hosts"`
		Store       string          `yaml:"store"`
		AgentScript string          `yaml:"agentScript"`
		Browser     BrowserConfig   `yaml:"browser"`
		Dispatch    DispatchConfig  `yaml:"dispatch"`
		Telemetry   TelemetryConfig `yaml:"telemetry"`
	}

	var raw rawConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.Patterns = raw.Patterns
	if len(c.Patterns) == 0 {
		c.Patterns = raw.Hosts
	}
	c.Store = raw.Store
	c.AgentScript = raw.AgentScript
	c.Browser = raw.Browser
	c.Dispatch = raw.Dispatch
	c.Telemetry = raw.Telemetry
	return nil
}

// LintError describes a single validation failure.
type LintError struct {
	Path    string
	Message string
}

func (e LintError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a configuration payload and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LintFile parses a file and returns every validation issue.
func LintFile(path string) ([]LintError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg.Lint(), nil
}

func (c *Config) applyDefaults() {
	if c.Dispatch.TimeoutMs == 0 {
		c.Dispatch.TimeoutMs = 2000
	}
	if c.Dispatch.QueueSize == 0 {
		c.Dispatch.QueueSize = 256
	}
	if c.Store != "" {
		c.Store = expandHome(c.Store)
	}
	if c.AgentScript != "" {
		c.AgentScript = expandHome(c.AgentScript)
	}
}

// Validate returns the first lint error, if any.
func (c *Config) Validate() error {
	if errs := c.Lint(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Lint performs sanity checks and reports all issues.
func (c *Config) Lint() []LintError {
	var errs []LintError
	seen := map[string]struct{}{}
	for i, p := range c.Patterns {
		path := fmt.Sprintf("patterns[%d]", i)
		if strings.TrimSpace(p) == "" {
			errs = append(errs, LintError{Path: path, Message: "pattern cannot be empty"})
			continue
		}
		if !rules.IsAddressPattern(p) {
			errs = append(errs, LintError{Path: path, Message: fmt.Sprintf("pattern %q must start with http", p)})
		}
		if _, err := rules.CompilePattern(p); err != nil {
			errs = append(errs, LintError{Path: path, Message: fmt.Sprintf("pattern %q: %v", p, err)})
		}
		if _, dup := seen[p]; dup {
			errs = append(errs, LintError{Path: path, Message: fmt.Sprintf("duplicate pattern %q", p)})
		}
		seen[p] = struct{}{}
	}
	if c.Dispatch.TimeoutMs < 0 {
		errs = append(errs, LintError{Path: "dispatch.timeoutMs", Message: "cannot be negative"})
	}
	if c.Dispatch.QueueSize < 0 {
		errs = append(errs, LintError{Path: "dispatch.queueSize", Message: "cannot be negative"})
	}
	if c.Browser.DebuggerURL != "" && len(c.Browser.Launch) > 0 {
		errs = append(errs, LintError{Path: "browser", Message: "set either debuggerURL or launch, not both"})
	}
	return errs
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
