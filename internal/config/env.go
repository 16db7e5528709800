package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Env holds process-level overrides read from the environment.
type Env struct {
	ConfigPath    string `env:"PLAYPAL_CONFIG"`
	LogLevel      string `env:"PLAYPAL_LOG_LEVEL"`
	SignalSocket  string `env:"PLAYPAL_SIGNAL_SOCKET"`
	ControlSocket string `env:"PLAYPAL_CONTROL_SOCKET"`
	DebuggerURL   string `env:"PLAYPAL_DEBUGGER_URL"`
}

// ParseEnv loads overrides from environment variables.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// DefaultPath returns the default daemon configuration path.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "playpal", "config.yaml")
}

// DefaultStorePath returns the default settings document path.
func DefaultStorePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "playpal", "settings.yaml")
}
