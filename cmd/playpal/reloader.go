package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hyprpal/playpal/internal/config"
	"github.com/hyprpal/playpal/internal/metrics"
	"github.com/hyprpal/playpal/internal/util"
)

type agentLoader interface {
	LoadAgentScript(path string) error
}

type configReloader struct {
	path           string
	logger         *util.Logger
	cache          *config.Cache
	agent          agentLoader
	metrics        *metrics.Collector
	lastSerialized []byte
}

func newConfigReloader(path string, logger *util.Logger, cache *config.Cache, agent agentLoader, metrics *metrics.Collector, serialized []byte) *configReloader {
	return &configReloader{
		path:           path,
		logger:         logger,
		cache:          cache,
		agent:          agent,
		metrics:        metrics,
		lastSerialized: append([]byte(nil), serialized...),
	}
}

// Reload re-reads the config file. Invalid documents leave the running
// configuration untouched.
func (r *configReloader) Reload(ctx context.Context, reason string) error {
	r.logger.Infof("%s, reloading config", reason)
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	cfg, err := config.Parse(raw)
	if err != nil {
		r.logDiff(raw)
		return err
	}
	if lintErrs := cfg.Lint(); len(lintErrs) > 0 {
		r.logLintErrors(lintErrs)
		r.logDiff(raw)
		return lintErrs[0]
	}

	if r.agent != nil {
		if err := r.agent.LoadAgentScript(cfg.AgentScript); err != nil {
			r.logDiff(raw)
			return err
		}
	}
	if err := r.cache.SetDeployed(ctx, cfg.Patterns); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("reload settings: %w", err)
	}
	if r.metrics != nil && r.metrics.Enabled() != cfg.Telemetry.Enabled {
		r.metrics.SetEnabled(cfg.Telemetry.Enabled)
	}

	r.lastSerialized = append([]byte(nil), raw...)
	r.logger.Infof("config reloaded (%d deployed patterns)", len(cfg.Patterns))
	return nil
}

func (r *configReloader) logDiff(current []byte) {
	diff := config.DiffSerialized(r.lastSerialized, current)
	if diff == "" {
		r.logger.Warnf("config change rejected; unable to compute diff vs last valid config")
		return
	}
	r.logger.Warnf("config change rejected; diff vs last valid config:\n%s", diff)
}

func (r *configReloader) logLintErrors(errs []config.LintError) {
	r.logger.Warnf("config validation failed with %d issue(s):", len(errs))
	for _, lintErr := range errs {
		if lintErr.Path != "" {
			r.logger.Warnf(" - %s: %s", lintErr.Path, lintErr.Message)
			continue
		}
		r.logger.Warnf(" - %s", lintErr.Message)
	}
}
