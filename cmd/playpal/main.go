package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/hyprpal/playpal/internal/browser"
	"github.com/hyprpal/playpal/internal/config"
	"github.com/hyprpal/playpal/internal/control"
	"github.com/hyprpal/playpal/internal/dispatch"
	"github.com/hyprpal/playpal/internal/engine"
	"github.com/hyprpal/playpal/internal/ipc"
	"github.com/hyprpal/playpal/internal/metrics"
	"github.com/hyprpal/playpal/internal/util"
)

func main() {
	envs, err := config.ParseEnv()
	if err != nil {
		exitErr(err)
	}
	defaultConfig := envs.ConfigPath
	if defaultConfig == "" {
		defaultConfig = config.DefaultPath()
	}
	defaultLevel := envs.LogLevel
	if defaultLevel == "" {
		defaultLevel = "info"
	}

	cfgPath := flag.String("config", defaultConfig, "path to YAML config")
	logLevel := flag.String("log-level", defaultLevel, "log level (trace|debug|info|warn|error)")
	signalSocket := flag.String("signal-socket", envs.SignalSocket, "path of the signal socket (defaults to $XDG_RUNTIME_DIR/playpal/signals.sock)")
	controlSocket := flag.String("control-socket", envs.ControlSocket, "path of the control socket")
	debuggerURL := flag.String("debugger-url", envs.DebuggerURL, "DevTools websocket URL; overrides browser.debuggerURL")
	flag.Parse()

	logger := util.NewLogger(util.ParseLogLevel(*logLevel))

	raw, err := os.ReadFile(*cfgPath)
	if err != nil {
		exitErr(fmt.Errorf("read config: %w", err))
	}
	cfg, err := config.Parse(raw)
	if err != nil {
		exitErr(err)
	}
	if err := cfg.Validate(); err != nil {
		exitErr(fmt.Errorf("invalid config: %w", err))
	}
	if *debuggerURL != "" {
		cfg.Browser.DebuggerURL = *debuggerURL
		cfg.Browser.Launch = nil
	}
	cfgFullPath, err := filepath.Abs(*cfgPath)
	if err != nil {
		exitErr(fmt.Errorf("resolve config path: %w", err))
	}
	cfgFullPath = filepath.Clean(cfgFullPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storePath := cfg.Store
	if storePath == "" {
		storePath = config.DefaultStorePath()
	}
	store, err := config.OpenFileStore(storePath, logger.Named("store"))
	if err != nil {
		exitErr(fmt.Errorf("open settings store: %w", err))
	}
	go func() {
		if err := store.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warnf("settings watcher stopped: %v", err)
		}
	}()

	cache := config.NewCache(store, cfg.Patterns, logger.Named("settings"))
	if err := cache.Load(ctx); err != nil {
		exitErr(fmt.Errorf("load settings: %w", err))
	}

	host, err := browser.Connect(ctx, cfg.Browser, logger.Named("browser"))
	if err != nil {
		exitErr(err)
	}
	defer host.Close()
	if err := host.LoadAgentScript(cfg.AgentScript); err != nil {
		exitErr(err)
	}

	collector := metrics.NewCollector(cfg.Telemetry.Enabled)
	dispatcher := dispatch.New(host, cache, logger.Named("dispatch"), dispatch.Options{
		Timeout:   cfg.Dispatch.Timeout(),
		QueueSize: cfg.Dispatch.QueueSize,
		Metrics:   collector,
		Debug:     func() bool { return cache.Options().DebugMode },
	})
	defer dispatcher.Close()

	eng := engine.New(cache, host, dispatcher, logger, engine.Options{
		Injector: host,
		Metrics:  collector,
	})
	if err := eng.Prime(ctx); err != nil {
		logger.Warnf("unable to seed session from browser: %v", err)
	}

	signalPath := *signalSocket
	if signalPath == "" {
		signalPath, err = ipc.DefaultSocketPath()
		if err != nil {
			exitErr(err)
		}
	}
	events, err := ipc.Listen(ctx, signalPath, logger.Named("signals"))
	if err != nil {
		exitErr(err)
	}
	logger.Infof("accepting signals on %s", signalPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		exitErr(fmt.Errorf("watch config: %w", err))
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(cfgFullPath)); err != nil {
		exitErr(fmt.Errorf("watch config dir: %w", err))
	}
	reloadRequests := make(chan string, 1)
	go watchConfig(logger, watcher, cfgFullPath, reloadRequests)

	reloader := newConfigReloader(cfgFullPath, logger, cache, host, collector, raw)
	reload := func(reason string) error {
		return reloader.Reload(ctx, reason)
	}

	ctrlSrv, err := control.NewServer(eng, logger.Named("control"), control.Options{
		SocketPath: *controlSocket,
		Metrics:    collector,
		Reload:     reload,
		Instance:   uuid.NewString(),
	})
	if err != nil {
		exitErr(fmt.Errorf("start control server: %w", err))
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	errs := make(chan error, 2)
	go func() {
		errs <- eng.Run(ctx, events)
	}()
	go func() {
		errs <- ctrlSrv.Serve(ctx)
	}()

	for {
		select {
		case err := <-errs:
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("engine exited: %v", err)
				os.Exit(1)
			}
			logger.Infof("engine stopped")
			return
		case reason := <-reloadRequests:
			if err := reload(reason); err != nil {
				logger.Errorf("reload failed: %v", err)
			}
		case sig := <-sigs:
			switch sig {
			case syscall.SIGHUP:
				if err := reload("received SIGHUP"); err != nil {
					logger.Errorf("reload failed: %v", err)
				}
			case os.Interrupt, syscall.SIGTERM:
				logger.Infof("received %s, shutting down", sig)
				cancel()
			}
		}
	}
}

func watchConfig(logger *util.Logger, watcher *fsnotify.Watcher, target string, reloadRequests chan<- string) {
	const debounceWindow = 250 * time.Millisecond
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounceWindow)
			timerCh = timer.C
		case <-timerCh:
			timer = nil
			timerCh = nil
			select {
			case reloadRequests <- "config file updated":
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("config watcher error: %v", err)
		}
	}
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
