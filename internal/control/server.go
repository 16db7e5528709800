package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyprpal/playpal/internal/engine"
	"github.com/hyprpal/playpal/internal/metrics"
	"github.com/hyprpal/playpal/internal/rules"
	"github.com/hyprpal/playpal/internal/util"
)

// Server hosts the playpal control socket and serves requests.
type Server struct {
	engine     *engine.Engine
	metrics    *metrics.Collector
	logger     *util.Logger
	reload     func(reason string) error
	socketPath string
	instance   string
	started    time.Time

	mu       sync.Mutex
	listener net.Listener
}

// Options configures optional server fields.
type Options struct {
	// SocketPath overrides DefaultSocketPath.
	SocketPath string
	Metrics    *metrics.Collector
	Reload     func(reason string) error
	Instance   string
}

// NewServer creates a new control server.
func NewServer(eng *engine.Engine, logger *util.Logger, opts Options) (*Server, error) {
	path := opts.SocketPath
	if path == "" {
		var err error
		path, err = DefaultSocketPath()
		if err != nil {
			return nil, err
		}
	}
	return &Server{
		engine:     eng,
		metrics:    opts.Metrics,
		logger:     logger,
		reload:     opts.Reload,
		socketPath: path,
		instance:   opts.Instance,
		started:    time.Now(),
	}, nil
}

// SocketPath returns the socket the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Serve listens on the control socket until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.prepareSocket(); err != nil {
		return err
	}
	s.logger.Infof("control server listening on %s", s.socketPath)
	defer s.cleanup()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()
	}()

	for {
		conn, err := s.accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Errorf("control accept error: %v", err)
			continue
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) accept(ctx context.Context) (net.Conn, error) {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return nil, context.Canceled
	}
	conn, err := listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return conn, nil
}

func (s *Server) prepareSocket() error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create control dir: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on control socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("chmod control socket: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return nil
}

func (s *Server) cleanup() {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()
	if listener != nil {
		listener.Close()
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warnf("remove control socket: %v", err)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	var req Request
	if err := dec.Decode(&req); err != nil {
		s.writeError(conn, fmt.Errorf("decode request: %w", err))
		return
	}
	switch req.Action {
	case ActionStatus:
		s.handleStatus(conn)
	case ActionReload:
		s.handleReload(conn)
	case ActionCommand:
		s.handleCommand(ctx, conn, req.Params)
	case ActionHistory:
		s.handleHistory(conn)
	case ActionMetrics:
		s.writeOK(conn, s.metrics.Snapshot())
	case ActionSettingsSet:
		s.handleSettingsSet(ctx, conn, req.Params)
	default:
		s.writeError(conn, fmt.Errorf("unknown action %q", req.Action))
	}
}

func (s *Server) handleStatus(conn net.Conn) {
	cache := s.engine.Cache()
	effective := cache.Settings()
	status := DaemonStatus{
		Instance: s.instance,
		Started:  s.started,
		Session:  s.engine.Session().Snapshot(),
		Options:  effective.Options,
		Patterns: effective.Patterns,
		Disabled: cache.Raw().Options.Disabled,
	}
	s.writeOK(conn, status)
}

func (s *Server) handleReload(conn net.Conn) {
	if s.reload == nil {
		s.writeError(conn, errors.New("reload not supported"))
		return
	}
	if err := s.reload("control request"); err != nil {
		s.writeError(conn, err)
		return
	}
	s.writeOK(conn, nil)
}

func (s *Server) handleCommand(ctx context.Context, conn net.Conn, params map[string]any) {
	name, _ := params["name"].(string)
	if name == "" {
		s.writeError(conn, errors.New("missing command name"))
		return
	}
	if err := s.engine.Command(ctx, name); err != nil {
		s.writeError(conn, err)
		return
	}
	s.writeOK(conn, nil)
}

func (s *Server) handleHistory(conn net.Conn) {
	s.writeOK(conn, History{
		Signals:    s.engine.SignalHistory(),
		Dispatches: s.engine.DispatchHistory(),
	})
}

// handleSettingsSet writes a setting through the store. The engine picks the
// change up from the store's notifications like any other edit.
func (s *Server) handleSettingsSet(ctx context.Context, conn net.Conn, params map[string]any) {
	key, _ := params["key"].(string)
	if key == "" {
		s.writeError(conn, errors.New("missing setting key"))
		return
	}
	value, ok := params["value"].(bool)
	if !ok {
		s.writeError(conn, fmt.Errorf("setting %s requires a boolean value", key))
		return
	}
	cache := s.engine.Cache()
	if _, known := cache.Raw().Get(key); !known && !rules.IsAddressPattern(key) {
		s.writeError(conn, fmt.Errorf("unknown setting %q", key))
		return
	}
	if err := cache.Store().Set(ctx, map[string]any{key: value}); err != nil {
		s.writeError(conn, fmt.Errorf("store setting: %w", err))
		return
	}
	s.writeOK(conn, nil)
}

func (s *Server) writeOK(conn net.Conn, data any) {
	resp := Response{Status: StatusOK}
	if data != nil {
		resp.Data = data
	}
	_ = json.NewEncoder(conn).Encode(resp)
}

func (s *Server) writeError(conn net.Conn, err error) {
	resp := Response{Status: StatusError}
	if err != nil {
		resp.Error = err.Error()
	}
	_ = json.NewEncoder(conn).Encode(resp)
}
