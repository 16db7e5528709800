package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hyprpal/playpal/internal/control"
	"github.com/hyprpal/playpal/internal/metrics"
)

const (
	// defaultTimeout is used when the caller does not provide a context deadline.
	defaultTimeout = 3 * time.Second
)

// Client talks to the running playpal daemon over its control socket.
type Client struct {
	socketPath string
}

type (
	// DaemonStatus describes the daemon's session and effective settings.
	DaemonStatus = control.DaemonStatus
	// History carries recent signal and dispatch records.
	History = control.History
	// Metrics is the daemon's counter snapshot.
	Metrics = metrics.Snapshot
)

// New creates a client that connects to the provided socket path. When path is
// empty, the default runtime path is used.
func New(path string) (*Client, error) {
	if path == "" {
		var err error
		path, err = control.DefaultSocketPath()
		if err != nil {
			return nil, err
		}
	}
	return &Client{socketPath: path}, nil
}

// Status retrieves the daemon's session state and effective settings.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var status DaemonStatus
	if err := c.do(ctx, control.Request{Action: control.ActionStatus}, &status); err != nil {
		return DaemonStatus{}, err
	}
	return status, nil
}

// Reload asks the daemon to reload its configuration.
func (c *Client) Reload(ctx context.Context) error {
	return c.do(ctx, control.Request{Action: control.ActionReload}, nil)
}

// Command invokes a shortcut command such as toggle-play.
func (c *Client) Command(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("command name cannot be empty")
	}
	payload := control.Request{Action: control.ActionCommand, Params: map[string]any{"name": name}}
	return c.do(ctx, payload, nil)
}

// History retrieves the recent signal and dispatch logs.
func (c *Client) History(ctx context.Context) (History, error) {
	var history History
	if err := c.do(ctx, control.Request{Action: control.ActionHistory}, &history); err != nil {
		return History{}, err
	}
	return history, nil
}

// Metrics retrieves the daemon's counters.
func (c *Client) Metrics(ctx context.Context) (Metrics, error) {
	var snap Metrics
	if err := c.do(ctx, control.Request{Action: control.ActionMetrics}, &snap); err != nil {
		return Metrics{}, err
	}
	return snap, nil
}

// Set stores a boolean setting through the daemon.
func (c *Client) Set(ctx context.Context, key string, value bool) error {
	if key == "" {
		return errors.New("setting key cannot be empty")
	}
	params := map[string]any{"key": key, "value": value}
	return c.do(ctx, control.Request{Action: control.ActionSettingsSet, Params: params}, nil)
}

func (c *Client) do(ctx context.Context, req control.Request, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("dial control socket: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	var resp control.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != control.StatusOK {
		if resp.Error == "" {
			resp.Error = "unknown control error"
		}
		return errors.New(resp.Error)
	}
	if out == nil || resp.Data == nil {
		return nil
	}
	data, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
