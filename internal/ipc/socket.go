package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyprpal/playpal/internal/util"
)

const maxLineSize = 1 << 20

// Listen accepts signal connections on a unix socket and streams decoded
// events until ctx is cancelled. Each connection carries JSON lines; runtime
// messages get their Ack written back on the same connection.
func Listen(ctx context.Context, path string, logger *util.Logger) (<-chan Event, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create signal dir: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on signal socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("chmod signal socket: %w", err)
	}

	events := make(chan Event)
	var conns sync.WaitGroup
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	go func() {
		defer func() {
			conns.Wait()
			close(events)
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Warnf("remove signal socket: %v", err)
			}
		}()
		for {
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				logger.Errorf("signal accept error: %v", err)
				continue
			}
			conns.Add(1)
			go func() {
				defer conns.Done()
				serveConn(ctx, conn, events, logger)
			}()
		}
	}()
	return events, nil
}

func serveConn(ctx context.Context, conn net.Conn, events chan<- Event, logger *util.Logger) {
	done := make(chan struct{})
	defer close(done)
	defer conn.Close()
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	var writeMu sync.Mutex
	enc := json.NewEncoder(conn)
	reply := func(ack Ack) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if ack.Response == nil {
			ack.Response = map[string]any{}
		}
		return enc.Encode(ack)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			logger.Warnf("discarding malformed signal: %v", err)
			continue
		}
		if err := ev.Validate(); err != nil {
			logger.Warnf("discarding invalid signal: %v", err)
			continue
		}
		if ev.Kind == KindRuntimeMessage {
			ev.Reply = reply
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		logger.Warnf("signal stream error: %v", err)
	}
}

// Send delivers a single event to the signal socket at path. Runtime messages
// wait for and return their acknowledgement.
func Send(ctx context.Context, path string, ev Event) (*Ack, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("connect signal socket: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := json.NewEncoder(conn).Encode(ev); err != nil {
		return nil, fmt.Errorf("write signal: %w", err)
	}
	if ev.Kind != KindRuntimeMessage {
		return nil, nil
	}
	var ack Ack
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&ack); err != nil {
		return nil, fmt.Errorf("read ack: %w", err)
	}
	if ack.Seq != ev.Seq {
		return nil, fmt.Errorf("ack for seq %d, want %d", ack.Seq, ev.Seq)
	}
	return &ack, nil
}
