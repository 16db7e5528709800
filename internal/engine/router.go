package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hyprpal/playpal/internal/config"
	"github.com/hyprpal/playpal/internal/dispatch"
	"github.com/hyprpal/playpal/internal/ipc"
	"github.com/hyprpal/playpal/internal/state"
)

const signalQueueSize = 64

// ErrEventStreamClosed is returned by Run when the signal source goes away.
var ErrEventStreamClosed = errors.New("event stream closed")

// Handle runs the handler for ev to completion. Failures and panics are
// logged and recorded; they never escape.
func (e *Engine) Handle(ctx context.Context, ev ipc.Event) {
	rec := SignalRecord{
		ID:        e.newID(),
		Timestamp: time.Now(),
		Kind:      string(ev.Kind),
		Tab:       string(ev.Tab),
	}
	ctx = dispatch.WithTrace(ctx, dispatch.Trace{ID: rec.ID, Signal: rec.Kind})
	e.metrics.RecordSignal(rec.Kind)
	e.trace("signal.received", map[string]any{
		"id":     rec.ID,
		"kind":   ev.Kind,
		"tab":    ev.Tab,
		"window": ev.Window,
	})

	err := e.route(ctx, ev)
	rec.Duration = time.Since(rec.Timestamp)
	if err != nil {
		rec.Error = err.Error()
		e.metrics.RecordSignalError(rec.Kind)
		e.logger.Errorf("%s handler failed: %v", ev.Kind, err)
	}
	e.signals.record(rec)
	e.trace("signal.handled", map[string]any{
		"id":       rec.ID,
		"duration": rec.Duration.String(),
		"error":    rec.Error,
	})
}

func (e *Engine) route(ctx context.Context, ev ipc.Event) (err error) {
	if ev.Kind == ipc.KindRuntimeMessage {
		ack := map[string]any{}
		defer func() {
			if ev.Reply == nil {
				return
			}
			if replyErr := ev.Reply(ipc.Ack{Seq: ev.Seq, Response: ack}); replyErr != nil {
				e.logger.Debugf("ack message %d: %v", ev.Seq, replyErr)
			}
		}()
		defer recoverHandler(&err)
		var msg ipc.TabMessage
		if ev.Message != nil {
			msg = *ev.Message
		}
		ack = e.Message(ctx, ev.Tab, msg)
		return nil
	}

	defer recoverHandler(&err)
	switch ev.Kind {
	case ipc.KindTabActivated:
		e.TabActivated(ctx, ev.Tab, ev.WindowOrNone())
	case ipc.KindTabUpdated:
		e.TabUpdated(ctx, TabUpdate{Tab: ev.Tab, Status: ev.Status, Active: ev.Active, URL: ev.URL})
	case ipc.KindWindowFocusChanged:
		e.WindowFocusChanged(ctx, ev.WindowOrNone())
	case ipc.KindCommandInvoked:
		return e.Command(ctx, ev.Command)
	case ipc.KindPowerStateChanged:
		power, err := state.ParsePowerState(ev.State)
		if err != nil {
			return err
		}
		e.PowerStateChanged(ctx, power)
	case ipc.KindStorageChanged:
		e.StorageChanged(ctx, ev.Changes)
	default:
		return fmt.Errorf("unknown signal kind %q", ev.Kind)
	}
	return nil
}

func recoverHandler(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("handler panic: %v", r)
	}
}

// Run consumes events until ctx is cancelled or the stream closes. Each
// signal kind has its own worker, so signals of one kind are handled in
// arrival order while different kinds interleave. Changes published by the
// settings store are handled as storage-changed signals.
func (e *Engine) Run(ctx context.Context, events <-chan ipc.Event) error {
	g, gctx := errgroup.WithContext(ctx)
	queues := make(map[ipc.Kind]chan ipc.Event, len(ipc.Kinds))
	for _, kind := range ipc.Kinds {
		queue := make(chan ipc.Event, signalQueueSize)
		queues[kind] = queue
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case ev := <-queue:
					e.Handle(gctx, ev)
				}
			}
		})
	}

	enqueue := func(ev ipc.Event) {
		queue, ok := queues[ev.Kind]
		if !ok {
			e.logger.Warnf("dropping signal of unknown kind %q", ev.Kind)
			return
		}
		select {
		case queue <- ev:
		case <-gctx.Done():
		}
	}

	if store := e.cache.Store(); store != nil {
		g.Go(func() error {
			changes := store.Changes()
			for {
				select {
				case <-gctx.Done():
					return nil
				case c, ok := <-changes:
					if !ok {
						return nil
					}
					enqueue(storageEvent(c))
				}
			}
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case ev, ok := <-events:
				if !ok {
					return ErrEventStreamClosed
				}
				enqueue(ev)
			}
		}
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func storageEvent(changes config.Changes) ipc.Event {
	return ipc.Event{Kind: ipc.KindStorageChanged, Changes: changes}
}
