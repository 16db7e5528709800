package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/hyprpal/playpal/internal/metrics"
	"github.com/hyprpal/playpal/internal/state"
	"github.com/hyprpal/playpal/internal/util"
)

// Status reports what Dispatch did with a command.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusSuppressed Status = "suppressed"
	StatusDropped    Status = "dropped"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
)

const (
	DefaultTimeout   = 2 * time.Second
	DefaultQueueSize = 256
)

// Result is returned by Dispatch for callers that care. Most callers discard
// it: delivery is fire-and-forget and failures are only logged, because tabs
// routinely close between a signal and the command it triggers.
type Result struct {
	Status Status
	Reason string
}

// Options tune a Dispatcher.
type Options struct {
	Timeout      time.Duration
	QueueSize    int
	HistoryLimit int
	Metrics      *metrics.Collector
	// Debug reports whether every dispatch should be logged at info level.
	Debug func() bool
}

type envelope struct {
	record Record
}

// Dispatcher delivers commands to tabs through a FIFO outbox drained by a
// single goroutine.
type Dispatcher struct {
	messenger Messenger
	policy    Policy
	logger    *util.Logger
	metrics   *metrics.Collector
	debug     func() bool
	timeout   time.Duration
	history   *history

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan envelope
	done   chan struct{}

	mu      sync.Mutex
	idle    *sync.Cond
	closed  bool
	pending int
}

// New starts a dispatcher. Close must be called to release the delivery
// goroutine.
func New(messenger Messenger, policy Policy, logger *util.Logger, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		messenger: messenger,
		policy:    policy,
		logger:    logger,
		metrics:   opts.Metrics,
		debug:     opts.Debug,
		timeout:   opts.Timeout,
		history:   newHistory(opts.HistoryLimit),
		ctx:       ctx,
		cancel:    cancel,
		queue:     make(chan envelope, opts.QueueSize),
		done:      make(chan struct{}),
	}
	d.idle = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

// Dispatch queues cmd for tab unless the dispatcher is closed, ctx is done,
// or policy disables the tab. It never blocks on delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, tab *state.Tab, cmd Command) Result {
	rec := Record{Timestamp: time.Now(), Command: cmd}
	if trace, ok := TraceFrom(ctx); ok {
		rec.TraceID = trace.ID
		rec.Signal = trace.Signal
	}
	if tab != nil {
		rec.Tab = tab.ID
		rec.URL = tab.URL
	}

	d.mu.Lock()
	switch {
	case d.closed:
		rec.Status, rec.Reason = StatusSuppressed, "dispatcher closed"
	case ctx.Err() != nil:
		rec.Status, rec.Reason = StatusSuppressed, ctx.Err().Error()
	case tab == nil:
		rec.Status, rec.Reason = StatusSuppressed, "unknown tab"
	case d.policy != nil && !d.policy.IsEnabledFor(tab):
		rec.Status, rec.Reason = StatusSuppressed, "disabled for tab"
	default:
		select {
		case d.queue <- envelope{record: rec}:
			rec.Status = StatusQueued
			d.pending++
		default:
			rec.Status, rec.Reason = StatusDropped, "outbox full"
		}
	}
	d.mu.Unlock()

	d.observe(rec)
	return Result{Status: rec.Status, Reason: rec.Reason}
}

// Flush blocks until every queued command has been delivered or failed.
func (d *Dispatcher) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.pending > 0 {
		d.idle.Wait()
	}
}

// Close stops accepting commands, delivers what is already queued and stops
// the delivery goroutine. Later dispatches are suppressed.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
	d.cancel()
}

// History returns the most recent dispatch records, oldest first.
func (d *Dispatcher) History() []Record {
	return d.history.snapshot()
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for env := range d.queue {
		d.deliver(env.record)
		d.mu.Lock()
		d.pending--
		if d.pending == 0 {
			d.idle.Broadcast()
		}
		d.mu.Unlock()
	}
}

func (d *Dispatcher) deliver(rec Record) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()
	rec.Timestamp = time.Now()
	if err := d.messenger.SendMessage(ctx, rec.Tab, Message{Action: rec.Command}); err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
	} else {
		rec.Status = StatusDelivered
	}
	d.observe(rec)
}

func (d *Dispatcher) observe(rec Record) {
	d.history.record(rec)
	d.metrics.RecordDispatch(string(rec.Command), metrics.Outcome(rec.Status))
	if d.logger == nil {
		return
	}
	if d.debug != nil && d.debug() {
		d.logger.Infof("%s", describe(rec))
		return
	}
	if rec.Status == StatusFailed {
		d.logger.Debugf("%s", describe(rec))
		return
	}
	d.logger.Tracef("%s", describe(rec))
}

func describe(rec Record) string {
	msg := string(rec.Command) + " -> tab " + string(rec.Tab) + ": " + string(rec.Status)
	if rec.Reason != "" {
		msg += " (" + rec.Reason + ")"
	}
	if rec.Error != "" {
		msg += ": " + rec.Error
	}
	if rec.Signal != "" {
		msg += " [" + rec.Signal + " " + rec.TraceID + "]"
	}
	return msg
}
