package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops and counts events when the buffer is full instead of
	// blocking the caller.
	DropIfFull bool
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLogger reports the start and end of each drop burst on log.
func WithLogger(log *zap.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// Dispatcher hands events to a Sink on a single consumer goroutine. A nil
// *Dispatcher is a valid no-op.
//
// Emit holds a read lock while it enqueues and Close takes the write lock
// before closing the queue, so no send ever races the close.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	log        *zap.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan Event
	flushed chan struct{}

	dropped  atomic.Uint64
	dropping atomic.Bool
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink, opts ...Option) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		log:        zap.NewNop(),
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		flushed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	go d.consume()
	return d
}

func (d *Dispatcher) consume() {
	defer close(d.flushed)

	ctx := context.Background()
	for event := range d.queue {
		d.sink.Emit(ctx, event)
	}
}

// Emit queues event. In blocking mode it waits for room until ctx is done;
// an event abandoned that way counts as dropped. After Close it is a no-op.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
			d.accepted()
		default:
			d.drop(event)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
		d.accepted()
	case <-ctx.Done():
		d.drop(event)
	}
}

func (d *Dispatcher) drop(event Event) {
	total := d.dropped.Add(1)
	if d.dropping.CompareAndSwap(false, true) {
		d.log.Warn("audit buffer full, dropping events",
			zap.String("event_type", event.Type),
			zap.Uint64("dropped_total", total),
		)
	}
}

func (d *Dispatcher) accepted() {
	if d.dropping.Load() && d.dropping.CompareAndSwap(true, false) {
		d.log.Info("audit buffer accepting events again",
			zap.Uint64("dropped_total", d.dropped.Load()),
		)
	}
}

// Close stops accepting events and returns once every queued event has
// reached the sink. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	<-d.flushed
}

// Dropped reports how many events never reached the queue.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
