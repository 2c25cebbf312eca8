package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"admin-auth-service/internal/metrics"
	"admin-auth-service/internal/util"
)

const maxBatch = 100

// Sink receives batches of events. Implementations must respect ctx.
type Sink interface {
	Name() string
	Write(ctx context.Context, batch []Event) error
}

// Dispatcher fans events out to sinks from a single worker. A full buffer
// drops the event and counts it.
type Dispatcher struct {
	ch      chan Event
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
	done    chan struct{}
}

func NewDispatcher(buffer int, sinkTimeout time.Duration, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	if sinkTimeout <= 0 {
		sinkTimeout = 3 * time.Second
	}
	d := &Dispatcher{
		ch:      make(chan Event, buffer),
		sinks:   sinks,
		timeout: sinkTimeout,
		logger:  util.Named("events"),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Publish(e Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.ch <- e:
	default:
		d.dropped.Add(1)
		metrics.EventsDropped.Inc()
	}
}

// Dropped is the number of events lost to a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops intake and waits for the buffer to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	batch := make([]Event, 0, maxBatch)
	for e := range d.ch {
		batch = append(batch[:0], e)
	fill:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-d.ch:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		d.deliver(batch)
	}
}

func (d *Dispatcher) deliver(batch []Event) {
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := s.Write(ctx, batch)
		cancel()
		if err != nil {
			level := d.logger.Warn
			if errors.Is(err, context.DeadlineExceeded) {
				level = d.logger.Error
			}
			level("event sink write failed",
				zap.String("sink", s.Name()),
				zap.Int("events", len(batch)),
				zap.Error(err))
		}
	}
}
