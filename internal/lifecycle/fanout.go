// Package lifecycle delivers pairing engine events to the slower consumers
// that mirror them (Redis presence, Postgres history, NATS) without ever
// holding up the engine.
package lifecycle

import (
	"context"
	"time"

	"github.com/Kunalchandra007/SuddenConnect/internal/metrics"
	"github.com/Kunalchandra007/SuddenConnect/internal/pairing"
	"go.uber.org/zap"
)

const (
	DefaultBuffer      = 1024
	DefaultSinkTimeout = 2 * time.Second
)

// Sink consumes lifecycle events. Handle is called from a single goroutine,
// in publish order.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev pairing.Event) error
}

// Fanout buffers events and hands each one to every sink in turn.
type Fanout struct {
	events  chan pairing.Event
	sinks   []Sink
	timeout time.Duration
	log     *zap.Logger
}

var _ pairing.EventSink = (*Fanout)(nil)

// NewFanout creates a Fanout holding up to buffer undelivered events. Each
// Handle call gets at most timeout.
func NewFanout(buffer int, timeout time.Duration, logger *zap.Logger, sinks ...Sink) *Fanout {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if timeout <= 0 {
		timeout = DefaultSinkTimeout
	}
	return &Fanout{
		events:  make(chan pairing.Event, buffer),
		sinks:   sinks,
		timeout: timeout,
		log:     logger,
	}
}

// Add appends sinks. It must be called before Run.
func (f *Fanout) Add(sinks ...Sink) {
	f.sinks = append(f.sinks, sinks...)
}

// Publish queues ev. When the backlog is full the event is dropped and
// counted.
func (f *Fanout) Publish(ev pairing.Event) {
	select {
	case f.events <- ev:
	default:
		metrics.EventsDropped.Inc()
		f.log.Warn("lifecycle backlog full, event dropped",
			zap.String("kind", string(ev.Kind)),
			zap.String("participant", ev.ParticipantID))
	}
}

// Run delivers events until ctx is done, then flushes whatever is already
// queued and returns.
func (f *Fanout) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-f.events:
			f.deliver(ctx, ev)
		case <-ctx.Done():
			f.flush()
			return nil
		}
	}
}

func (f *Fanout) flush() {
	for {
		select {
		case ev := <-f.events:
			f.deliver(context.Background(), ev)
		default:
			return
		}
	}
}

func (f *Fanout) deliver(ctx context.Context, ev pairing.Event) {
	for _, sink := range f.sinks {
		sctx, cancel := context.WithTimeout(ctx, f.timeout)
		err := sink.Handle(sctx, ev)
		cancel()
		if err != nil {
			f.log.Warn("lifecycle sink failed",
				zap.String("sink", sink.Name()),
				zap.String("kind", string(ev.Kind)),
				zap.String("participant", ev.ParticipantID),
				zap.Error(err))
		}
	}
}

// Len reports the number of queued events.
func (f *Fanout) Len() int {
	return len(f.events)
}
