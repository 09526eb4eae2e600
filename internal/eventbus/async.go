package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lanchat/internal/metrics"
	"lanchat/internal/model"
)

const (
	queueSize      = 1024
	publishTimeout = 5 * time.Second
)

// Async publishes on a background worker so senders never wait on a broker.
// Events are dropped when the queue is full.
type Async struct {
	pubs  []Publisher
	queue chan MessageCreated
	log   zerolog.Logger

	mu     sync.RWMutex // guards closed and the send on queue
	closed bool
	done   chan struct{}
}

// NewAsync starts the background worker
func NewAsync(log zerolog.Logger, pubs ...Publisher) *Async {
	a := &Async{
		pubs:  pubs,
		queue: make(chan MessageCreated, queueSize),
		log:   log.With().Str("component", "eventbus").Logger(),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

// Publish enqueues msg. Events published after Close are dropped.
func (a *Async) Publish(msg model.Message) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.log.Warn().Str("message_id", msg.ID).Msg("event sink closed; dropping")
		return
	}

	select {
	case a.queue <- NewMessageCreated(msg):
	default:
		for _, p := range a.pubs {
			metrics.EventsPublished.WithLabelValues(p.Name(), "dropped").Inc()
		}
		a.log.Warn().Str("message_id", msg.ID).Msg("event queue full; dropping")
	}
}

func (a *Async) run() {
	defer close(a.done)
	for evt := range a.queue {
		for _, p := range a.pubs {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			err := p.Publish(ctx, evt)
			cancel()

			if err != nil {
				metrics.EventsPublished.WithLabelValues(p.Name(), "error").Inc()
				a.log.Error().Err(err).Str("sink", p.Name()).Str("message_id", evt.ID).Msg("publish event")
				continue
			}
			metrics.EventsPublished.WithLabelValues(p.Name(), "ok").Inc()
		}
	}
}

// Close drains queued events, waiting at most until ctx is done, then closes publishers.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	var errs []error
	select {
	case <-a.done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	for _, p := range a.pubs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
