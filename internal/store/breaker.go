package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"lanchat/internal/model"
)

// BreakerSettings configures WithBreaker
type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// breakerStore fails fast while the backend is unreachable
type breakerStore struct {
	next MessageStore
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker wraps next in a circuit breaker that opens after
// MaxFailures consecutive backend failures.
func WithBreaker(next MessageStore, st BreakerSettings, log zerolog.Logger) MessageStore {
	if st.MaxFailures == 0 {
		st.MaxFailures = 5
	}
	settings := gobreaker.Settings{
		Name:        "message-store",
		MaxRequests: 1,
		Timeout:     st.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// caller mistakes say nothing about backend health
			return err == nil || errors.Is(err, ErrInvalidMessage) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str("name", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state")
		},
	}
	return &breakerStore{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *breakerStore) Insert(ctx context.Context, msg *model.Message) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Insert(ctx, msg)
	})
	return err
}

func (b *breakerStore) Query(ctx context.Context, q Query) ([]model.Message, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Query(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return res.([]model.Message), nil
}

func (b *breakerStore) Ping(ctx context.Context) error { return b.next.Ping(ctx) }

func (b *breakerStore) Close() error { return b.next.Close() }
