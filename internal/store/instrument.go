package store

import (
	"context"
	"time"

	"lanchat/internal/metrics"
	"lanchat/internal/model"
)

type instrumentedStore struct {
	next    MessageStore
	backend string
}

// Instrument records store latency per backend and operation
func Instrument(next MessageStore, backend string) MessageStore {
	return &instrumentedStore{next: next, backend: backend}
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.StoreLatency.WithLabelValues(s.backend, op, result).Observe(time.Since(start).Seconds())
}

func (s *instrumentedStore) Insert(ctx context.Context, msg *model.Message) error {
	start := time.Now()
	err := s.next.Insert(ctx, msg)
	s.observe("insert", start, err)
	return err
}

func (s *instrumentedStore) Query(ctx context.Context, q Query) ([]model.Message, error) {
	start := time.Now()
	out, err := s.next.Query(ctx, q)
	s.observe("query", start, err)
	return out, err
}

func (s *instrumentedStore) Ping(ctx context.Context) error { return s.next.Ping(ctx) }

func (s *instrumentedStore) Close() error { return s.next.Close() }
