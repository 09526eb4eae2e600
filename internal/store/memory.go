package store

import (
	"context"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"lanchat/internal/model"
)

// MemoryStore keeps messages in process memory. Used for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string][]model.Message // ascending by CreatedAt
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string][]model.Message)}
}

func (s *MemoryStore) Insert(_ context.Context, msg *model.Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	msg.ID = ulid.Make().String()
	msg.CreatedAt = model.Timestamp(msg.CreatedAt)

	key := msg.Conversation().Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.convs[key]
	// 通常は末尾追加。時刻が前後した場合のみ挿入位置を探す
	i := sort.Search(len(list), func(i int) bool { return list[i].CreatedAt.After(msg.CreatedAt) })
	list = append(list, model.Message{})
	copy(list[i+1:], list[i:])
	list[i] = *msg
	s.convs[key] = list
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]model.Message, error) {
	limit := limitOf(q)

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.convs[q.Conversation.Key()]
	end := len(list)
	if q.Before != nil {
		end = sort.Search(len(list), func(i int) bool { return !list[i].CreatedAt.Before(*q.Before) })
	}

	out := make([]model.Message, 0, min(limit, end))
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored messages across all conversations
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, l := range s.convs {
		n += len(l)
	}
	return n
}
