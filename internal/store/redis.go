package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"lanchat/internal/model"
)

// RedisStore keeps one sorted set per conversation scored by unix microseconds.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore parses url (redis://host:port/db) and pings the server
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisStore{client: client, prefix: "lanchat:" + collectionName + ":"}, nil
}

func (s *RedisStore) key(c model.Conversation) string {
	return s.prefix + c.Key()
}

func (s *RedisStore) Insert(ctx context.Context, msg *model.Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	msg.ID = ulid.Make().String()
	msg.CreatedAt = model.Timestamp(msg.CreatedAt)

	data, err := json.Marshal(toRecord(msg))
	if err != nil {
		return err
	}

	return s.client.ZAdd(ctx, s.key(msg.Conversation()), redis.Z{
		Score:  float64(msg.CreatedAt.UnixMicro()),
		Member: string(data),
	}).Err()
}

func (s *RedisStore) Query(ctx context.Context, q Query) ([]model.Message, error) {
	maxScore := "+inf"
	if q.Before != nil {
		maxScore = fmt.Sprintf("(%d", q.Before.UnixMicro()) // exclusive
	}

	// newest first
	results, err := s.client.ZRevRangeByScore(ctx, s.key(q.Conversation), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   maxScore,
		Count: int64(limitOf(q)),
	}).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]model.Message, 0, len(results))
	for _, data := range results {
		var r record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decode stored message: %w", err)
		}
		messages = append(messages, r.message())
	}
	return messages, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
