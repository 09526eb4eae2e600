// Package store persists encrypted chat messages and answers
// reverse-chronological page queries.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lanchat/internal/model"
)

// Default collection / table name, shared with the login application's database.
const collectionName = "chat_messages"

var ErrInvalidMessage = errors.New("invalid message")

// Query selects messages of one conversation strictly older than Before,
// newest first, at most Limit.
type Query struct {
	Conversation model.Conversation
	Before       *time.Time
	Limit        int
}

// MessageStore is the durable message log
type MessageStore interface {
	// Insert assigns msg.ID and persists msg
	Insert(ctx context.Context, msg *model.Message) error
	// Query returns messages ordered by CreatedAt descending
	Query(ctx context.Context, q Query) ([]model.Message, error)
	Ping(ctx context.Context) error
	Close() error
}

func validate(msg *model.Message) error {
	if msg == nil {
		return ErrInvalidMessage
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.SenderID == "" || msg.Body == "" || msg.CreatedAt.IsZero() {
		return fmt.Errorf("%w: sender, body and createdAt are required", ErrInvalidMessage)
	}
	return nil
}

func limitOf(q Query) int {
	if q.Limit <= 0 {
		return 50
	}
	return q.Limit
}

// record is the serialized form used by the key-value backends
type record struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"senderId"`
	SenderName  string      `json:"senderName"`
	RecipientID string      `json:"recipientId,omitempty"`
	Scope       model.Scope `json:"scope"`
	Body        string      `json:"body"`
	CreatedAtUS int64       `json:"createdAtUs"`
}

func toRecord(m *model.Message) record {
	return record{
		ID:          m.ID,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		RecipientID: m.RecipientID,
		Scope:       m.Scope,
		Body:        m.Body,
		CreatedAtUS: m.CreatedAt.UnixMicro(),
	}
}

func (r record) message() model.Message {
	return model.Message{
		ID:          r.ID,
		SenderID:    r.SenderID,
		SenderName:  r.SenderName,
		RecipientID: r.RecipientID,
		Scope:       r.Scope,
		Body:        r.Body,
		CreatedAt:   time.UnixMicro(r.CreatedAtUS).UTC(),
	}
}
