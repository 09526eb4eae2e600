// Package eventbus forwards persisted messages to external consumers
// (Kafka or NATS). Payloads carry ciphertext only.
package eventbus

import (
	"context"
	"time"

	"lanchat/internal/model"
)

// MessageCreated is the published payload
type MessageCreated struct {
	ID           string      `json:"id"`
	Conversation string      `json:"conversation"`
	Scope        model.Scope `json:"scope"`
	SenderID     string      `json:"senderId"`
	SenderName   string      `json:"senderName"`
	RecipientID  string      `json:"recipientId,omitempty"`
	Body         string      `json:"body"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// NewMessageCreated builds the event for a persisted message
func NewMessageCreated(m model.Message) MessageCreated {
	return MessageCreated{
		ID:           m.ID,
		Conversation: m.Conversation().Key(),
		Scope:        m.Scope,
		SenderID:     m.SenderID,
		SenderName:   m.SenderName,
		RecipientID:  m.RecipientID,
		Body:         m.Body,
		CreatedAt:    m.CreatedAt,
	}
}

// Publisher delivers one event to a broker
type Publisher interface {
	Name() string
	Publish(ctx context.Context, evt MessageCreated) error
	Close() error
}
