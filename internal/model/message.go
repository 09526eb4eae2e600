package model

import (
	"errors"
	"time"
)

// Scope distinguishes the public room from 1:1 private channels
type Scope string

const (
	ScopePublic  Scope = "public"
	ScopePrivate Scope = "private"
)

// Message represents a persisted chat message.
// Body holds the encrypted content and is never sent to clients.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	RecipientID string    `json:"toUserId,omitempty"`
	Scope       Scope     `json:"scope"`
	Body        string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}

var (
	errMissingRecipient    = errors.New("private message requires a recipient")
	errUnexpectedRecipient = errors.New("public message must not carry a recipient")
	errUnknownScope        = errors.New("unknown message scope")
)

// Validate checks the scope/recipient invariant
func (m *Message) Validate() error {
	switch m.Scope {
	case ScopePublic:
		if m.RecipientID != "" {
			return errUnexpectedRecipient
		}
	case ScopePrivate:
		if m.RecipientID == "" {
			return errMissingRecipient
		}
	default:
		return errUnknownScope
	}
	return nil
}

// Conversation returns the conversation the message belongs to
func (m *Message) Conversation() Conversation {
	if m.Scope == ScopePrivate {
		return Private(m.SenderID, m.RecipientID)
	}
	return Public()
}

// Timestamp normalizes t to millisecond precision, the resolution of the
// unix-millisecond history cursor and of browser Date values.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
