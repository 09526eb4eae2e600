package model

import (
	"encoding/json"
	"time"
)

// Realtime event names
const (
	EventIdentify           = "identify"
	EventSendMessage        = "send_message"
	EventSendPrivateMessage = "send_private_message"

	EventUpdateOnlineUsers     = "update_online_users"
	EventReceiveMessage        = "receive_message"
	EventReceivePrivateMessage = "receive_private_message"
	EventAck                   = "ack"
	EventError                 = "error"
)

// Envelope is the frame exchanged over the websocket in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID string          `json:"ackId,omitempty"`
}

// IdentifyPayload is sent by a client to enter the roster
type IdentifyPayload struct {
	Username string `json:"username" validate:"max=64"`
	UserID   string `json:"userId" validate:"max=128"`
}

// SendMessagePayload is a public room message
type SendMessagePayload struct {
	SenderID   string `json:"senderId" validate:"notblank,max=128"`
	SenderName string `json:"senderName" validate:"max=64"`
	Content    string `json:"content" validate:"notblank"`
}

// SendPrivateMessagePayload is a 1:1 message
type SendPrivateMessagePayload struct {
	SenderID   string `json:"senderId" validate:"notblank,max=128"`
	SenderName string `json:"senderName" validate:"max=64"`
	ToUserID   string `json:"toUserId" validate:"notblank,max=128"`
	Content    string `json:"content" validate:"notblank"`
}

// ChatMessage is the plaintext view of a Message delivered to clients
type ChatMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	ToUserID   string    `json:"toUserId,omitempty"`
	Scope      Scope     `json:"scope"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewChatMessage pairs a stored message with its decrypted content
func NewChatMessage(m Message, content string) ChatMessage {
	return ChatMessage{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		ToUserID:   m.RecipientID,
		Scope:      m.Scope,
		Content:    content,
		CreatedAt:  m.CreatedAt,
	}
}

// Ack answers a client event that carried an ackId
type Ack struct {
	AckID     string     `json:"ackId"`
	OK        bool       `json:"ok"`
	Error     string     `json:"error,omitempty"`
	MessageID string     `json:"messageId,omitempty"`
	Delivered *bool      `json:"delivered,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// ErrorEvent reports a rejected frame that had no ackId
type ErrorEvent struct {
	Error string `json:"error"`
}

// HistoryPage is the response of the history endpoint
type HistoryPage struct {
	Messages []ChatMessage `json:"messages"`
	HasMore  bool          `json:"hasMore"`
}
