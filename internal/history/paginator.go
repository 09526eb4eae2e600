// Package history serves past messages of a conversation in pages.
package history

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"lanchat/internal/apperr"
	"lanchat/internal/cipher"
	"lanchat/internal/metrics"
	"lanchat/internal/model"
	"lanchat/internal/store"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Page is one slice of history, oldest first.
// HasMore is true when the page is full; it can report true when exactly
// limit messages remained.
type Page struct {
	Messages []model.ChatMessage
	HasMore  bool
}

// Paginator reads decrypted history pages from a MessageStore
type Paginator struct {
	store  store.MessageStore
	cipher cipher.Cipher
	log    zerolog.Logger
}

// NewPaginator creates a new Paginator reading st and decrypting with c
func NewPaginator(st store.MessageStore, c cipher.Cipher, log zerolog.Logger) *Paginator {
	return &Paginator{store: st, cipher: c, log: log.With().Str("component", "history").Logger()}
}

// Page returns up to limit messages of conv older than before (all if nil).
// Chain pages by passing the CreatedAt of the first message of the previous page.
func (p *Paginator) Page(ctx context.Context, conv model.Conversation, limit int, before *time.Time) (Page, error) {
	limit = ClampLimit(limit)

	stored, err := p.store.Query(ctx, store.Query{Conversation: conv, Before: before, Limit: limit})
	if err != nil {
		p.log.Error().Err(err).Str("conversation", conv.Key()).Msg("query history")
		return Page{}, apperr.HistoryUnavailable(err)
	}

	// 降順で取得したものを古い順に並べ替えて復号
	out := make([]model.ChatMessage, len(stored))
	for i, m := range stored {
		content, err := p.cipher.Decrypt(m.Body)
		if err != nil {
			p.log.Error().Err(err).Str("message_id", m.ID).Msg("decrypt history")
			return Page{}, apperr.HistoryUnavailable(err)
		}
		out[len(stored)-1-i] = model.NewChatMessage(m, content)
	}

	metrics.HistoryPages.WithLabelValues(string(conv.Scope)).Inc()
	return Page{Messages: out, HasMore: len(stored) == limit}, nil
}

// ClampLimit applies the default and maximum page size
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
