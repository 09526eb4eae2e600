// Package router validates, encrypts, persists and fans out chat messages.
package router

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lanchat/internal/apperr"
	"lanchat/internal/cipher"
	"lanchat/internal/metrics"
	"lanchat/internal/model"
	"lanchat/internal/store"
)

// Directory resolves a user to their identified connections
type Directory interface {
	ConnectionsOf(userID string) []string
}

// Fanout enqueues events to live connections. Both methods return the
// number of connections the event was enqueued to.
type Fanout interface {
	Broadcast(event string, payload any) int
	SendTo(connectionIDs []string, event string, payload any) int
}

// EventSink receives persisted messages after fan-out. Must not block.
type EventSink interface {
	Publish(msg model.Message)
}

// PublicMessage is a send to the public room
type PublicMessage struct {
	SenderID   string
	SenderName string
	Content    string
}

// PrivateMessage is a 1:1 send
type PrivateMessage struct {
	SenderID    string
	SenderName  string
	RecipientID string
	Content     string
}

// Ack is the outcome of a successful send
type Ack struct {
	MessageID  string
	CreatedAt  time.Time
	Delivered  bool // private: the recipient had at least one connection
	Deliveries int
}

// Router is stateless apart from its clock
type Router struct {
	store   store.MessageStore
	cipher  cipher.Cipher
	dir     Directory
	fanout  Fanout
	sink    EventSink
	log     zerolog.Logger
	timeout time.Duration
	now     func() time.Time

	clockMu sync.Mutex
	last    time.Time
}

// Option configures a Router
type Option func(*Router)

// WithSink hands every persisted message to s
func WithSink(s EventSink) Option {
	return func(r *Router) { r.sink = s }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithStoreTimeout bounds each insert
func WithStoreTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// New creates a new Router persisting to st and delivering through fan
func New(st store.MessageStore, c cipher.Cipher, dir Directory, fan Fanout, log zerolog.Logger, opts ...Option) *Router {
	r := &Router{
		store:   st,
		cipher:  c,
		dir:     dir,
		fanout:  fan,
		log:     log.With().Str("component", "router").Logger(),
		timeout: 5 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SendPublic persists a public message and delivers it to every connection
func (r *Router) SendPublic(ctx context.Context, in PublicMessage) (Ack, error) {
	if err := validate(in.SenderID, in.Content); err != nil {
		metrics.SendFailures.WithLabelValues("validation").Inc()
		return Ack{}, err
	}

	msg := model.Message{
		SenderID:   in.SenderID,
		SenderName: in.SenderName,
		Scope:      model.ScopePublic,
	}
	if err := r.persist(ctx, &msg, in.Content); err != nil {
		return Ack{}, err
	}

	n := r.fanout.Broadcast(model.EventReceiveMessage, model.NewChatMessage(msg, in.Content))
	r.delivered(msg, n)

	return Ack{MessageID: msg.ID, CreatedAt: msg.CreatedAt, Delivered: n > 0, Deliveries: n}, nil
}

// SendPrivate persists a private message and delivers it to every connection
// of the recipient and of the sender.
func (r *Router) SendPrivate(ctx context.Context, in PrivateMessage) (Ack, error) {
	if err := validate(in.SenderID, in.Content); err != nil {
		metrics.SendFailures.WithLabelValues("validation").Inc()
		return Ack{}, err
	}
	if strings.TrimSpace(in.RecipientID) == "" {
		metrics.SendFailures.WithLabelValues("validation").Inc()
		return Ack{}, apperr.ErrMissingTarget
	}

	msg := model.Message{
		SenderID:    in.SenderID,
		SenderName:  in.SenderName,
		RecipientID: in.RecipientID,
		Scope:       model.ScopePrivate,
	}
	if err := r.persist(ctx, &msg, in.Content); err != nil {
		return Ack{}, err
	}

	recipientConns := r.dir.ConnectionsOf(in.RecipientID)
	targets := union(recipientConns, r.dir.ConnectionsOf(in.SenderID))

	n := r.fanout.SendTo(targets, model.EventReceivePrivateMessage, model.NewChatMessage(msg, in.Content))
	r.delivered(msg, n)

	ack := Ack{MessageID: msg.ID, CreatedAt: msg.CreatedAt, Delivered: len(recipientConns) > 0, Deliveries: n}
	if !ack.Delivered {
		r.log.Debug().Str("message_id", msg.ID).Str("recipient", in.RecipientID).Msg("recipient offline; stored for history")
	}
	return ack, nil
}

// persist encrypts content into msg.Body, stamps and stores msg.
// The insert is not canceled when the sending connection goes away.
func (r *Router) persist(ctx context.Context, msg *model.Message, content string) error {
	body, err := r.cipher.Encrypt(content)
	if err != nil {
		metrics.SendFailures.WithLabelValues("persistence").Inc()
		r.log.Error().Err(err).Msg("encrypt message")
		return apperr.Persistence(err)
	}
	msg.Body = body
	msg.CreatedAt = r.timestamp()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.store.Insert(ctx, msg); err != nil {
		metrics.SendFailures.WithLabelValues("persistence").Inc()
		r.log.Error().Err(err).Str("scope", string(msg.Scope)).Str("sender", msg.SenderID).Msg("persist message")
		return apperr.Persistence(err)
	}
	return nil
}

func (r *Router) delivered(msg model.Message, n int) {
	metrics.MessagesSent.WithLabelValues(string(msg.Scope)).Inc()
	metrics.Deliveries.WithLabelValues(string(msg.Scope)).Add(float64(n))
	if r.sink != nil {
		r.sink.Publish(msg)
	}
}

// timestamp returns strictly increasing millisecond timestamps so that
// a createdAt cursor, even one rounded to unix milliseconds, never splits
// messages sharing an instant.
func (r *Router) timestamp() time.Time {
	r.clockMu.Lock()
	defer r.clockMu.Unlock()

	t := model.Timestamp(r.now())
	if !t.After(r.last) {
		t = r.last.Add(time.Millisecond)
	}
	r.last = t
	return t
}

func validate(senderID, content string) error {
	if strings.TrimSpace(senderID) == "" {
		return apperr.ErrMissingSender
	}
	if strings.TrimSpace(content) == "" {
		return apperr.ErrEmptyContent
	}
	return nil
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
