package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanchat/internal/apperr"
	"lanchat/internal/cipher"
	"lanchat/internal/model"
	"lanchat/internal/presence"
	"lanchat/internal/store"
)

type delivery struct {
	conn  string
	event string
	msg   model.ChatMessage
}

// fakeHub records deliveries to a fixed set of live connections
type fakeHub struct {
	mu    sync.Mutex
	live  []string
	sends []delivery
}

func (h *fakeHub) Broadcast(event string, payload any) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.live {
		h.sends = append(h.sends, delivery{c, event, payload.(model.ChatMessage)})
	}
	return len(h.live)
}

func (h *fakeHub) SendTo(ids []string, event string, payload any) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range ids {
		h.sends = append(h.sends, delivery{c, event, payload.(model.ChatMessage)})
	}
	return len(ids)
}

type failingStore struct{ *store.MemoryStore }

func (failingStore) Insert(context.Context, *model.Message) error {
	return errors.New("disk full")
}

type sinkRecorder struct{ msgs []model.Message }

func (s *sinkRecorder) Publish(m model.Message) { s.msgs = append(s.msgs, m) }

type fixture struct {
	router   *Router
	store    *store.MemoryStore
	cipher   *cipher.AESGCM
	registry *presence.Registry
	hub      *fakeHub
	sink     *sinkRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := cipher.New("router-test")
	require.NoError(t, err)

	f := &fixture{
		store:    store.NewMemoryStore(),
		cipher:   c,
		registry: presence.NewRegistry(nil),
		hub:      &fakeHub{},
		sink:     &sinkRecorder{},
	}
	f.router = New(f.store, c, f.registry, f.hub, zerolog.Nop(), WithSink(f.sink))
	return f
}

func (f *fixture) online(conn, user string) {
	f.registry.Put(model.PresenceEntry{ConnectionID: conn, UserID: user, Username: user})
	f.hub.live = append(f.hub.live, conn)
}

func TestSendPublic_PersistsEncryptedAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	f.online("c1", "alice")
	f.online("c2", "bob")

	ack, err := f.router.SendPublic(context.Background(), PublicMessage{SenderID: "alice", SenderName: "Alice", Content: "おはよう 👋"})
	require.NoError(t, err)
	assert.NotEmpty(t, ack.MessageID)
	assert.Equal(t, 2, ack.Deliveries)

	stored, err := f.store.Query(context.Background(), store.Query{Conversation: model.Public()})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, model.ScopePublic, stored[0].Scope)
	assert.Empty(t, stored[0].RecipientID)
	assert.NotEqual(t, "おはよう 👋", stored[0].Body)

	plain, err := f.cipher.Decrypt(stored[0].Body)
	require.NoError(t, err)
	assert.Equal(t, "おはよう 👋", plain)

	require.Len(t, f.hub.sends, 2)
	for _, d := range f.hub.sends {
		assert.Equal(t, model.EventReceiveMessage, d.event)
		assert.Equal(t, "おはよう 👋", d.msg.Content)
		assert.Equal(t, ack.MessageID, d.msg.ID)
	}
	require.Len(t, f.sink.msgs, 1)
	assert.Equal(t, stored[0].Body, f.sink.msgs[0].Body)
}

func TestSendPrivate_ReachesAllRecipientAndSenderConnections(t *testing.T) {
	f := newFixture(t)
	f.online("a1", "A")
	f.online("b1", "B")
	f.online("b2", "B")
	f.online("c1", "C")

	ack, err := f.router.SendPrivate(context.Background(), PrivateMessage{SenderID: "A", SenderName: "A", RecipientID: "B", Content: "hi B"})
	require.NoError(t, err)
	assert.True(t, ack.Delivered)
	assert.Equal(t, 3, ack.Deliveries)

	var conns []string
	for _, d := range f.hub.sends {
		assert.Equal(t, model.EventReceivePrivateMessage, d.event)
		assert.Equal(t, "B", d.msg.ToUserID)
		conns = append(conns, d.conn)
	}
	assert.ElementsMatch(t, []string{"a1", "b1", "b2"}, conns)
	assert.Equal(t, 1, f.store.Len())
}

func TestSendPrivate_ToSelfDeduplicates(t *testing.T) {
	f := newFixture(t)
	f.online("a1", "A")
	f.online("a2", "A")

	ack, err := f.router.SendPrivate(context.Background(), PrivateMessage{SenderID: "A", RecipientID: "A", Content: "note to self"})
	require.NoError(t, err)
	assert.Equal(t, 2, ack.Deliveries)
}

func TestSendPrivate_OfflineRecipient(t *testing.T) {
	f := newFixture(t)
	f.online("a1", "A")

	ack, err := f.router.SendPrivate(context.Background(), PrivateMessage{SenderID: "A", RecipientID: "B", Content: "are you there?"})
	require.NoError(t, err)
	assert.False(t, ack.Delivered)
	assert.Equal(t, 1, ack.Deliveries, "sender echo still happens")

	stored, err := f.store.Query(context.Background(), store.Query{Conversation: model.Private("B", "A")})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestSend_RejectsBlankContent(t *testing.T) {
	f := newFixture(t)
	f.online("a1", "A")

	for _, content := range []string{"", "   ", "\n\t "} {
		_, err := f.router.SendPublic(context.Background(), PublicMessage{SenderID: "A", Content: content})
		assert.ErrorIs(t, err, apperr.ErrEmptyContent)

		_, err = f.router.SendPrivate(context.Background(), PrivateMessage{SenderID: "A", RecipientID: "B", Content: content})
		assert.ErrorIs(t, err, apperr.ErrEmptyContent)
	}

	_, err := f.router.SendPublic(context.Background(), PublicMessage{Content: "x"})
	assert.ErrorIs(t, err, apperr.ErrMissingSender)

	_, err = f.router.SendPrivate(context.Background(), PrivateMessage{SenderID: "A", RecipientID: " ", Content: "x"})
	assert.ErrorIs(t, err, apperr.ErrMissingTarget)

	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.hub.sends)
	assert.Empty(t, f.sink.msgs)
}

func TestSend_PersistenceFailureSkipsFanout(t *testing.T) {
	f := newFixture(t)
	f.online("a1", "A")
	r := New(failingStore{store.NewMemoryStore()}, f.cipher, f.registry, f.hub, zerolog.Nop())

	_, err := r.SendPublic(context.Background(), PublicMessage{SenderID: "A", Content: "lost"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUnavailable, apperr.CodeOf(err))
	assert.Equal(t, "send failed", apperr.PublicMessage(err))

	_, err = r.SendPrivate(context.Background(), PrivateMessage{SenderID: "A", RecipientID: "A", Content: "lost"})
	require.Error(t, err)
	assert.Empty(t, f.hub.sends)
}

func TestSend_CanceledContextStillPersists(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.router.SendPublic(ctx, PublicMessage{SenderID: "A", Content: "sent while closing"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.Len())
}

func TestTimestamp_StrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t)
	r := New(f.store, f.cipher, f.registry, f.hub, zerolog.Nop(), WithClock(func() time.Time { return fixed }))

	var prev time.Time
	for i := 0; i < 5; i++ {
		ack, err := r.SendPublic(context.Background(), PublicMessage{SenderID: "A", Content: "same instant"})
		require.NoError(t, err)
		assert.True(t, ack.CreatedAt.After(prev))
		prev = ack.CreatedAt
	}
}

func TestTimestamp_SubMillisecondClockStaysDistinctPerMillisecond(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(300 * time.Microsecond)
		return now
	}
	f := newFixture(t)
	r := New(f.store, f.cipher, f.registry, f.hub, zerolog.Nop(), WithClock(clock))

	seen := make(map[int64]bool)
	var prev time.Time
	for i := 0; i < 20; i++ {
		ack, err := r.SendPublic(context.Background(), PublicMessage{SenderID: "A", Content: "burst"})
		require.NoError(t, err)
		assert.Zero(t, ack.CreatedAt.Nanosecond()%int(time.Millisecond), "createdAt %v is not whole milliseconds", ack.CreatedAt)
		assert.True(t, ack.CreatedAt.After(prev))
		assert.False(t, seen[ack.CreatedAt.UnixMilli()])
		seen[ack.CreatedAt.UnixMilli()] = true
		prev = ack.CreatedAt
	}
}
