package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanchat/internal/auth"
	"lanchat/internal/cipher"
	"lanchat/internal/config"
	"lanchat/internal/history"
	"lanchat/internal/model"
	"lanchat/internal/presence"
	"lanchat/internal/router"
	"lanchat/internal/store"
)

const testSecret = "handler-test-secret"

type staticRoster []model.PresenceEntry

func (r staticRoster) Online() []model.PresenceEntry { return r }

type downStore struct{ *store.MemoryStore }

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

var t0 = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

// newTestHandler テスト用のHandlerを生成
func newTestHandler(t *testing.T) (*Handler, *store.MemoryStore) {
	t.Helper()
	c, err := cipher.New("handler-test")
	require.NoError(t, err)
	st := store.NewMemoryStore()

	insert := func(i int, from, to string) {
		body, err := c.Encrypt(fmt.Sprintf("%s says %d", from, i))
		require.NoError(t, err)
		m := &model.Message{SenderID: from, RecipientID: to, Scope: model.ScopePublic, Body: body, CreatedAt: t0.Add(time.Duration(i) * time.Minute)}
		if to != "" {
			m.Scope = model.ScopePrivate
		}
		require.NoError(t, st.Insert(context.Background(), m))
	}
	for i := 0; i < 5; i++ {
		insert(i, "alice", "")
	}
	insert(10, "alice", "bob")
	insert(11, "bob", "alice")

	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	roster := staticRoster{{ConnectionID: "c1", UserID: "alice", Username: "Alice", RemoteAddress: "10.0.0.7"}}

	h := New(config.Config{StoreDriver: "memory"}, auth.NewJWTVerifier(testSecret),
		history.NewPaginator(st, c, zerolog.Nop()), roster, st, ws, zerolog.Nop())
	return h, st
}

func get(t *testing.T, h *Handler, path, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if userID != "" {
		tok, err := auth.Sign(testSecret, auth.Identity{UserID: userID}, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(w, req)
	return w
}

func decodePage(t *testing.T, w *httptest.ResponseRecorder) model.HistoryPage {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var page model.HistoryPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	return page
}

func TestGetHistory_RequiresBearer(t *testing.T) {
	h, _ := newTestHandler(t)

	w := get(t, h, "/api/history", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest("GET", "/api/history", nil)
	req.Header.Set("Authorization", "Bearer forged.token.value")
	w = httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var errResp map[string]string
	json.Unmarshal(w.Body.Bytes(), &errResp)
	assert.Equal(t, "invalid credential", errResp["error"])
}

func TestGetHistory_PublicPaging(t *testing.T) {
	h, _ := newTestHandler(t)

	page := decodePage(t, get(t, h, "/api/history?limit=3", "carol"))
	require.Len(t, page.Messages, 3)
	assert.True(t, page.HasMore)
	assert.Equal(t, "alice says 2", page.Messages[0].Content)
	assert.Equal(t, "alice says 4", page.Messages[2].Content)

	before := page.Messages[0].CreatedAt
	page = decodePage(t, get(t, h, "/api/history?limit=3&before="+before.Format(time.RFC3339Nano), "carol"))
	require.Len(t, page.Messages, 2)
	assert.False(t, page.HasMore)
	assert.Equal(t, "alice says 0", page.Messages[0].Content)

	ms := strconv.FormatInt(before.UnixMilli(), 10)
	page = decodePage(t, get(t, h, "/api/history?scope=public&limit=3&before="+ms, "carol"))
	assert.Len(t, page.Messages, 2)
}

func TestGetHistory_Private(t *testing.T) {
	h, _ := newTestHandler(t)

	page := decodePage(t, get(t, h, "/api/history?scope=private&toUserId=alice", "bob"))
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "alice says 10", page.Messages[0].Content)
	assert.Equal(t, "bob says 11", page.Messages[1].Content)
	assert.Equal(t, "alice", page.Messages[1].ToUserID)

	// same conversation from the other side
	page = decodePage(t, get(t, h, "/api/history?scope=private&fromUserId=bob&toUserId=alice", "alice"))
	assert.Len(t, page.Messages, 2)

	w := get(t, h, "/api/history?scope=private&fromUserId=alice&toUserId=bob", "mallory")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetHistory_BadRequests(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, path := range []string{
		"/api/history?scope=private",
		"/api/history?scope=group",
		"/api/history?limit=ten",
		"/api/history?before=yesterday",
	} {
		w := get(t, h, path, "alice")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestGetOnline(t *testing.T) {
	h, _ := newTestHandler(t)

	w := get(t, h, "/api/online", "bob")
	require.Equal(t, http.StatusOK, w.Code)
	var roster []model.PresenceEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &roster))
	require.Len(t, roster, 1)
	assert.Equal(t, "alice", roster[0].UserID)
	assert.Equal(t, "10.0.0.7", roster[0].RemoteAddress)

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/online", "").Code)
}

func TestHealth(t *testing.T) {
	h, st := newTestHandler(t)
	assert.Equal(t, http.StatusOK, get(t, h, "/health", "").Code)

	h.Store = downStore{st}
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/health", "").Code)
}

func TestRoutes_WebSocketAndMetrics(t *testing.T) {
	h, _ := newTestHandler(t)

	assert.Equal(t, http.StatusTeapot, get(t, h, "/ws", "").Code)

	w := get(t, h, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lanchat_http_requests_total")
}

func TestConversationFor(t *testing.T) {
	me := auth.Identity{UserID: "me"}

	conv, err := conversationFor(me, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, model.Public(), conv)

	conv, err = conversationFor(me, "PRIVATE", "", "you")
	require.NoError(t, err)
	assert.Equal(t, model.Private("me", "you"), conv)
}

type discardFanout struct{}

func (discardFanout) Broadcast(string, any) int        { return 0 }
func (discardFanout) SendTo([]string, string, any) int { return 0 }

func TestGetHistory_MillisecondCursorChainsRouterMessages(t *testing.T) {
	c, err := cipher.New("handler-test")
	require.NoError(t, err)
	st := store.NewMemoryStore()

	// 300µs apart: several sends land inside one millisecond
	now := t0
	clock := func() time.Time {
		now = now.Add(300 * time.Microsecond)
		return now
	}
	rt := router.New(st, c, presence.NewRegistry(nil), discardFanout{}, zerolog.Nop(), router.WithClock(clock))
	for i := 0; i < 120; i++ {
		_, err := rt.SendPublic(context.Background(), router.PublicMessage{SenderID: "alice", Content: fmt.Sprintf("burst %d", i)})
		require.NoError(t, err)
	}

	h := New(config.Config{StoreDriver: "memory"}, auth.NewJWTVerifier(testSecret),
		history.NewPaginator(st, c, zerolog.Nop()), staticRoster{}, st, http.NotFoundHandler(), zerolog.Nop())

	seen := make(map[string]bool)
	var sizes []int
	path := "/api/history?limit=50"
	for {
		page := decodePage(t, get(t, h, path, "carol"))
		sizes = append(sizes, len(page.Messages))
		for _, m := range page.Messages {
			assert.False(t, seen[m.ID], "duplicate %s", m.ID)
			seen[m.ID] = true
		}
		if !page.HasMore {
			break
		}
		oldest := page.Messages[0].CreatedAt
		path = "/api/history?limit=50&before=" + strconv.FormatInt(oldest.UnixMilli(), 10)
	}

	assert.Equal(t, []int{50, 50, 20}, sizes)
	assert.Len(t, seen, 120)
}
