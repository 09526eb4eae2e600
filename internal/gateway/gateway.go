// Package gateway authenticates websocket connections and turns client
// frames into presence and routing operations.
package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"lanchat/internal/apperr"
	"lanchat/internal/auth"
	"lanchat/internal/metrics"
	"lanchat/internal/model"
	"lanchat/internal/presence"
	"lanchat/internal/router"
)

// Sender is the message router as seen by the gateway
type Sender interface {
	SendPublic(ctx context.Context, in router.PublicMessage) (router.Ack, error)
	SendPrivate(ctx context.Context, in router.PrivateMessage) (router.Ack, error)
}

// Config holds per-connection limits and the origin allow-list
type Config struct {
	AllowedOrigins []string
	MaxMessageSize int64
	RateBurst      int
	RatePerSecond  float64
}

// Gateway serves the websocket endpoint and owns every live connection
type Gateway struct {
	cfg      Config
	verifier auth.TokenVerifier
	registry *presence.Registry
	hub      *Hub
	router   Sender
	upgrader websocket.Upgrader
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex // guards closing and wg.Add
	closing bool
}

// New wires a gateway. registry must publish its roster through hub.
func New(cfg Config, verifier auth.TokenVerifier, registry *presence.Registry, hub *Hub, sender Sender, log zerolog.Logger) *Gateway {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 5
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		cfg:      cfg,
		verifier: verifier,
		registry: registry,
		hub:      hub,
		router:   sender,
		upgrader: createUpgrader(cfg.AllowedOrigins),
		log:      log.With().Str("component", "gateway").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// createUpgrader creates a WebSocket upgrader with the given allowed origins.
// Requests without an Origin header come from non-browser clients and are allowed.
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowedMap := make(map[string]bool)
	allowAll := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
			continue
		}
		if o, ok := normalizeOrigin(origin); ok {
			allowedMap[o] = true
		}
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll {
				return true
			}
			o, ok := normalizeOrigin(origin)
			return ok && allowedMap[o]
		},
	}
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// Authenticate validates a credential before any upgrade happens
func (g *Gateway) Authenticate(ctx context.Context, credential string) (auth.Identity, error) {
	if credential == "" {
		return auth.Identity{}, apperr.ErrAuthMissing
	}
	id, err := g.verifier.Verify(ctx, credential)
	if err != nil {
		return auth.Identity{}, apperr.Wrap(apperr.CodeUnauthenticated, "invalid credential", err)
	}
	return id, nil
}

// ServeHTTP handles GET /ws
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.isClosing() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	credential, _ := auth.CredentialFromRequest(r)
	identity, err := g.Authenticate(r.Context(), credential)
	if err != nil {
		metrics.AuthFailures.Inc()
		g.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket auth refused")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": apperr.PublicMessage(err)})
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade error")
		return
	}

	g.Accept(ws, identity, remoteHost(r.RemoteAddr))
}

// Accept binds identity to ws, registers the connection and starts its pumps.
// The new connection receives the current roster before any later roster
// broadcast. Once Shutdown has begun ws is closed and Accept returns nil.
func (g *Gateway) Accept(ws *websocket.Conn, identity auth.Identity, remoteAddr string) *Conn {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		g.log.Debug().Str("remote_addr", remoteAddr).Msg("connection accepted during shutdown; closing")
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		ws.Close()
		return nil
	}

	ctx, cancel := context.WithCancel(g.ctx)
	id := uuid.NewString()
	c := &Conn{
		id:         id,
		ws:         ws,
		gw:         g,
		identity:   identity,
		remoteAddr: remoteAddr,
		log: g.log.With().
			Str("conn_id", id).
			Str("user_id", identity.UserID).
			Str("remote_addr", remoteAddr).
			Logger(),
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		limiter: rate.NewLimiter(rate.Limit(g.cfg.RatePerSecond), g.cfg.RateBurst),
	}
	c.state.Store(int32(StateConnected))

	g.registry.Observe(func(roster []model.PresenceEntry) {
		g.hub.add(c)
		c.sendEvent(model.EventUpdateOnlineUsers, "", roster)
	})

	metrics.ConnectionsActive.Inc()
	c.log.Info().Int("total_clients", g.hub.Len()).Msg("new websocket connection")

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		c.writePump()
	}()
	go func() {
		defer g.wg.Done()
		c.readPump()
	}()
	return c
}

func (g *Gateway) isClosing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closing
}

// Online returns the current roster
func (g *Gateway) Online() []model.PresenceEntry {
	return g.registry.Snapshot()
}

// Shutdown closes every connection and waits for their pumps to exit
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	for _, c := range g.hub.snapshot() {
		c.Close()
	}
	g.cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
