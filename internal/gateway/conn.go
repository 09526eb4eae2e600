package gateway

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"lanchat/internal/apperr"
	"lanchat/internal/auth"
	"lanchat/internal/metrics"
	"lanchat/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// State is the handshake phase of a connection
type State int32

const (
	StateConnected State = iota
	StateIdentified
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateIdentified:
		return "identified"
	default:
		return "closed"
	}
}

var errConnClosed = errors.New("connection closed")

// Conn is one authenticated websocket connection
type Conn struct {
	id         string
	ws         *websocket.Conn
	gw         *Gateway
	identity   auth.Identity
	remoteAddr string
	log        zerolog.Logger

	send    chan []byte
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter

	lifeMu sync.Mutex // guards state transitions
	state  atomic.Int32
}

func (c *Conn) State() State { return State(c.state.Load()) }

// enqueue never blocks. A full queue closes the connection.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		metrics.SlowConsumers.Inc()
		c.log.Warn().Msg("send queue full; closing slow connection")
		// callers may hold the registry lock
		go c.Close()
		return false
	}
}

func (c *Conn) sendEvent(event, ackID string, payload any) {
	frame, err := encodeFrame(event, ackID, payload)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("encode frame")
		return
	}
	c.enqueue(frame)
}

// Identify enters the connection into the roster as its authenticated user.
func (c *Conn) Identify(username, claimedUserID string) error {
	if claimedUserID != "" && claimedUserID != c.identity.UserID {
		return apperr.ErrUserMismatch
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username = c.identity.Username
	}
	if username == "" {
		username = c.identity.UserID
	}

	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.State() == StateClosed {
		return errConnClosed
	}

	c.gw.registry.Put(model.PresenceEntry{
		ConnectionID:  c.id,
		UserID:        c.identity.UserID,
		Username:      username,
		RemoteAddress: c.remoteAddr,
	})
	c.state.Store(int32(StateIdentified))
	return nil
}

// Close tears the connection down once: hub, roster, socket.
func (c *Conn) Close() {
	c.lifeMu.Lock()
	if c.State() == StateClosed {
		c.lifeMu.Unlock()
		return
	}
	c.state.Store(int32(StateClosed))
	close(c.done)
	c.cancel()
	c.lifeMu.Unlock()

	c.gw.hub.remove(c.id)
	c.gw.registry.Remove(c.id)
	if err := c.ws.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Debug().Err(err).Msg("close socket")
	}

	metrics.ConnectionsActive.Dec()
	c.log.Info().Int("total_clients", c.gw.hub.Len()).Msg("client disconnected")
}

func (c *Conn) readPump() {
	defer c.Close()

	c.ws.SetReadLimit(c.gw.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if c.State() == StateClosed {
			return
		}
		c.gw.handleFrame(c, raw)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Debug().Err(err).Msg("write message")
				}
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Conn) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("max_bytes", c.gw.cfg.MaxMessageSize).Msg("message exceeded maximum size")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway),
		errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("connection closed by peer")
	default:
		c.log.Info().Err(err).Msg("websocket read error")
	}
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
