package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"lanchat/internal/auth"
	"lanchat/internal/config"
	"lanchat/internal/history"
	"lanchat/internal/model"
)

// HistoryPager is the paginator as seen by the HTTP layer
type HistoryPager interface {
	Page(ctx context.Context, conv model.Conversation, limit int, before *time.Time) (history.Page, error)
}

// Roster lists online connections
type Roster interface {
	Online() []model.PresenceEntry
}

// Pinger reports store health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds application dependencies
type Handler struct {
	Config   config.Config
	Verifier auth.TokenVerifier
	History  HistoryPager
	Roster   Roster
	Store    Pinger
	Realtime http.Handler
	Log      zerolog.Logger
}

// New creates a new Handler with the given dependencies
func New(cfg config.Config, verifier auth.TokenVerifier, pager HistoryPager, roster Roster, st Pinger, realtime http.Handler, log zerolog.Logger) *Handler {
	return &Handler{
		Config:   cfg,
		Verifier: verifier,
		History:  pager,
		Roster:   roster,
		Store:    st,
		Realtime: realtime,
		Log:      log.With().Str("component", "http").Logger(),
	}
}

// SetupRouter configures and returns the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(Metrics)
	r.Use(Logger(h.Log))

	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// REST API (Bearer token)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.RequireAuth)
	api.HandleFunc("/history", h.GetHistory).Methods("GET")
	api.HandleFunc("/online", h.GetOnline).Methods("GET")

	// WebSocket (認証はアップグレード前に gateway が行う)
	r.Handle("/ws", h.Realtime).Methods("GET")

	return r
}

// JSON writes data with the given status code
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
