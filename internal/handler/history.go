package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lanchat/internal/apperr"
	"lanchat/internal/auth"
	"lanchat/internal/model"
)

// GetHistory handles GET /api/history
//
//	?scope=public|private&fromUserId=&toUserId=&limit=&before=
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	q := r.URL.Query()

	conv, err := conversationFor(caller, q.Get("scope"), q.Get("fromUserId"), q.Get("toUserId"))
	if err != nil {
		h.Error(w, apperr.HTTPStatus(err), apperr.PublicMessage(err))
		return
	}

	limit := 0
	if s := q.Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
	}

	var before *time.Time
	if s := q.Get("before"); s != "" {
		t, err := parseBefore(s)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "before must be RFC3339 or unix milliseconds")
			return
		}
		before = &t
	}

	page, err := h.History.Page(r.Context(), conv, limit, before)
	if err != nil {
		h.Error(w, apperr.HTTPStatus(err), apperr.PublicMessage(err))
		return
	}

	h.JSON(w, http.StatusOK, model.HistoryPage{Messages: page.Messages, HasMore: page.HasMore})
}

// GetOnline handles GET /api/online
func (h *Handler) GetOnline(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, h.Roster.Online())
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.Store.Ping(ctx); err != nil {
		h.Log.Error().Err(err).Msg("health check: store unreachable")
		h.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": "unreachable"})
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok", "store": h.Config.StoreDriver})
}

// conversationFor resolves the query to a conversation the caller may read
func conversationFor(caller auth.Identity, scope, from, to string) (model.Conversation, error) {
	switch strings.ToLower(scope) {
	case "", string(model.ScopePublic):
		return model.Public(), nil
	case string(model.ScopePrivate):
		if from == "" {
			from = caller.UserID
		}
		if to == "" {
			return model.Conversation{}, apperr.ErrMissingTarget
		}
		conv := model.Private(from, to)
		if !conv.Includes(caller.UserID) {
			return model.Conversation{}, apperr.ErrForeignHistory
		}
		return conv, nil
	default:
		return model.Conversation{}, apperr.InvalidArg("scope must be public or private")
	}
}

func parseBefore(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
