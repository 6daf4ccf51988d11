package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/hypley-ai/hypley-live/pkg/core"
	"github.com/hypley-ai/hypley-live/pkg/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryHandler serves stored conversations.
type HistoryHandler struct {
	Store store.Store
}

// Conversations handles GET /v1/conversations.
func (h HistoryHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	convs, err := h.Store.Conversations(r.Context(), limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"conversations": convs})
}

// Messages handles GET /v1/conversations/{id}/messages.
func (h HistoryHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeErr(w, r, core.NewInvalidRequestErrorWithParam("conversation id is required", "id"))
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	msgs, err := h.Store.RecentMessages(r.Context(), id, limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if len(msgs) == 0 {
		writeErr(w, r, core.NewNotFoundError("conversation "+id))
		return
	}
	writeJSON(w, map[string]any{"conversation_id": id, "messages": msgs})
}

func limitParam(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxHistoryLimit {
		return 0, core.NewInvalidRequestErrorWithParam("limit must be between 1 and 500", "limit")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
