package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/pgclaw/internal/store"
)

// TranscriptsHandler serves the append-only transcript endpoints.
type TranscriptsHandler struct {
	store store.TranscriptStore
	token string
}

func NewTranscriptsHandler(s store.TranscriptStore, token string) *TranscriptsHandler {
	return &TranscriptsHandler{store: s, token: token}
}

func (h *TranscriptsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/transcripts", requireAuth(h.token, h.handleAppend))
	mux.HandleFunc("GET /api/transcripts/{sessionID}", requireAuth(h.token, h.handleGetEvents))
	mux.HandleFunc("GET /api/transcripts/{sessionID}/header", requireAuth(h.token, h.handleGetHeader))
	mux.HandleFunc("DELETE /api/transcripts/{sessionID}", requireAuth(h.token, h.handleDelete))
}

type appendRequest struct {
	SessionID string          `json:"session_id"`
	AgentID   string          `json:"agent_id"`
	EventType string          `json:"event_type"`
	EventData json.RawMessage `json:"event_data"`
}

func (h *TranscriptsHandler) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req appendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	event, err := h.store.Append(r.Context(), req.SessionID, req.AgentID, req.EventType, req.EventData)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *TranscriptsHandler) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 100)
	events, err := h.store.GetEvents(r.Context(), r.PathValue("sessionID"), offset, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if events == nil {
		events = []store.TranscriptEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func (h *TranscriptsHandler) handleGetHeader(w http.ResponseWriter, r *http.Request) {
	header, err := h.store.GetHeader(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, header)
}

func (h *TranscriptsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.DeleteSession(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
