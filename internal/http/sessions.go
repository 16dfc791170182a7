package http

import (
	"net/http"

	"github.com/nextlevelbuilder/pgclaw/internal/store"
)

// SessionsHandler serves the session CRUD and maintenance endpoints.
type SessionsHandler struct {
	store store.SessionStore
	token string
}

func NewSessionsHandler(s store.SessionStore, token string) *SessionsHandler {
	return &SessionsHandler{store: s, token: token}
}

func (h *SessionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", requireAuth(h.token, h.handleList))
	mux.HandleFunc("PUT /api/sessions", requireAuth(h.token, h.handleUpsert))
	mux.HandleFunc("GET /api/sessions/{sessionKey}", requireAuth(h.token, h.handleGet))
	mux.HandleFunc("PATCH /api/sessions/{sessionKey}", requireAuth(h.token, h.handleUpdate))
	mux.HandleFunc("DELETE /api/sessions/{sessionKey}", requireAuth(h.token, h.handleDelete))
	mux.HandleFunc("POST /api/sessions/prune", requireAuth(h.token, h.handlePrune))
	mux.HandleFunc("POST /api/sessions/cap", requireAuth(h.token, h.handleCap))
}

func (h *SessionsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.List(r.Context(), r.URL.Query().Get("agent_id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}

func (h *SessionsHandler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var sess store.Session
	if !decodeBody(w, r, &sess) {
		return
	}
	if err := h.store.Upsert(r.Context(), sess); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stored": true, "session_key": sess.SessionKey})
}

func (h *SessionsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Get(r.Context(), r.PathValue("sessionKey"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionsHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var updates store.SessionUpdate
	if !decodeBody(w, r, &updates) {
		return
	}
	found, err := h.store.Update(r.Context(), r.PathValue("sessionKey"), updates)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": found})
}

func (h *SessionsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.Delete(r.Context(), r.PathValue("sessionKey"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

type pruneRequest struct {
	AgentID  string `json:"agent_id"`
	MaxAgeMs int64  `json:"max_age_ms"`
}

func (h *SessionsHandler) handlePrune(w http.ResponseWriter, r *http.Request) {
	var req pruneRequest
	if !decodeBody(w, r, &req) {
		return
	}
	pruned, err := h.store.PruneStale(r.Context(), req.AgentID, req.MaxAgeMs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pruned": pruned})
}

type capRequest struct {
	AgentID  string `json:"agent_id"`
	MaxCount int    `json:"max_count"`
}

func (h *SessionsHandler) handleCap(w http.ResponseWriter, r *http.Request) {
	var req capRequest
	if !decodeBody(w, r, &req) {
		return
	}
	removed, err := h.store.CapCount(r.Context(), req.AgentID, req.MaxCount)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}
