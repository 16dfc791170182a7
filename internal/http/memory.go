package http

import (
	"net/http"

	"github.com/nextlevelbuilder/pgclaw/internal/memory"
	"github.com/nextlevelbuilder/pgclaw/internal/store"
)

// MemoryHandler serves the chunk, file and long-term memory endpoints.
type MemoryHandler struct {
	store store.MemoryStore
	token string
}

func NewMemoryHandler(s store.MemoryStore, token string) *MemoryHandler {
	return &MemoryHandler{store: s, token: token}
}

// RegisterRoutes registers all memory routes on the given mux.
func (h *MemoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/memory/search", requireAuth(h.token, h.handleSearch))
	mux.HandleFunc("POST /api/memory/chunks", requireAuth(h.token, h.handleStoreChunk))
	mux.HandleFunc("POST /api/memory/chunks/batch", requireAuth(h.token, h.handleStoreBatch))
	mux.HandleFunc("DELETE /api/memory/chunks/{chunkID}", requireAuth(h.token, h.handleDeleteChunk))
	mux.HandleFunc("POST /api/memory/files/sync", requireAuth(h.token, h.handleSyncFiles))
	mux.HandleFunc("DELETE /api/memory/files/{fileID}", requireAuth(h.token, h.handleDeleteFile))
	mux.HandleFunc("GET /api/memory/status", requireAuth(h.token, h.handleStatus))
	mux.HandleFunc("POST /api/memory/remember", requireAuth(h.token, h.handleRemember))
	mux.HandleFunc("POST /api/memory/recall", requireAuth(h.token, h.handleRecall))
	mux.HandleFunc("DELETE /api/memory/forget/{memoryID}", requireAuth(h.token, h.handleForget))
	mux.HandleFunc("GET /api/memory/count", requireAuth(h.token, h.handleCount))
}

type searchRequest struct {
	Query      string  `json:"query"`
	MaxResults int     `json:"max_results"`
	MinScore   float64 `json:"min_score"`
	Source     string  `json:"source"`
	Hybrid     bool    `json:"hybrid"`
}

func (h *MemoryHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	results, err := h.store.Search(r.Context(), req.Query, memory.SearchOptions{
		MaxResults: req.MaxResults,
		MinScore:   req.MinScore,
		Source:     req.Source,
		Hybrid:     req.Hybrid,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if results == nil {
		results = []memory.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

func (h *MemoryHandler) handleStoreChunk(w http.ResponseWriter, r *http.Request) {
	var chunk memory.Chunk
	if !decodeBody(w, r, &chunk) {
		return
	}
	if err := h.store.StoreChunk(r.Context(), chunk); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stored": true, "id": chunk.ID})
}

func (h *MemoryHandler) handleStoreBatch(w http.ResponseWriter, r *http.Request) {
	var chunks []memory.Chunk
	if !decodeBody(w, r, &chunks) {
		return
	}
	result := h.store.StoreChunksBatch(r.Context(), chunks)
	if result.Errors == nil {
		result.Errors = []store.BatchError{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *MemoryHandler) handleDeleteChunk(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.DeleteChunk(r.Context(), r.PathValue("chunkID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (h *MemoryHandler) handleSyncFiles(w http.ResponseWriter, r *http.Request) {
	var files []memory.File
	if !decodeBody(w, r, &files) {
		return
	}
	synced, err := h.store.SyncFiles(r.Context(), files)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"synced": synced})
}

func (h *MemoryHandler) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.DeleteFile(r.Context(), r.PathValue("fileID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (h *MemoryHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Status(r.Context()))
}

type rememberRequest struct {
	Text       string  `json:"text"`
	AgentID    string  `json:"agent_id"`
	Importance float64 `json:"importance"`
	Category   string  `json:"category"`
}

func (h *MemoryHandler) handleRemember(w http.ResponseWriter, r *http.Request) {
	req := rememberRequest{Importance: 0.7}
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := h.store.Remember(r.Context(), req.Text, req.AgentID, req.Importance, req.Category)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"memory_id": id})
}

type recallRequest struct {
	Query      string  `json:"query"`
	AgentID    string  `json:"agent_id"`
	MaxResults int     `json:"max_results"`
	MinScore   float64 `json:"min_score"`
}

func (h *MemoryHandler) handleRecall(w http.ResponseWriter, r *http.Request) {
	var req recallRequest
	if !decodeBody(w, r, &req) {
		return
	}
	results, err := h.store.Recall(r.Context(), req.Query, req.AgentID, req.MaxResults, req.MinScore)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if results == nil {
		results = []memory.RecallResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

func (h *MemoryHandler) handleForget(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.Forget(r.Context(), r.PathValue("memoryID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (h *MemoryHandler) handleCount(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	count, err := h.store.CountMemories(r.Context(), agentID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}
