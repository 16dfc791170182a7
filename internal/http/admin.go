package http

import (
	"errors"
	"net/http"

	"github.com/nextlevelbuilder/pgclaw/internal/migration"
	"github.com/nextlevelbuilder/pgclaw/internal/service"
	"github.com/nextlevelbuilder/pgclaw/internal/store/pg"
)

// AdminHandler serves health, schema init and migration control endpoints.
type AdminHandler struct {
	state *service.State
	token string
}

func NewAdminHandler(state *service.State, token string) *AdminHandler {
	return &AdminHandler{state: state, token: token}
}

func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	// Health stays unauthenticated so load balancers can poll it.
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("POST /api/init", requireAuth(h.token, h.handleInit))
	mux.HandleFunc("POST /api/migrate/sqlite", requireAuth(h.token, h.handleMigrateSQLite))
	mux.HandleFunc("POST /api/migrate/sessions", requireAuth(h.token, h.handleMigrateSessions))
	mux.HandleFunc("POST /api/migrate/transcripts", requireAuth(h.token, h.handleMigrateTranscripts))
	mux.HandleFunc("GET /api/migrate/status", requireAuth(h.token, h.handleMigrateStatus))
}

func (h *AdminHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.Health(r.Context()))
}

func (h *AdminHandler) handleInit(w http.ResponseWriter, r *http.Request) {
	if err := pg.MigrateSchema(h.state.DB); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "initialized",
		"schema_version": pg.SchemaVersion(h.state.DB),
	})
}

type sqliteMigrateRequest struct {
	SQLitePath string `json:"sqlite_path"`
}

func (h *AdminHandler) handleMigrateSQLite(w http.ResponseWriter, r *http.Request) {
	var req sqliteMigrateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.startMigration(w, h.state.Migrations.StartSQLite(req.SQLitePath))
}

type sessionsMigrateRequest struct {
	SessionsPath string `json:"sessions_path"`
}

func (h *AdminHandler) handleMigrateSessions(w http.ResponseWriter, r *http.Request) {
	var req sessionsMigrateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.startMigration(w, h.state.Migrations.StartSessions(req.SessionsPath))
}

type transcriptsMigrateRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode"` // "file" (default) or "directory"
}

func (h *AdminHandler) handleMigrateTranscripts(w http.ResponseWriter, r *http.Request) {
	var req transcriptsMigrateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.startMigration(w, h.state.Migrations.StartTranscripts(req.Path, req.Mode == "directory"))
}

func (h *AdminHandler) startMigration(w http.ResponseWriter, err error) {
	if errors.Is(err, migration.ErrBusy) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *AdminHandler) handleMigrateStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.Migrations.Status())
}
