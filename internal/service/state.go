// Package service wires the sidecar together: pool, embedding provider,
// stores and the migration registry, built once at startup and shared by
// the HTTP layer and the CLI.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nextlevelbuilder/pgclaw/internal/config"
	"github.com/nextlevelbuilder/pgclaw/internal/embedding"
	"github.com/nextlevelbuilder/pgclaw/internal/migration"
	"github.com/nextlevelbuilder/pgclaw/internal/store"
	"github.com/nextlevelbuilder/pgclaw/internal/store/pg"
)

// State is the composition root. Provider is non-nil even when embedding
// initialization failed; in that degraded state embedding-dependent
// operations return ErrUnavailable while relational ones keep working.
type State struct {
	Settings *config.Settings
	DB       *sqlx.DB
	Provider *embedding.Provider

	Memory      store.MemoryStore
	Sessions    store.SessionStore
	Transcripts store.TranscriptStore
	Migrations  *migration.Registry

	degraded  bool
	startedAt time.Time
}

// Health is the service health snapshot served by /health and the status
// CLI.
type Health struct {
	Status        string    `json:"status"` // "ok" or "degraded"
	EmbeddingMode string    `json:"embedding_mode"`
	Model         string    `json:"model"`
	ModelLoaded   bool      `json:"model_loaded"`
	SchemaVersion string    `json:"schema_version"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Pool          PoolStats `json:"pool"`
}

// PoolStats is a point-in-time view of connection pool utilization.
type PoolStats struct {
	Open  int `json:"open"`
	InUse int `json:"in_use"`
	Idle  int `json:"idle"`
	Max   int `json:"max"`
}

// New connects to Postgres, optionally applies the schema, initializes the
// embedding provider and builds the stores. A failed embedding probe does
// not fail startup; the state comes up degraded.
func New(ctx context.Context, settings *config.Settings) (*State, error) {
	db, err := pg.OpenDB(settings.PostgresDSN(), settings.PoolMin, settings.PoolMax)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if settings.AutoInit {
		if err := pg.MigrateSchema(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	s := &State{
		Settings:  settings,
		DB:        db,
		startedAt: time.Now(),
	}
	s.Provider = buildProvider(ctx, settings)
	if err := s.Provider.Initialize(ctx); err != nil {
		slog.Error("embedding unavailable, starting degraded", "error", err)
		s.degraded = true
	}

	memStore := pg.NewPGMemoryStore(db, s.Provider)
	s.Memory = memStore
	s.Sessions = pg.NewPGSessionStore(db)
	s.Transcripts = pg.NewPGTranscriptStore(db)
	s.Migrations = migration.NewRegistry(memStore, s.Provider, s.Sessions, s.Transcripts)
	return s, nil
}

func buildProvider(ctx context.Context, settings *config.Settings) *embedding.Provider {
	var remote embedding.RemoteBackend
	if backend, err := embedding.NewPGBackend(settings.PostgresDSN()); err != nil {
		slog.Warn("in-store embedding backend unreachable", "error", err)
	} else {
		remote = backend
	}

	var loadLocal embedding.LocalLoader
	if settings.LocalModelPath != "" {
		onnxCfg := embedding.OnnxConfig{
			ModelPath:     settings.LocalModelPath,
			TokenizerPath: settings.LocalTokenizerPath,
			LibraryPath:   settings.OnnxLibraryPath,
			Dims:          settings.EmbedDims,
		}
		loadLocal = func() (embedding.LocalModel, error) {
			return embedding.LoadOnnxModel(onnxCfg)
		}
	}

	provider := embedding.NewProvider(embedding.Config{
		Model:     settings.EmbedModel,
		Dims:      settings.EmbedDims,
		MaxChars:  settings.EmbedMaxChars,
		CacheSize: settings.CacheSize,
	}, remote, loadLocal)

	if settings.RedisURL != "" {
		if cache, err := embedding.NewRedisCache(ctx, settings.RedisURL); err != nil {
			slog.Warn("redis embedding cache unavailable", "error", err)
		} else {
			provider.SetSharedCache(cache)
		}
	}
	return provider
}

// Health snapshots embedding mode, schema version and pool utilization.
func (s *State) Health(ctx context.Context) Health {
	status := "ok"
	if s.degraded || s.Provider.Mode() == embedding.ModeNone {
		status = "degraded"
	}
	stats := s.DB.Stats()
	return Health{
		Status:        status,
		EmbeddingMode: s.Provider.Mode().String(),
		Model:         s.Provider.Model(),
		ModelLoaded:   s.Provider.Mode() != embedding.ModeNone,
		SchemaVersion: pg.SchemaVersion(s.DB),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Pool: PoolStats{
			Open:  stats.OpenConnections,
			InUse: stats.InUse,
			Idle:  stats.Idle,
			Max:   stats.MaxOpenConnections,
		},
	}
}

// Close releases the provider and the pool.
func (s *State) Close() error {
	if s.Provider != nil {
		if err := s.Provider.Close(); err != nil {
			slog.Warn("provider close", "error", err)
		}
	}
	return s.DB.Close()
}
