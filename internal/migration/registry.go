package migration

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/pgclaw/internal/store"
)

// ErrBusy is returned when a migration start request arrives while another
// run is in flight.
var ErrBusy = errors.New("a migration is already running")

// RegistryStatus bundles the statuses of all migrators.
type RegistryStatus struct {
	SQLite      SQLiteStatus      `json:"sqlite"`
	Sessions    SessionsStatus    `json:"sessions"`
	Transcripts TranscriptsStatus `json:"transcripts"`
}

// Registry owns the migrators and serializes their runs: at most one
// migration executes at a time. It is created by the composition root and
// handed to whoever exposes migration controls.
type Registry struct {
	sqlite      *SQLiteMigrator
	sessions    *SessionsMigrator
	transcripts *TranscriptsMigrator

	mu      sync.Mutex
	running bool
}

func NewRegistry(target Target, provider store.EmbeddingProvider, sessions store.SessionStore, transcripts store.TranscriptStore) *Registry {
	return &Registry{
		sqlite:      NewSQLiteMigrator(target, provider),
		sessions:    NewSessionsMigrator(sessions),
		transcripts: NewTranscriptsMigrator(transcripts),
	}
}

// Status snapshots every migrator.
func (r *Registry) Status() RegistryStatus {
	return RegistryStatus{
		SQLite:      r.sqlite.Status(),
		Sessions:    r.sessions.Status(),
		Transcripts: r.transcripts.Status(),
	}
}

// StartSQLite launches a sqlite import in the background.
func (r *Registry) StartSQLite(path string) error {
	return r.start("sqlite", path, r.sqlite.begin, func(ctx context.Context) {
		r.sqlite.Migrate(ctx, path)
	})
}

// StartSessions launches a sessions.json import in the background.
func (r *Registry) StartSessions(path string) error {
	return r.start("sessions", path, r.sessions.begin, func(ctx context.Context) {
		r.sessions.Migrate(ctx, path)
	})
}

// StartTranscripts launches a transcript import in the background. path may
// be a single JSONL file or a directory of them.
func (r *Registry) StartTranscripts(path string, isDir bool) error {
	return r.start("transcripts", path, r.transcripts.begin, func(ctx context.Context) {
		if isDir {
			r.transcripts.MigrateDirectory(ctx, path)
		} else {
			r.transcripts.Migrate(ctx, path)
		}
	})
}

// RunSQLite runs a sqlite import synchronously, for the CLI.
func (r *Registry) RunSQLite(ctx context.Context, path string) (SQLiteStatus, error) {
	if err := r.acquire(); err != nil {
		return r.sqlite.Status(), err
	}
	defer r.release()
	return r.sqlite.Migrate(ctx, path), nil
}

func (r *Registry) start(kind, path string, begin func(), run func(ctx context.Context)) error {
	if err := r.acquire(); err != nil {
		return err
	}
	// The migrator must report running before Start returns: callers poll
	// Status() immediately, and a stale idle/completed reading would make
	// them treat an in-flight run as finished.
	begin()
	slog.Info("migration started", "kind", kind, "path", path)
	go func() {
		defer r.release()
		run(context.Background())
		slog.Info("migration finished", "kind", kind, "path", path)
	}()
	return nil
}

func (r *Registry) acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrBusy
	}
	r.running = true
	return nil
}

func (r *Registry) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}
