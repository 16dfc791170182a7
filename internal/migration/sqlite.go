package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/pgclaw/internal/memory"
	"github.com/nextlevelbuilder/pgclaw/internal/store"
	"github.com/nextlevelbuilder/pgclaw/internal/vector"
)

// embedBatchSize bounds how many chunk texts go to the embedding provider
// per call. Each batch is embedded fully before any of its rows is written.
const embedBatchSize = 50

// State is a migration job lifecycle phase.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// Target is the slice of the memory store the sqlite migrator writes to.
// Embeddings arrive precomputed through PutChunk.
type Target interface {
	SyncFiles(ctx context.Context, files []memory.File) (int, error)
	PutChunk(ctx context.Context, chunk memory.Chunk) error
	PutCacheEntry(ctx context.Context, entry memory.CacheEntry) error
}

// SQLiteStatus is a point-in-time snapshot of a sqlite migration run.
type SQLiteStatus struct {
	State          State    `json:"state"`
	FilesTotal     int      `json:"files_total"`
	FilesMigrated  int      `json:"files_migrated"`
	ChunksTotal    int      `json:"chunks_total"`
	ChunksMigrated int      `json:"chunks_migrated"`
	CacheTotal     int      `json:"cache_total"`
	CacheMigrated  int      `json:"cache_migrated"`
	Errors         []string `json:"errors"`
}

// SQLiteMigrator copies files, chunks and cached embeddings out of a legacy
// sqlite memory database. Chunks are re-embedded because the source vectors
// came from a different model. Row failures accumulate in the status and do
// not stop the run.
type SQLiteMigrator struct {
	target   Target
	provider store.EmbeddingProvider
	model    string

	mu     sync.Mutex
	status SQLiteStatus
}

func NewSQLiteMigrator(target Target, provider store.EmbeddingProvider) *SQLiteMigrator {
	model := ""
	if provider != nil {
		model = provider.Model()
	}
	return &SQLiteMigrator{
		target:   target,
		provider: provider,
		model:    model,
		status:   SQLiteStatus{State: StateIdle},
	}
}

// Status returns a copy of the current run status.
func (m *SQLiteMigrator) Status() SQLiteStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.status
	snapshot.Errors = append([]string(nil), m.status.Errors...)
	return snapshot
}

// FindSQLiteDBs locates legacy agent memory databases under basePath
// (default ~/.openclaw/agents), matching */memory/*.sqlite.
func FindSQLiteDBs(basePath string) []string {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		basePath = filepath.Join(home, ".openclaw", "agents")
	}
	matches, err := filepath.Glob(filepath.Join(basePath, "*", "memory", "*.sqlite"))
	if err != nil {
		return nil
	}
	return matches
}

// Migrate runs a full import from one sqlite database. Missing source
// tables are skipped, not errors.
func (m *SQLiteMigrator) Migrate(ctx context.Context, sqlitePath string) SQLiteStatus {
	m.begin()

	if _, err := os.Stat(sqlitePath); err != nil {
		return m.fail(fmt.Sprintf("sqlite database not found: %s", sqlitePath))
	}
	db, err := sql.Open("sqlite", sqlitePath)
	if err != nil {
		return m.fail(fmt.Sprintf("open sqlite: %v", err))
	}
	defer db.Close()

	if err := m.migrateFiles(ctx, db); err != nil {
		return m.fail(err.Error())
	}
	if err := m.migrateChunks(ctx, db); err != nil {
		return m.fail(err.Error())
	}
	if err := m.migrateCache(ctx, db); err != nil {
		return m.fail(err.Error())
	}

	m.mu.Lock()
	m.status.State = StateCompleted
	m.mu.Unlock()
	return m.Status()
}

func (m *SQLiteMigrator) begin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = SQLiteStatus{State: StateRunning}
}

func (m *SQLiteMigrator) fail(msg string) SQLiteStatus {
	m.mu.Lock()
	m.status.State = StateError
	m.status.Errors = append(m.status.Errors, msg)
	m.mu.Unlock()
	slog.Error("sqlite migration failed", "error", msg)
	return m.Status()
}

func (m *SQLiteMigrator) recordError(msg string) {
	m.mu.Lock()
	m.status.Errors = append(m.status.Errors, msg)
	m.mu.Unlock()
}

func (m *SQLiteMigrator) bump(counter *int) {
	m.mu.Lock()
	*counter++
	m.mu.Unlock()
}

func (m *SQLiteMigrator) migrateFiles(ctx context.Context, db *sql.DB) error {
	rows, ok, err := readTable(ctx, db, "files")
	if err != nil {
		return fmt.Errorf("read files: %w", err)
	}
	if !ok {
		slog.Info("no files table in source, skipping")
		return nil
	}

	m.mu.Lock()
	m.status.FilesTotal = len(rows)
	m.mu.Unlock()

	for _, row := range rows {
		file := memory.File{
			ID:         row.Text(fileID, ""),
			Path:       row.Text(filePath, ""),
			Source:     row.Text(fileSource, memory.DefaultSource),
			Hash:       row.Text(fileHash, ""),
			ChunkCount: row.Int(fileChunkCount, 0),
		}
		if file.ID == "" {
			m.recordError("file: missing id")
			continue
		}
		if _, err := m.target.SyncFiles(ctx, []memory.File{file}); err != nil {
			m.recordError(fmt.Sprintf("file %s: %v", file.ID, err))
			continue
		}
		m.bump(&m.status.FilesMigrated)
	}
	return nil
}

func (m *SQLiteMigrator) migrateChunks(ctx context.Context, db *sql.DB) error {
	rows, ok, err := readTable(ctx, db, "chunks")
	if err != nil {
		return fmt.Errorf("read chunks: %w", err)
	}
	if !ok {
		slog.Info("no chunks table in source, skipping")
		return nil
	}
	if len(rows) > 0 && m.provider == nil {
		return fmt.Errorf("chunks need re-embedding: %w", store.ErrUnavailable)
	}

	m.mu.Lock()
	m.status.ChunksTotal = len(rows)
	m.mu.Unlock()

	for start := 0; start < len(rows); start += embedBatchSize {
		end := min(start+embedBatchSize, len(rows))
		batch := rows[start:end]

		texts := make([]string, len(batch))
		chunks := make([]memory.Chunk, len(batch))
		for i, row := range batch {
			texts[i] = row.Text(chunkText, "")
			chunks[i] = memory.Chunk{
				ID:        row.Text(chunkID, ""),
				FileID:    row.TextPtr(chunkFileID),
				Path:      row.Text(chunkPath, ""),
				Source:    row.Text(chunkSource, memory.DefaultSource),
				StartLine: row.Int(chunkStartLine, 0),
				EndLine:   row.Int(chunkEndLine, 0),
				Hash:      row.Text(chunkHash, ""),
				Model:     m.model,
				Text:      texts[i],
			}
		}

		embeddings, err := m.provider.EmbedMany(ctx, texts)
		if err != nil {
			m.recordError(fmt.Sprintf("embedding batch %d: %v", start, err))
			continue
		}

		for i, chunk := range chunks {
			if chunk.ID == "" {
				m.recordError("chunk: missing id")
				continue
			}
			chunk.Embedding = embeddings[i]
			if err := m.target.PutChunk(ctx, chunk); err != nil {
				m.recordError(fmt.Sprintf("chunk %s: %v", chunk.ID, err))
				continue
			}
			m.bump(&m.status.ChunksMigrated)
		}
	}
	return nil
}

func (m *SQLiteMigrator) migrateCache(ctx context.Context, db *sql.DB) error {
	rows, ok, err := readTable(ctx, db, "embedding_cache")
	if err != nil {
		return fmt.Errorf("read embedding_cache: %w", err)
	}
	if !ok {
		slog.Info("no embedding_cache table in source, skipping")
		return nil
	}

	m.mu.Lock()
	m.status.CacheTotal = len(rows)
	m.mu.Unlock()

	for _, row := range rows {
		entry := memory.CacheEntry{
			CacheKey: row.Text(cacheKey, ""),
			TextHash: row.Text(cacheTextHash, ""),
			Model:    row.Text(cacheModel, ""),
		}
		if entry.CacheKey == "" {
			m.recordError("cache: missing key")
			continue
		}
		if raw := row.Text(cacheEmbedding, ""); raw != "" {
			if emb, err := vector.Decode(raw); err == nil {
				entry.Embedding = emb
			} else {
				slog.Debug("unparseable cached embedding, storing without vector", "key", entry.CacheKey)
			}
		}
		if err := m.target.PutCacheEntry(ctx, entry); err != nil {
			m.recordError(fmt.Sprintf("cache %s: %v", entry.CacheKey, err))
			continue
		}
		m.bump(&m.status.CacheMigrated)
	}
	return nil
}

// readTable selects every row from table, returning ok=false when the table
// does not exist in the source database.
func readTable(ctx context.Context, db *sql.DB, table string) ([]Row, bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, false, err
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, false, err
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			r[c] = vals[i]
		}
		out = append(out, r)
	}
	return out, true, rows.Err()
}
