package pg

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/nextlevelbuilder/pgclaw/internal/memory"
	"github.com/nextlevelbuilder/pgclaw/internal/store"
	"github.com/nextlevelbuilder/pgclaw/internal/vector"
)

const snippetMaxLen = 500

// PGMemoryStore implements store.MemoryStore backed by Postgres + pgvector.
type PGMemoryStore struct {
	db       *sqlx.DB
	provider store.EmbeddingProvider
}

// NewPGMemoryStore creates the memory store. provider may be nil when the
// embedding provider failed to initialize; operations that need embeddings
// then fail with ErrUnavailable while pure-relational ones keep working.
func NewPGMemoryStore(db *sqlx.DB, provider store.EmbeddingProvider) *PGMemoryStore {
	return &PGMemoryStore{db: db, provider: provider}
}

// StoreChunk embeds chunk.Text and upserts the chunk by id. The embedding
// happens before any pool connection is used for the write; an embedding
// failure aborts the write.
func (s *PGMemoryStore) StoreChunk(ctx context.Context, chunk memory.Chunk) error {
	if chunk.ID == "" {
		return &store.ValidationError{Field: "chunk.id", Reason: "must not be empty"}
	}
	if s.provider == nil {
		return fmt.Errorf("store chunk: %w", store.ErrUnavailable)
	}

	emb, err := s.provider.EmbedOne(ctx, chunk.Text)
	if err != nil {
		return fmt.Errorf("embed chunk %s: %w", chunk.ID, err)
	}
	chunk.Embedding = emb
	if chunk.Model == "" {
		chunk.Model = s.provider.Model()
	}
	return s.PutChunk(ctx, chunk)
}

// PutChunk upserts a chunk whose embedding was computed by the caller
// (batch migration embeds first, then writes). A dimensionality mismatch
// is a hard error at write time.
func (s *PGMemoryStore) PutChunk(ctx context.Context, chunk memory.Chunk) error {
	if s.provider != nil && chunk.Embedding != nil && len(chunk.Embedding) != s.provider.Dimensions() {
		return &store.ValidationError{
			Field:  "chunk.embedding",
			Reason: fmt.Sprintf("dimensionality %d, expected %d", len(chunk.Embedding), s.provider.Dimensions()),
		}
	}
	if chunk.Source == "" {
		chunk.Source = memory.DefaultSource
	}

	var emb any
	if chunk.Embedding != nil {
		emb = vector.Encode(chunk.Embedding)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (chunk_id, file_id, path, source, start_line, end_line, hash, model, text, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::vector)
		 ON CONFLICT (chunk_id) DO UPDATE SET
		     file_id = EXCLUDED.file_id, path = EXCLUDED.path, source = EXCLUDED.source,
		     start_line = EXCLUDED.start_line, end_line = EXCLUDED.end_line,
		     hash = EXCLUDED.hash, model = EXCLUDED.model, text = EXCLUDED.text,
		     embedding = EXCLUDED.embedding`,
		chunk.ID, chunk.FileID, chunk.Path, chunk.Source, chunk.StartLine, chunk.EndLine,
		chunk.Hash, chunk.Model, chunk.Text, emb,
	)
	return store.Backend("upsert chunk", err)
}

// StoreChunksBatch processes chunks sequentially; one chunk's failure is
// recorded and processing continues. Nothing is rolled back.
func (s *PGMemoryStore) StoreChunksBatch(ctx context.Context, chunks []memory.Chunk) store.BatchResult {
	var result store.BatchResult
	for _, chunk := range chunks {
		if err := s.StoreChunk(ctx, chunk); err != nil {
			slog.Error("chunk store failed", "id", chunk.ID, "error", err)
			result.Errors = append(result.Errors, store.BatchError{ID: chunk.ID, Error: err.Error()})
			continue
		}
		result.Stored++
	}
	return result
}

// DeleteChunk removes a chunk by id, returning 0 or 1.
func (s *PGMemoryStore) DeleteChunk(ctx context.Context, chunkID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE chunk_id = $1", chunkID)
	if err != nil {
		return 0, store.Backend("delete chunk", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SyncFiles bulk-upserts file metadata; no embedding involved.
func (s *PGMemoryStore) SyncFiles(ctx context.Context, files []memory.File) (int, error) {
	upserted := 0
	for _, f := range files {
		if f.Source == "" {
			f.Source = memory.DefaultSource
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO files (file_id, path, source, hash, chunk_count)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (file_id) DO UPDATE SET
			     path = EXCLUDED.path, source = EXCLUDED.source, hash = EXCLUDED.hash,
			     chunk_count = EXCLUDED.chunk_count, updated_at = now()`,
			f.ID, f.Path, f.Source, f.Hash, f.ChunkCount,
		)
		if err != nil {
			return upserted, store.Backend("upsert file", err)
		}
		upserted++
	}
	return upserted, nil
}

// DeleteFile removes a file; its chunks cascade-delete with it.
func (s *PGMemoryStore) DeleteFile(ctx context.Context, fileID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE file_id = $1", fileID)
	if err != nil {
		return 0, store.Backend("delete file", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PutCacheEntry upserts a content-addressed embedding cache row. Duplicate
// keys are absorbed, not surfaced.
func (s *PGMemoryStore) PutCacheEntry(ctx context.Context, entry memory.CacheEntry) error {
	var emb any
	if entry.Embedding != nil {
		emb = vector.Encode(entry.Embedding)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embedding_cache (cache_key, text_hash, model, embedding)
		 VALUES ($1, $2, $3, $4::vector)
		 ON CONFLICT (cache_key) DO NOTHING`,
		entry.CacheKey, entry.TextHash, entry.Model, emb,
	)
	return store.Backend("upsert cache entry", err)
}

// Status returns independent per-table counts. A failed count yields 0 for
// that key rather than failing the whole call.
func (s *PGMemoryStore) Status(ctx context.Context) store.MemoryStatus {
	return store.MemoryStatus{
		ChunkCount:  s.countTable(ctx, "chunks"),
		FileCount:   s.countTable(ctx, "files"),
		MemoryCount: s.countTable(ctx, "memories"),
		CacheCount:  s.countTable(ctx, "embedding_cache"),
	}
}

func (s *PGMemoryStore) countTable(ctx context.Context, table string) int {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
		slog.Debug("count query failed", "table", table, "error", err)
		return 0
	}
	return count
}
