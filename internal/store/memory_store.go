package store

import (
	"context"

	"github.com/nextlevelbuilder/pgclaw/internal/memory"
)

// EmbeddingProvider turns text into fixed-dimension vectors. The output
// vector at index i corresponds exactly to the input text at index i.
type EmbeddingProvider interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimensions() int
}

// BatchResult reports a partial-failure batch store: failed items are
// recorded and processing continues, nothing is rolled back.
type BatchResult struct {
	Stored int          `json:"stored"`
	Errors []BatchError `json:"errors"`
}

// MemoryStatus holds independent per-table counts. A failed count for one
// table yields 0 for that key rather than failing the whole call.
type MemoryStatus struct {
	ChunkCount  int `json:"chunk_count"`
	FileCount   int `json:"file_count"`
	MemoryCount int `json:"memory_count"`
	CacheCount  int `json:"cache_count"`
}

// MemoryStore persists chunks, files, long-term memories and the embedding
// cache, and answers similarity queries over them.
type MemoryStore interface {
	// Chunks and files.
	StoreChunk(ctx context.Context, chunk memory.Chunk) error
	StoreChunksBatch(ctx context.Context, chunks []memory.Chunk) BatchResult
	DeleteChunk(ctx context.Context, chunkID string) (int64, error)
	SyncFiles(ctx context.Context, files []memory.File) (int, error)
	DeleteFile(ctx context.Context, fileID string) (int64, error)
	Search(ctx context.Context, query string, opts memory.SearchOptions) ([]memory.SearchResult, error)

	// Long-term memories.
	Remember(ctx context.Context, text, agentID string, importance float64, category string) (string, error)
	Recall(ctx context.Context, query, agentID string, maxResults int, minScore float64) ([]memory.RecallResult, error)
	Forget(ctx context.Context, memoryID string) (int64, error)
	CountMemories(ctx context.Context, agentID string) (int, error)

	// Embedding cache (migration target).
	PutCacheEntry(ctx context.Context, entry memory.CacheEntry) error

	Status(ctx context.Context) MemoryStatus
}
