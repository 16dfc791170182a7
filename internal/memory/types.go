// Package memory defines the record kinds persisted by the sidecar —
// code chunks, file metadata, long-term memories and embedding cache
// entries — plus the pure ranking helpers shared by the search engine.
package memory

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// DefaultSource tags records that belong to the agent's memory files.
const DefaultSource = "memory"

// Chunk is an embedded text fragment, usually a slice of a source file.
type Chunk struct {
	ID        string    `json:"id"`
	FileID    *string   `json:"file_id,omitempty"` // weak reference; cascade-deleted with its file
	Path      string    `json:"path"`
	Source    string    `json:"source"`
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
	Hash      string    `json:"hash"`
	Model     string    `json:"model"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// File aggregates chunk metadata for change detection. ChunkCount is a
// denormalized counter, not reconciled against actual chunk rows.
type File struct {
	ID         string    `json:"file_id"`
	Path       string    `json:"path"`
	Source     string    `json:"source"`
	Hash       string    `json:"hash"`
	ChunkCount int       `json:"chunk_count"`
	IndexedAt  time.Time `json:"indexed_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Memory is a long-term fact stored per agent. AccessCount and AccessedAt
// mutate only when the memory is returned by a recall.
type Memory struct {
	ID          string     `json:"memory_id"`
	AgentID     string     `json:"agent_id"`
	Text        string     `json:"text"`
	Importance  float64    `json:"importance"` // 0.0–1.0
	Category    string     `json:"category"`
	Embedding   []float32  `json:"embedding,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
	AccessedAt  *time.Time `json:"accessed_at,omitempty"`
	AccessCount int        `json:"access_count"`
}

// CacheEntry is a content-addressed embedding keyed by (text hash, model).
// Maintained as a migration target; the retrieval path does not consult it.
type CacheEntry struct {
	CacheKey  string    `json:"cache_key"`
	TextHash  string    `json:"text_hash"`
	Model     string    `json:"model"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// SearchResult is a single chunk hit from semantic search.
type SearchResult struct {
	ID        string  `json:"id"`
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet"`
	Source    string  `json:"source"`
}

// RecallResult is a memory hit with its similarity score.
type RecallResult struct {
	Memory
	Score float64 `json:"score"`
}

// SearchOptions configures a chunk search.
type SearchOptions struct {
	MaxResults int     // store-side top-K cap
	MinScore   float64 // similarity threshold applied after the top-K cut
	Source     string  // optional source pre-filter ("memory", "sessions", "")
	Hybrid     bool    // accepted for forward compatibility; no effect yet
}

// ContentHash returns a hex SHA256-derived hash of text content.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h[:16])
}

// TruncateSnippet caps snippet text at maxLen bytes.
func TruncateSnippet(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
