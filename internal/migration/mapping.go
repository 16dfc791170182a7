// Package migration imports legacy agent data — sqlite memory databases,
// sessions.json exports and JSONL transcripts — into the Postgres store.
// Chunks are re-embedded on the way in because the source embeddings were
// produced by a different model.
package migration

// Field names a canonical record field together with the source column or
// JSON key names accepted for it, first match wins. Source databases and
// exports are externally authored and disagree on naming; every alias the
// migrators accept is declared here instead of probed ad hoc at read sites.
type Field struct {
	Key     string
	Aliases []string
}

var (
	fileID         = Field{"file_id", []string{"id", "file_id"}}
	filePath       = Field{"path", []string{"path", "file_path"}}
	fileSource     = Field{"source", []string{"source"}}
	fileHash       = Field{"hash", []string{"hash"}}
	fileChunkCount = Field{"chunk_count", []string{"chunk_count", "chunkCount"}}

	chunkID        = Field{"chunk_id", []string{"id", "chunk_id"}}
	chunkFileID    = Field{"file_id", []string{"file_id", "fileId"}}
	chunkPath      = Field{"path", []string{"path", "file_path"}}
	chunkSource    = Field{"source", []string{"source"}}
	chunkStartLine = Field{"start_line", []string{"start_line", "startLine"}}
	chunkEndLine   = Field{"end_line", []string{"end_line", "endLine"}}
	chunkHash      = Field{"hash", []string{"hash"}}
	chunkText      = Field{"text", []string{"text", "content"}}

	cacheKey       = Field{"cache_key", []string{"id", "cache_key"}}
	cacheTextHash  = Field{"text_hash", []string{"text_hash", "textHash"}}
	cacheModel     = Field{"model", []string{"model"}}
	cacheEmbedding = Field{"embedding", []string{"embedding"}}

	sessionKey       = Field{"session_key", []string{"session_key", "sessionKey"}}
	sessionID        = Field{"session_id", []string{"session_id", "sessionId"}}
	sessionAgentID   = Field{"agent_id", []string{"agent_id", "agentId"}}
	sessionUpdatedAt = Field{"updated_at", []string{"updated_at", "updatedAt"}}
	sessionChannel   = Field{"channel", []string{"channel"}}
	sessionLabel     = Field{"label", []string{"label"}}
	sessionData      = Field{"session_data", []string{"session_data", "sessionData"}}

	eventID      = Field{"id", []string{"id"}}
	eventAgentID = Field{"agent_id", []string{"agent_id", "agentId"}}
	eventType    = Field{"event_type", []string{"event_type", "type", "eventType"}}
	eventData    = Field{"event_data", []string{"event_data", "data", "eventData"}}
	eventSeq     = Field{"sequence_num", []string{"sequence_num", "sequence", "sequenceNum"}}
)

// sessionEnvelope and eventEnvelope list the fields consumed into dedicated
// columns. Keys not claimed by an envelope field fold into the record's
// opaque data blob.
var (
	sessionEnvelope = []Field{sessionKey, sessionID, sessionAgentID, sessionUpdatedAt, sessionChannel, sessionLabel}
	eventEnvelope   = []Field{eventID, eventAgentID, eventType, eventData, eventSeq}
)

// Row is one source record keyed by its original column or JSON key names.
type Row map[string]any

func (r Row) lookup(f Field) (any, bool) {
	for _, name := range f.Aliases {
		if v, ok := r[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Text resolves a string-valued field. sqlite hands back []byte for TEXT
// columns scanned through any, so both representations are accepted.
func (r Row) Text(f Field, def string) string {
	v, ok := r.lookup(f)
	if !ok {
		return def
	}
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return def
}

// TextPtr resolves an optional string field, nil when absent.
func (r Row) TextPtr(f Field) *string {
	if _, ok := r.lookup(f); !ok {
		return nil
	}
	s := r.Text(f, "")
	return &s
}

// Int resolves an integer field. JSON decodes numbers as float64, sqlite
// as int64.
func (r Row) Int(f Field, def int) int {
	return int(r.Int64(f, int64(def)))
}

func (r Row) Int64(f Field, def int64) int64 {
	v, ok := r.lookup(f)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return def
}

// Rest returns the row's keys not claimed by any envelope field, preserving
// their values. Used to fold unrecognized keys into an opaque data blob.
func (r Row) Rest(envelope []Field) map[string]any {
	claimed := make(map[string]struct{})
	for _, f := range envelope {
		for _, name := range f.Aliases {
			claimed[name] = struct{}{}
		}
	}
	rest := make(map[string]any)
	for k, v := range r {
		if _, ok := claimed[k]; !ok {
			rest[k] = v
		}
	}
	return rest
}
