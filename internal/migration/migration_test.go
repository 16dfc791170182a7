package migration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/pgclaw/internal/embedding"
	"github.com/nextlevelbuilder/pgclaw/internal/memory"
	"github.com/nextlevelbuilder/pgclaw/internal/store"
)

type fakeTarget struct {
	files   []memory.File
	chunks  []memory.Chunk
	cache   []memory.CacheEntry
	failIDs map[string]bool
}

func (f *fakeTarget) SyncFiles(_ context.Context, files []memory.File) (int, error) {
	for _, file := range files {
		if f.failIDs[file.ID] {
			return 0, fmt.Errorf("injected failure for %s", file.ID)
		}
		f.files = append(f.files, file)
	}
	return len(files), nil
}

func (f *fakeTarget) PutChunk(_ context.Context, chunk memory.Chunk) error {
	if f.failIDs[chunk.ID] {
		return fmt.Errorf("injected failure for %s", chunk.ID)
	}
	f.chunks = append(f.chunks, chunk)
	return nil
}

func (f *fakeTarget) PutCacheEntry(_ context.Context, entry memory.CacheEntry) error {
	if f.failIDs[entry.CacheKey] {
		return fmt.Errorf("injected failure for %s", entry.CacheKey)
	}
	f.cache = append(f.cache, entry)
	return nil
}

// seedSQLite builds a legacy-shaped source database: chunks keyed by "id"
// and carrying "content" instead of "text", the way externally authored
// exports do.
func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.sqlite")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE files (id TEXT PRIMARY KEY, path TEXT, hash TEXT, chunk_count INTEGER)`,
		`CREATE TABLE chunks (id TEXT PRIMARY KEY, file_id TEXT, path TEXT, start_line INTEGER, end_line INTEGER, hash TEXT, content TEXT)`,
		`CREATE TABLE embedding_cache (id TEXT PRIMARY KEY, text_hash TEXT, model TEXT, embedding TEXT)`,
		`INSERT INTO files VALUES ('f1', 'doc.md', 'h1', 2)`,
		`INSERT INTO chunks VALUES ('c1', 'f1', 'doc.md', 1, 5, 'ch1', 'first chunk text')`,
		`INSERT INTO chunks VALUES ('c2', 'f1', 'doc.md', 6, 10, 'ch2', 'second chunk text')`,
		`INSERT INTO embedding_cache VALUES ('k1', 'th1', 'old_model', '[0.1, 0.2, 0.3]')`,
		`INSERT INTO embedding_cache VALUES ('k2', 'th2', 'old_model', 'not a vector')`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return path
}

func TestSQLiteMigrate(t *testing.T) {
	target := &fakeTarget{}
	m := NewSQLiteMigrator(target, embedding.NewMockProvider(384))

	status := m.Migrate(context.Background(), seedSQLite(t))
	if status.State != StateCompleted {
		t.Fatalf("state %s, errors %v", status.State, status.Errors)
	}
	if status.FilesMigrated != 1 || status.ChunksMigrated != 2 || status.CacheMigrated != 2 {
		t.Fatalf("counters %+v", status)
	}

	if len(target.chunks) != 2 {
		t.Fatalf("got %d chunks", len(target.chunks))
	}
	c := target.chunks[0]
	if c.ID != "c1" || c.Text != "first chunk text" || c.StartLine != 1 {
		t.Fatalf("legacy column names not mapped: %+v", c)
	}
	if c.FileID == nil || *c.FileID != "f1" {
		t.Fatalf("file id not carried: %v", c.FileID)
	}
	if len(c.Embedding) != 384 {
		t.Fatalf("chunk not re-embedded: %d dims", len(c.Embedding))
	}
	if c.Model != "mock" {
		t.Fatalf("model not stamped: %q", c.Model)
	}

	// Parseable cached vectors survive, unparseable ones degrade to nil.
	if got := target.cache[0].Embedding; len(got) != 3 {
		t.Fatalf("cached vector not decoded: %v", got)
	}
	if target.cache[1].Embedding != nil {
		t.Fatal("unparseable cached vector should be dropped")
	}
}

func TestSQLiteMigratePartialFailure(t *testing.T) {
	target := &fakeTarget{failIDs: map[string]bool{"c1": true}}
	m := NewSQLiteMigrator(target, embedding.NewMockProvider(384))

	status := m.Migrate(context.Background(), seedSQLite(t))
	if status.State != StateCompleted {
		t.Fatalf("row failure should not abort the run: %s", status.State)
	}
	if status.ChunksMigrated != 1 || len(status.Errors) != 1 {
		t.Fatalf("counters %+v", status)
	}
}

func TestSQLiteMigrateMissingDB(t *testing.T) {
	m := NewSQLiteMigrator(&fakeTarget{}, embedding.NewMockProvider(384))
	status := m.Migrate(context.Background(), filepath.Join(t.TempDir(), "nope.sqlite"))
	if status.State != StateError {
		t.Fatalf("state %s, want error", status.State)
	}
}

func TestSQLiteMigrateMissingTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sqlite")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE unrelated (x TEXT)"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	db.Close()

	m := NewSQLiteMigrator(&fakeTarget{}, embedding.NewMockProvider(384))
	status := m.Migrate(context.Background(), path)
	if status.State != StateCompleted || len(status.Errors) != 0 {
		t.Fatalf("missing tables should be skipped: %+v", status)
	}
}

func TestRowMapping(t *testing.T) {
	r := Row{"id": "c9", "content": []byte("hello"), "start_line": int64(7), "chunkCount": float64(3)}
	if got := r.Text(chunkID, ""); got != "c9" {
		t.Fatalf("id: %q", got)
	}
	if got := r.Text(chunkText, ""); got != "hello" {
		t.Fatalf("bytes text: %q", got)
	}
	if got := r.Int(chunkStartLine, 0); got != 7 {
		t.Fatalf("int64: %d", got)
	}
	if got := r.Int(fileChunkCount, 0); got != 3 {
		t.Fatalf("float64 alias: %d", got)
	}
	if got := r.Text(chunkHash, "def"); got != "def" {
		t.Fatalf("default: %q", got)
	}
}

type fakeSessionStore struct {
	store.SessionStore
	upserts []store.Session
}

func (f *fakeSessionStore) Upsert(_ context.Context, s store.Session) error {
	f.upserts = append(f.upserts, s)
	return nil
}

func TestSessionsMigrateShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		keys []string
	}{
		{"array", `[{"session_key": "a", "updated_at": 5}, {"sessionKey": "b"}]`, []string{"a", "b"}},
		{"wrapped", `{"sessions": [{"session_key": "a"}]}`, []string{"a"}},
		{"keyed", `{"a": {"agentId": "x", "turns": 2}}`, []string{"a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sessions.json")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			fake := &fakeSessionStore{}
			m := NewSessionsMigrator(fake)
			status := m.Migrate(context.Background(), path)
			if status.State != StateCompleted {
				t.Fatalf("state %s, errors %v", status.State, status.Errors)
			}
			if len(fake.upserts) != len(tc.keys) {
				t.Fatalf("got %d sessions, want %d", len(fake.upserts), len(tc.keys))
			}
			for i, key := range tc.keys {
				if fake.upserts[i].SessionKey != key {
					t.Fatalf("key %q, want %q", fake.upserts[i].SessionKey, key)
				}
			}
		})
	}
}

func TestSessionsUnclaimedKeysFoldIntoData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	body := `[{"session_key": "a", "agentId": "x", "turns": 2, "topic": "go"}]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	fake := &fakeSessionStore{}
	NewSessionsMigrator(fake).Migrate(context.Background(), path)
	if len(fake.upserts) != 1 {
		t.Fatalf("got %d sessions", len(fake.upserts))
	}
	var data map[string]any
	if err := json.Unmarshal(fake.upserts[0].SessionData, &data); err != nil {
		t.Fatalf("session data: %v", err)
	}
	if data["turns"] != float64(2) || data["topic"] != "go" {
		t.Fatalf("unclaimed keys missing: %v", data)
	}
	if _, ok := data["agentId"]; ok {
		t.Fatal("claimed key leaked into data blob")
	}
}

type fakeTranscriptStore struct {
	store.TranscriptStore
	appends []store.TranscriptEvent
}

func (f *fakeTranscriptStore) Append(_ context.Context, sessionID, agentID, eventType string, eventData json.RawMessage) (*store.TranscriptEvent, error) {
	ev := store.TranscriptEvent{
		SessionID:   sessionID,
		AgentID:     agentID,
		SequenceNum: len(f.appends),
		EventType:   eventType,
		EventData:   eventData,
	}
	f.appends = append(f.appends, ev)
	return &ev, nil
}

func TestTranscriptsMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session-abc.jsonl")
	body := `{"type": "header", "version": 1}
{"eventType": "message", "data": {"text": "hi"}}
not json
{"type": "message", "agentId": "a2"}
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	fake := &fakeTranscriptStore{}
	m := NewTranscriptsMigrator(fake)
	status := m.Migrate(context.Background(), path)
	if status.State != StateCompleted {
		t.Fatalf("state %s, errors %v", status.State, status.Errors)
	}
	if status.EventsMigrated != 3 || len(status.Errors) != 1 {
		t.Fatalf("counters %+v", status)
	}
	if fake.appends[0].SessionID != "session-abc" {
		t.Fatalf("session id %q", fake.appends[0].SessionID)
	}
	if fake.appends[0].EventType != "header" || fake.appends[1].EventType != "message" {
		t.Fatalf("event types: %+v", fake.appends)
	}
	var data map[string]any
	if err := json.Unmarshal(fake.appends[1].EventData, &data); err != nil || data["text"] != "hi" {
		t.Fatalf("nested data field not used: %s", fake.appends[1].EventData)
	}
	if fake.appends[2].AgentID != "a2" {
		t.Fatalf("agent alias not mapped: %q", fake.appends[2].AgentID)
	}
}

// blockingSessionStore parks every Upsert until released, freezing a
// migration mid-run.
type blockingSessionStore struct {
	store.SessionStore
	release chan struct{}
}

func (b *blockingSessionStore) Upsert(_ context.Context, _ store.Session) error {
	<-b.release
	return nil
}

func TestStartReportsRunningImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	if err := os.WriteFile(path, []byte(`[{"session_key": "a"}]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	blocked := &blockingSessionStore{release: make(chan struct{})}
	reg := NewRegistry(&fakeTarget{}, embedding.NewMockProvider(4), blocked, &fakeTranscriptStore{})

	if err := reg.StartSessions(path); err != nil {
		t.Fatalf("StartSessions: %v", err)
	}
	// No sleep: the state must already read running, or a poller would
	// conclude the run finished before it wrote anything.
	if got := reg.Status().Sessions.State; got != StateRunning {
		t.Fatalf("state right after start = %s, want %s", got, StateRunning)
	}

	close(blocked.release)
	deadline := time.Now().Add(5 * time.Second)
	for reg.Status().Sessions.State == StateRunning {
		if time.Now().After(deadline) {
			t.Fatal("migration did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status := reg.Status().Sessions; status.State != StateCompleted || status.SessionsMigrated != 1 {
		t.Fatalf("final status %+v", status)
	}
}

func TestRegistrySerializesRuns(t *testing.T) {
	reg := NewRegistry(&fakeTarget{}, embedding.NewMockProvider(4), &fakeSessionStore{}, &fakeTranscriptStore{})
	if err := reg.acquire(); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := reg.StartSessions("/nonexistent.json"); err != ErrBusy {
		t.Fatalf("got %v, want ErrBusy", err)
	}
	reg.release()
	status := reg.Status()
	if status.SQLite.State != StateIdle || status.Sessions.State != StateIdle {
		t.Fatalf("fresh registry not idle: %+v", status)
	}
}
