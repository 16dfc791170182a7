package migration

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/pgclaw/internal/store"
)

// TranscriptsStatus is a snapshot of a JSONL transcript import.
type TranscriptsStatus struct {
	State          State    `json:"state"`
	FilesTotal     int      `json:"files_total"`
	FilesProcessed int      `json:"files_processed"`
	EventsTotal    int      `json:"events_total"`
	EventsMigrated int      `json:"events_migrated"`
	Errors         []string `json:"errors"`
}

// TranscriptsMigrator imports JSONL transcript files. The session id comes
// from the file name; sequence numbers are assigned by the transcript store
// in file order, ignoring any sequence fields carried by the source events.
type TranscriptsMigrator struct {
	transcripts store.TranscriptStore

	mu     sync.Mutex
	status TranscriptsStatus
}

func NewTranscriptsMigrator(transcripts store.TranscriptStore) *TranscriptsMigrator {
	return &TranscriptsMigrator{transcripts: transcripts, status: TranscriptsStatus{State: StateIdle}}
}

func (m *TranscriptsMigrator) Status() TranscriptsStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.status
	snapshot.Errors = append([]string(nil), m.status.Errors...)
	return snapshot
}

// FindTranscriptFiles locates legacy transcript files under basePath
// (default ~/.openclaw/agents), matching */transcripts/*.jsonl.
func FindTranscriptFiles(basePath string) []string {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		basePath = filepath.Join(home, ".openclaw", "agents")
	}
	matches, err := filepath.Glob(filepath.Join(basePath, "*", "transcripts", "*.jsonl"))
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

func (m *TranscriptsMigrator) begin() {
	m.mu.Lock()
	m.status = TranscriptsStatus{State: StateRunning}
	m.mu.Unlock()
}

// Migrate imports a single JSONL transcript file.
func (m *TranscriptsMigrator) Migrate(ctx context.Context, transcriptPath string) TranscriptsStatus {
	m.begin()
	m.mu.Lock()
	m.status.FilesTotal = 1
	m.mu.Unlock()

	if err := m.migrateFile(ctx, transcriptPath); err != nil {
		return m.fail(err.Error())
	}

	m.mu.Lock()
	m.status.FilesProcessed = 1
	m.status.State = StateCompleted
	m.mu.Unlock()
	return m.Status()
}

// MigrateDirectory imports every JSONL file in a directory, in name order.
// A failing file is recorded and the rest still run.
func (m *TranscriptsMigrator) MigrateDirectory(ctx context.Context, dirPath string) TranscriptsStatus {
	m.begin()

	files, err := filepath.Glob(filepath.Join(dirPath, "*.jsonl"))
	if err != nil {
		return m.fail(fmt.Sprintf("scan directory: %v", err))
	}
	sort.Strings(files)

	m.mu.Lock()
	m.status.FilesTotal = len(files)
	m.mu.Unlock()

	for _, file := range files {
		if err := m.migrateFile(ctx, file); err != nil {
			m.mu.Lock()
			m.status.Errors = append(m.status.Errors, fmt.Sprintf("%s: %v", filepath.Base(file), err))
			m.mu.Unlock()
			continue
		}
		m.mu.Lock()
		m.status.FilesProcessed++
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.status.State = StateCompleted
	m.mu.Unlock()
	return m.Status()
}

func (m *TranscriptsMigrator) fail(msg string) TranscriptsStatus {
	m.mu.Lock()
	m.status.State = StateError
	m.status.Errors = append(m.status.Errors, msg)
	m.mu.Unlock()
	slog.Error("transcript migration failed", "error", msg)
	return m.Status()
}

func (m *TranscriptsMigrator) migrateFile(ctx context.Context, path string) error {
	sessionID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row Row
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			slog.Warn("skipping malformed transcript line", "file", filepath.Base(path), "line", lineNum)
			m.mu.Lock()
			m.status.Errors = append(m.status.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
			m.mu.Unlock()
			continue
		}
		m.mu.Lock()
		m.status.EventsTotal++
		m.mu.Unlock()

		agentID := row.Text(eventAgentID, "default")
		kind := row.Text(eventType, "unknown")
		data := eventPayload(row)
		if _, err := m.transcripts.Append(ctx, sessionID, agentID, kind, data); err != nil {
			m.mu.Lock()
			m.status.Errors = append(m.status.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
			m.mu.Unlock()
			continue
		}
		m.mu.Lock()
		m.status.EventsMigrated++
		m.mu.Unlock()
	}
	return scanner.Err()
}

// eventPayload extracts the event's data blob: a dedicated data field when
// present, otherwise everything not consumed into columns.
func eventPayload(row Row) json.RawMessage {
	if data, ok := row.lookup(eventData); ok {
		if encoded, err := json.Marshal(data); err == nil {
			return encoded
		}
	}
	rest := row.Rest(eventEnvelope)
	if len(rest) == 0 {
		return nil
	}
	encoded, err := json.Marshal(rest)
	if err != nil {
		return nil
	}
	return encoded
}
