package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/nextlevelbuilder/pgclaw/internal/store"
)

// SessionsStatus is a snapshot of a sessions.json import.
type SessionsStatus struct {
	State            State    `json:"state"`
	SessionsTotal    int      `json:"sessions_total"`
	SessionsMigrated int      `json:"sessions_migrated"`
	Errors           []string `json:"errors"`
}

// SessionsMigrator imports a legacy sessions.json export into the session
// store. Three export shapes are accepted: a bare array, an object with a
// "sessions" or "entries" array, and an object keyed by session key.
type SessionsMigrator struct {
	sessions store.SessionStore

	mu     sync.Mutex
	status SessionsStatus
}

func NewSessionsMigrator(sessions store.SessionStore) *SessionsMigrator {
	return &SessionsMigrator{sessions: sessions, status: SessionsStatus{State: StateIdle}}
}

func (m *SessionsMigrator) Status() SessionsStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.status
	snapshot.Errors = append([]string(nil), m.status.Errors...)
	return snapshot
}

func (m *SessionsMigrator) begin() {
	m.mu.Lock()
	m.status = SessionsStatus{State: StateRunning}
	m.mu.Unlock()
}

// Migrate imports one sessions file. Rows without a session key are skipped
// with a warning; row failures accumulate and do not stop the run.
func (m *SessionsMigrator) Migrate(ctx context.Context, sessionsPath string) SessionsStatus {
	m.begin()

	raw, err := os.ReadFile(sessionsPath)
	if err != nil {
		return m.fail(fmt.Sprintf("read sessions file: %v", err))
	}
	records, err := decodeSessions(raw)
	if err != nil {
		return m.fail(err.Error())
	}

	m.mu.Lock()
	m.status.SessionsTotal = len(records)
	m.mu.Unlock()

	for _, row := range records {
		sess, ok := sessionFromRow(row)
		if !ok {
			slog.Warn("skipping session with no key")
			continue
		}
		if err := m.sessions.Upsert(ctx, sess); err != nil {
			m.mu.Lock()
			m.status.Errors = append(m.status.Errors, fmt.Sprintf("session %s: %v", sess.SessionKey, err))
			m.mu.Unlock()
			continue
		}
		m.mu.Lock()
		m.status.SessionsMigrated++
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.status.State = StateCompleted
	m.mu.Unlock()
	return m.Status()
}

func (m *SessionsMigrator) fail(msg string) SessionsStatus {
	m.mu.Lock()
	m.status.State = StateError
	m.status.Errors = append(m.status.Errors, msg)
	m.mu.Unlock()
	slog.Error("sessions migration failed", "error", msg)
	return m.Status()
}

func decodeSessions(raw []byte) ([]Row, error) {
	var asList []Row
	if err := json.Unmarshal(raw, &asList); err == nil {
		return asList, nil
	}

	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asObject); err != nil {
		return nil, fmt.Errorf("parse sessions file: %w", err)
	}
	for _, key := range []string{"sessions", "entries"} {
		if nested, ok := asObject[key]; ok {
			if err := json.Unmarshal(nested, &asList); err != nil {
				return nil, fmt.Errorf("parse sessions file %q list: %w", key, err)
			}
			return asList, nil
		}
	}

	// Object keyed by session key; the key wins only when the value does
	// not carry its own.
	for key, value := range asObject {
		var row Row
		if err := json.Unmarshal(value, &row); err != nil {
			continue
		}
		if _, ok := row.lookup(sessionKey); !ok {
			row["session_key"] = key
		}
		asList = append(asList, row)
	}
	return asList, nil
}

func sessionFromRow(row Row) (store.Session, bool) {
	key := row.Text(sessionKey, "")
	if key == "" {
		return store.Session{}, false
	}
	sess := store.Session{
		SessionKey: key,
		SessionID:  row.Text(sessionID, key),
		AgentID:    row.Text(sessionAgentID, "default"),
		UpdatedAt:  row.Int64(sessionUpdatedAt, 0),
		Channel:    row.TextPtr(sessionChannel),
		Label:      row.TextPtr(sessionLabel),
	}
	if data, ok := row.lookup(sessionData); ok {
		if encoded, err := json.Marshal(data); err == nil {
			sess.SessionData = encoded
		}
	} else if rest := row.Rest(sessionEnvelope); len(rest) > 0 {
		if encoded, err := json.Marshal(rest); err == nil {
			sess.SessionData = encoded
		}
	}
	return sess, true
}
