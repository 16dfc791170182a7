package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nextlevelbuilder/pgclaw/internal/store"
)

// PGSessionStore implements store.SessionStore over the sessions table.
type PGSessionStore struct {
	db *sqlx.DB
}

func NewPGSessionStore(db *sqlx.DB) *PGSessionStore {
	return &PGSessionStore{db: db}
}

// Upsert writes the full session row, replacing any existing row with the
// same key. A zero UpdatedAt is filled with the current time.
func (s *PGSessionStore) Upsert(ctx context.Context, sess store.Session) error {
	if sess.SessionKey == "" {
		return &store.ValidationError{Field: "session_key", Reason: "must not be empty"}
	}
	if sess.SessionID == "" {
		sess.SessionID = sess.SessionKey
	}
	if sess.AgentID == "" {
		sess.AgentID = "default"
	}
	if sess.UpdatedAt == 0 {
		sess.UpdatedAt = time.Now().UnixMilli()
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO sessions (session_key, session_id, agent_id, updated_at, session_data, channel, label)
		 VALUES (:session_key, :session_id, :agent_id, :updated_at, :session_data, :channel, :label)
		 ON CONFLICT (session_key) DO UPDATE SET
		     session_id = EXCLUDED.session_id, agent_id = EXCLUDED.agent_id,
		     updated_at = EXCLUDED.updated_at, session_data = EXCLUDED.session_data,
		     channel = EXCLUDED.channel, label = EXCLUDED.label`,
		sess,
	)
	return store.Backend("upsert session", err)
}

// Get returns the session for sessionKey, or ErrNotFound.
func (s *PGSessionStore) Get(ctx context.Context, sessionKey string) (*store.Session, error) {
	var sess store.Session
	err := s.db.GetContext(ctx, &sess,
		"SELECT session_key, session_id, agent_id, updated_at, session_data, channel, label FROM sessions WHERE session_key = $1",
		sessionKey,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionKey, store.ErrNotFound)
	}
	if err != nil {
		return nil, store.Backend("get session", err)
	}
	return &sess, nil
}

// List returns the agent's sessions, most recently updated first.
func (s *PGSessionStore) List(ctx context.Context, agentID string) ([]store.Session, error) {
	if agentID == "" {
		agentID = "default"
	}
	var sessions []store.Session
	err := s.db.SelectContext(ctx, &sessions,
		`SELECT session_key, session_id, agent_id, updated_at, session_data, channel, label
		   FROM sessions WHERE agent_id = $1 ORDER BY updated_at DESC`,
		agentID,
	)
	if err != nil {
		return nil, store.Backend("list sessions", err)
	}
	return sessions, nil
}

// Update applies the non-nil fields of updates to an existing session and
// reports whether a row matched. An all-nil update is a no-op returning the
// row's existence.
func (s *PGSessionStore) Update(ctx context.Context, sessionKey string, updates store.SessionUpdate) (bool, error) {
	var sets []string
	args := []any{sessionKey}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if updates.SessionData != nil {
		add("session_data", updates.SessionData)
	}
	if updates.UpdatedAt != nil {
		add("updated_at", *updates.UpdatedAt)
	}
	if updates.Channel != nil {
		add("channel", *updates.Channel)
	}
	if updates.Label != nil {
		add("label", *updates.Label)
	}

	if len(sets) == 0 {
		var exists bool
		err := s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM sessions WHERE session_key = $1)", sessionKey).Scan(&exists)
		return exists, store.Backend("check session", err)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET "+strings.Join(sets, ", ")+" WHERE session_key = $1",
		args...,
	)
	if err != nil {
		return false, store.Backend("update session", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Delete removes a session by key, returning 0 or 1.
func (s *PGSessionStore) Delete(ctx context.Context, sessionKey string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_key = $1", sessionKey)
	if err != nil {
		return 0, store.Backend("delete session", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PruneStale deletes the agent's sessions older than now-maxAgeMs.
func (s *PGSessionStore) PruneStale(ctx context.Context, agentID string, maxAgeMs int64) (int64, error) {
	if agentID == "" {
		agentID = "default"
	}
	cutoff := time.Now().UnixMilli() - maxAgeMs
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE agent_id = $1 AND updated_at < $2",
		agentID, cutoff,
	)
	if err != nil {
		return 0, store.Backend("prune sessions", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CapCount keeps the maxCount most recently updated sessions for the agent
// and deletes the rest. Running it again deletes nothing.
func (s *PGSessionStore) CapCount(ctx context.Context, agentID string, maxCount int) (int64, error) {
	if agentID == "" {
		agentID = "default"
	}
	if maxCount < 0 {
		maxCount = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions
		  WHERE agent_id = $1 AND session_key NOT IN (
		        SELECT session_key FROM sessions
		         WHERE agent_id = $1
		         ORDER BY updated_at DESC, session_key
		         LIMIT $2)`,
		agentID, maxCount,
	)
	if err != nil {
		return 0, store.Backend("cap sessions", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
