package store

import (
	"context"
	"encoding/json"
)

// Session is a keyed session record. UpdatedAt is epoch milliseconds,
// SessionData an opaque structured blob owned by the caller.
type Session struct {
	SessionKey  string          `db:"session_key" json:"session_key"`
	SessionID   string          `db:"session_id" json:"session_id"`
	AgentID     string          `db:"agent_id" json:"agent_id"`
	UpdatedAt   int64           `db:"updated_at" json:"updated_at"`
	SessionData json.RawMessage `db:"session_data" json:"session_data"`
	Channel     *string         `db:"channel" json:"channel,omitempty"`
	Label       *string         `db:"label" json:"label,omitempty"`
}

// SessionUpdate carries a partial update; nil fields are left untouched.
type SessionUpdate struct {
	SessionData json.RawMessage `json:"session_data,omitempty"`
	UpdatedAt   *int64          `json:"updated_at,omitempty"`
	Channel     *string         `json:"channel,omitempty"`
	Label       *string         `json:"label,omitempty"`
}

// SessionStore is keyed CRUD over sessions plus two maintenance operations.
type SessionStore interface {
	Upsert(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionKey string) (*Session, error)
	List(ctx context.Context, agentID string) ([]Session, error)
	Update(ctx context.Context, sessionKey string, updates SessionUpdate) (bool, error)
	Delete(ctx context.Context, sessionKey string) (int64, error)

	// PruneStale deletes sessions whose updated_at is older than now-maxAgeMs.
	PruneStale(ctx context.Context, agentID string, maxAgeMs int64) (int64, error)
	// CapCount keeps the maxCount most-recently-updated sessions for the
	// agent and deletes the rest. Idempotent.
	CapCount(ctx context.Context, agentID string, maxCount int) (int64, error)
}
