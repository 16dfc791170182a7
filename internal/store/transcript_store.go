package store

import (
	"context"
	"encoding/json"
	"time"
)

// TranscriptEvent is one append-only event in a session transcript.
// SequenceNum is assigned by the store, strictly increasing per session
// starting at 0; the event with sequence 0 is the session header.
type TranscriptEvent struct {
	ID          string          `db:"id" json:"id"`
	SessionID   string          `db:"session_id" json:"session_id"`
	AgentID     string          `db:"agent_id" json:"agent_id"`
	SequenceNum int             `db:"sequence_num" json:"sequence_num"`
	EventType   string          `db:"event_type" json:"event_type"`
	EventData   json.RawMessage `db:"event_data" json:"event_data"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// TranscriptStore is an append-only event log with store-assigned sequence
// numbering.
type TranscriptStore interface {
	Append(ctx context.Context, sessionID, agentID, eventType string, eventData json.RawMessage) (*TranscriptEvent, error)
	GetEvents(ctx context.Context, sessionID string, offset, limit int) ([]TranscriptEvent, error)
	GetHeader(ctx context.Context, sessionID string) (*TranscriptEvent, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}
