package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nextlevelbuilder/pgclaw/internal/store"
)

// appendRetries bounds the sequence-collision retry loop. Concurrent
// appenders to the same session collide on the (session_id, sequence_num)
// unique constraint and retry with a fresh sequence read.
const appendRetries = 5

// PGTranscriptStore implements store.TranscriptStore over the transcripts
// table.
type PGTranscriptStore struct {
	db *sqlx.DB
}

func NewPGTranscriptStore(db *sqlx.DB) *PGTranscriptStore {
	return &PGTranscriptStore{db: db}
}

// Append assigns the next sequence number for the session and inserts the
// event. The sequence is computed and inserted in one statement, so two
// racing appends produce distinct numbers; the loser of the unique-index
// race retries.
func (s *PGTranscriptStore) Append(ctx context.Context, sessionID, agentID, eventType string, eventData json.RawMessage) (*store.TranscriptEvent, error) {
	if sessionID == "" {
		return nil, &store.ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	if eventType == "" {
		return nil, &store.ValidationError{Field: "event_type", Reason: "must not be empty"}
	}
	if agentID == "" {
		agentID = "default"
	}

	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		event := store.TranscriptEvent{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			AgentID:   agentID,
			EventType: eventType,
			EventData: eventData,
		}
		err := s.db.QueryRowContext(ctx,
			`INSERT INTO transcripts (id, session_id, agent_id, sequence_num, event_type, event_data)
			 SELECT $1, $2, $3, COALESCE(MAX(sequence_num) + 1, 0), $4, $5
			   FROM transcripts WHERE session_id = $2
			 RETURNING sequence_num, created_at`,
			event.ID, sessionID, agentID, eventType, eventData,
		).Scan(&event.SequenceNum, &event.CreatedAt)
		if err == nil {
			return &event, nil
		}
		if !store.IsUniqueViolation(err) {
			return nil, store.Backend("append transcript event", err)
		}
		lastErr = err
	}
	return nil, store.Backend("append transcript event", fmt.Errorf("sequence contention after %d attempts: %w", appendRetries, lastErr))
}

// GetEvents returns events for a session in sequence order, with offset and
// limit applied over that order. limit <= 0 means no limit.
func (s *PGTranscriptStore) GetEvents(ctx context.Context, sessionID string, offset, limit int) ([]store.TranscriptEvent, error) {
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, session_id, agent_id, sequence_num, event_type, event_data, created_at
	            FROM transcripts WHERE session_id = $1 ORDER BY sequence_num`
	args := []any{sessionID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	var events []store.TranscriptEvent
	if err := s.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, store.Backend("get transcript events", err)
	}
	return events, nil
}

// GetHeader returns the session's sequence-0 event, or ErrNotFound.
func (s *PGTranscriptStore) GetHeader(ctx context.Context, sessionID string) (*store.TranscriptEvent, error) {
	var event store.TranscriptEvent
	err := s.db.GetContext(ctx, &event,
		`SELECT id, session_id, agent_id, sequence_num, event_type, event_data, created_at
		   FROM transcripts WHERE session_id = $1 AND sequence_num = 0`,
		sessionID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transcript header %s: %w", sessionID, store.ErrNotFound)
	}
	if err != nil {
		return nil, store.Backend("get transcript header", err)
	}
	return &event, nil
}

// DeleteSession removes every event of a session and returns the count.
func (s *PGTranscriptStore) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM transcripts WHERE session_id = $1", sessionID)
	if err != nil {
		return 0, store.Backend("delete transcript", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
