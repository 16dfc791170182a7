package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nextlevelbuilder/pgclaw/internal/memory"
	"github.com/nextlevelbuilder/pgclaw/internal/store"
	"github.com/nextlevelbuilder/pgclaw/internal/vector"
)

// Remember embeds a fact and stores it under a fresh id for the agent.
func (s *PGMemoryStore) Remember(ctx context.Context, text, agentID string, importance float64, category string) (string, error) {
	if text == "" {
		return "", &store.ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if importance < 0 || importance > 1 {
		return "", &store.ValidationError{Field: "importance", Reason: "must be within [0, 1]"}
	}
	if s.provider == nil {
		return "", fmt.Errorf("remember: %w", store.ErrUnavailable)
	}
	if agentID == "" {
		agentID = "default"
	}
	if category == "" {
		category = "other"
	}

	emb, err := s.provider.EmbedOne(ctx, text)
	if err != nil {
		return "", fmt.Errorf("embed memory: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (memory_id, agent_id, text, importance, category, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6::vector)`,
		id, agentID, text, importance, category, vector.Encode(emb),
	)
	if err != nil {
		return "", store.Backend("insert memory", err)
	}
	return id, nil
}

// Recall ranks the agent's memories against the query, cuts to the top
// maxResults, applies minScore, then bumps access bookkeeping on every
// returned memory. A failed bookkeeping update fails the recall: results
// must never claim an access count the store does not hold.
func (s *PGMemoryStore) Recall(ctx context.Context, query, agentID string, maxResults int, minScore float64) ([]memory.RecallResult, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("recall: %w", store.ErrUnavailable)
	}
	if agentID == "" {
		agentID = "default"
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	qvec, err := s.provider.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT memory_id, agent_id, text, importance, category, created_at, accessed_at, access_count,
		        1 - (embedding <=> $1::vector) AS score
		   FROM memories
		  WHERE agent_id = $2 AND embedding IS NOT NULL
		  ORDER BY embedding <=> $1::vector, memory_id
		  LIMIT $3`,
		vector.Encode(qvec), agentID, maxResults,
	)
	if err != nil {
		return nil, store.Backend("recall memories", err)
	}
	defer rows.Close()

	var results []memory.RecallResult
	for rows.Next() {
		var r memory.RecallResult
		if err := rows.Scan(&r.ID, &r.AgentID, &r.Text, &r.Importance, &r.Category,
			&r.CreatedAt, &r.AccessedAt, &r.AccessCount, &r.Score); err != nil {
			return nil, store.Backend("scan recall row", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Backend("recall memories", err)
	}

	results = memory.FilterRecallMinScore(results, minScore)
	if len(results) > 0 {
		if err := s.touchMemories(ctx, results); err != nil {
			return nil, store.Backend("memory access bookkeeping", err)
		}
	}
	return results, nil
}

// touchMemories persists the access bump for every result, then mirrors it
// into the returned copies. On error the copies stay untouched.
func (s *PGMemoryStore) touchMemories(ctx context.Context, results []memory.RecallResult) error {
	ids := make([]string, len(results))
	for i := range results {
		ids[i] = results[i].ID
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE memories SET accessed_at = $1, access_count = access_count + 1
		  WHERE memory_id = ANY($2::text[])`,
		now, pq.Array(ids),
	)
	if err != nil {
		return err
	}
	for i := range results {
		results[i].AccessedAt = &now
		results[i].AccessCount++
	}
	return nil
}

// Forget deletes a memory by id, returning 0 or 1.
func (s *PGMemoryStore) Forget(ctx context.Context, memoryID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE memory_id = $1", memoryID)
	if err != nil {
		return 0, store.Backend("delete memory", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountMemories returns the number of memories stored for an agent.
func (s *PGMemoryStore) CountMemories(ctx context.Context, agentID string) (int, error) {
	if agentID == "" {
		agentID = "default"
	}
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories WHERE agent_id = $1", agentID).Scan(&count)
	if err != nil {
		return 0, store.Backend("count memories", err)
	}
	return count, nil
}
