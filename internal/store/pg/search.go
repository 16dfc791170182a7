package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/pgclaw/internal/memory"
	"github.com/nextlevelbuilder/pgclaw/internal/store"
	"github.com/nextlevelbuilder/pgclaw/internal/vector"
)

// Search embeds the query and ranks chunks by cosine similarity. The store
// returns the MaxResults nearest chunks, then the MinScore threshold is
// applied to that top-K set. Ties on distance break by chunk_id so repeated
// queries return a stable order.
func (s *PGMemoryStore) Search(ctx context.Context, query string, opts memory.SearchOptions) ([]memory.SearchResult, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("search: %w", store.ErrUnavailable)
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}

	qvec, err := s.provider.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT chunk_id, path, start_line, end_line, source, text,
	       1 - (embedding <=> $1::vector) AS score
	  FROM chunks
	 WHERE embedding IS NOT NULL`)
	args := []any{vector.Encode(qvec)}
	if opts.Source != "" {
		args = append(args, opts.Source)
		fmt.Fprintf(&sb, " AND source = $%d", len(args))
	}
	args = append(args, opts.MaxResults)
	fmt.Fprintf(&sb, " ORDER BY embedding <=> $1::vector, chunk_id LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, store.Backend("search chunks", err)
	}
	defer rows.Close()

	var results []memory.SearchResult
	for rows.Next() {
		var r memory.SearchResult
		var text string
		if err := rows.Scan(&r.ID, &r.Path, &r.StartLine, &r.EndLine, &r.Source, &text, &r.Score); err != nil {
			return nil, store.Backend("scan search row", err)
		}
		r.Snippet = memory.TruncateSnippet(text, snippetMaxLen)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Backend("search chunks", err)
	}
	return memory.FilterMinScore(results, opts.MinScore), nil
}
