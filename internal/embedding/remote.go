package embedding

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/pgclaw/internal/vector"
)

// PGBackend runs embeddings inside Postgres through PostgresML-style SQL:
// pgml.models for the registry check and pgml.embed for inference. It owns
// a single long-lived connection, separate from the service pool, released
// on Close.
type PGBackend struct {
	db *sql.DB
}

// NewPGBackend opens the provider's dedicated connection.
func NewPGBackend(dsn string) (*PGBackend, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open embedding connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping embedding connection: %w", err)
	}
	return &PGBackend{db: db}, nil
}

// ModelRegistered checks the in-store model registry for the named model.
func (b *PGBackend) ModelRegistered(ctx context.Context, model string) (bool, error) {
	var count int
	err := b.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pgml.models WHERE name = $1", model).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("model registry check: %w", err)
	}
	return count > 0, nil
}

// Embed runs in-store inference for each text. A null vector from the
// store is an error, never substituted with zeros.
func (b *PGBackend) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))
	for _, text := range texts {
		var lit sql.NullString
		err := b.db.QueryRowContext(ctx,
			"SELECT pgml.embed($1, $2)::text", model, text).Scan(&lit)
		if err != nil {
			return nil, fmt.Errorf("in-store embedding: %w", err)
		}
		if !lit.Valid {
			return nil, fmt.Errorf("in-store embedding returned null vector (model %s)", model)
		}
		vec, err := vector.Decode(lit.String)
		if err != nil {
			return nil, fmt.Errorf("decode in-store embedding: %w", err)
		}
		results = append(results, vec)
	}
	return results, nil
}

// Close releases the dedicated connection.
func (b *PGBackend) Close() error {
	return b.db.Close()
}
