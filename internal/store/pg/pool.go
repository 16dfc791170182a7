// Package pg implements the store interfaces on Postgres with the pgvector
// extension. Cosine distance and top-K selection are delegated to the
// storage engine; this package owns the protocol around them.
package pg

import (
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// OpenDB creates the pooled Postgres connection using the pgx driver.
// Connections are acquired per statement and released on all exit paths by
// database/sql; no operation holds one across an embedding call.
func OpenDB(dsn string, poolMin, poolMax int) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(poolMax)
	db.SetMaxIdleConns(poolMin)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	slog.Info("postgres connected", "pool_min", poolMin, "pool_max", poolMax)
	return db, nil
}
