// Package archive provides durable retention of terminal job statuses
// outside the state store. The archive is an optional best-effort sink;
// the dispatch path never depends on it.
package archive

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmehra7/gridflow/queue"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_results (
	job_id        TEXT PRIMARY KEY,
	state         TEXT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	latency_sec   DOUBLE PRECISION,
	slo_violation BOOLEAN,
	cost_usd      DOUBLE PRECISION,
	finished_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresArchive stores terminal statuses in Postgres.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// NewPostgresArchive connects, verifies the connection, and ensures the
// results table exists.
func NewPostgresArchive(ctx context.Context, connString string) (*PostgresArchive, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresArchive{pool: pool}, nil
}

// Close releases the connection pool.
func (a *PostgresArchive) Close() {
	a.pool.Close()
}

// RecordResult inserts one terminal status row. Terminal statuses are
// never overwritten, so conflicts on job_id are ignored.
func (a *PostgresArchive) RecordResult(ctx context.Context, jobID string, status *queue.Status) error {
	var cost *float64
	if c, ok := status.Result["cost_usd"]; ok {
		cost = &c
	}
	query := `
		INSERT INTO job_results (job_id, state, error, latency_sec, slo_violation, cost_usd)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO NOTHING
	`
	_, err := a.pool.Exec(ctx, query, jobID, status.State, status.Error, status.LatencySec, status.SLOViolation, cost)
	return err
}
