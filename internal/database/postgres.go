package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS deliveries (
	id UUID PRIMARY KEY,
	correlation_id TEXT NOT NULL,
	delivery_id TEXT,
	event_type TEXT NOT NULL,
	action TEXT,
	repository TEXT NOT NULL,
	status TEXT NOT NULL,
	summary TEXT,
	artifact_path TEXT,
	duration_ms BIGINT NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deliveries_completed_at ON deliveries(completed_at);
CREATE INDEX IF NOT EXISTS idx_deliveries_delivery_id ON deliveries(delivery_id);
`

// PostgresJournal stores deliveries in Postgres through a pgx pool
type PostgresJournal struct {
	pool *pgxpool.Pool
}

// NewPostgresJournal connects and applies the schema
func NewPostgresJournal(ctx context.Context, dsn string) (*PostgresJournal, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	slog.Info("Journal database initialized", "driver", "postgres")

	return &PostgresJournal{pool: pool}, nil
}

// Record appends one delivery
func (j *PostgresJournal) Record(ctx context.Context, d Delivery) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO deliveries (id, correlation_id, delivery_id, event_type, action, repository, status, summary, artifact_path, duration_ms, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, d.ID, d.CorrelationID, d.DeliveryID, d.EventType, d.Action, d.Repository, d.Status, d.Summary, d.ArtifactPath, d.DurationMS, d.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// Recent returns the newest deliveries first
func (j *PostgresJournal) Recent(ctx context.Context, limit int) ([]Delivery, error) {
	rows, err := j.pool.Query(ctx, `
		SELECT id::text, correlation_id, COALESCE(delivery_id, ''), event_type, COALESCE(action, ''), repository,
		       status, COALESCE(summary, ''), COALESCE(artifact_path, ''), duration_ms, completed_at
		FROM deliveries
		ORDER BY completed_at DESC
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := make([]Delivery, 0)
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(
			&d.ID, &d.CorrelationID, &d.DeliveryID, &d.EventType, &d.Action, &d.Repository,
			&d.Status, &d.Summary, &d.ArtifactPath, &d.DurationMS, &d.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, rows.Err()
}

// Ping checks the database is reachable
func (j *PostgresJournal) Ping(ctx context.Context) error {
	return j.pool.Ping(ctx)
}

// Close closes the pool
func (j *PostgresJournal) Close() error {
	j.pool.Close()
	return nil
}
