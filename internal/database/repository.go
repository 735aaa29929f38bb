package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/review-relay/internal/config"
)

// DefaultSQLitePath is used when the sqlite driver is selected without a DSN
const DefaultSQLitePath = "data/journal.db"

// MaxRecent caps the number of rows a single Recent call returns
const MaxRecent = 500

// Journal is an append-only audit log of completed dispatches.
// It is never replayed.
type Journal interface {
	Record(ctx context.Context, d Delivery) error
	Recent(ctx context.Context, limit int) ([]Delivery, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open returns the journal selected by cfg, or nil when the driver is "none"
func Open(ctx context.Context, cfg config.JournalConfig) (Journal, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return nil, nil
	case "sqlite":
		path := cfg.DSN
		if path == "" {
			path = DefaultSQLitePath
		}
		db, err := NewDB(path)
		if err != nil {
			return nil, err
		}
		return NewRepository(db), nil
	case "postgres":
		return NewPostgresJournal(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported journal driver %q", cfg.Driver)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > MaxRecent {
		return MaxRecent
	}
	return limit
}

// Repository is the SQLite journal
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Record appends one delivery
func (r *Repository) Record(ctx context.Context, d Delivery) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, correlation_id, delivery_id, event_type, action, repository, status, summary, artifact_path, duration_ms, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.CorrelationID, d.DeliveryID, d.EventType, d.Action, d.Repository, d.Status, d.Summary, d.ArtifactPath, d.DurationMS, d.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// Recent returns the newest deliveries first
func (r *Repository) Recent(ctx context.Context, limit int) ([]Delivery, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, correlation_id, delivery_id, event_type, action, repository, status, summary, artifact_path, duration_ms, completed_at
		FROM deliveries
		ORDER BY completed_at DESC, rowid DESC
		LIMIT ?
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
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the underlying database
func (r *Repository) Close() error {
	return r.db.Close()
}
