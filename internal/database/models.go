package database

import (
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/review-relay/internal/types"
)

// Delivery is one journaled dispatch outcome
type Delivery struct {
	ID            string    `json:"id" db:"id"`
	CorrelationID string    `json:"correlation_id" db:"correlation_id"`
	DeliveryID    string    `json:"delivery_id,omitempty" db:"delivery_id"`
	EventType     string    `json:"event_type" db:"event_type"`
	Action        string    `json:"action" db:"action"`
	Repository    string    `json:"repository" db:"repository"`
	Status        string    `json:"status" db:"status"`
	Summary       string    `json:"summary,omitempty" db:"summary"`
	ArtifactPath  string    `json:"artifact_path,omitempty" db:"artifact_path"`
	DurationMS    int64     `json:"duration_ms" db:"duration_ms"`
	CompletedAt   time.Time `json:"completed_at" db:"completed_at"`
}

// NewDelivery builds a journal row from a finished dispatch
func NewDelivery(correlationID string, ev types.InboundEvent, result types.HandlerResult, elapsed time.Duration) Delivery {
	d := Delivery{
		ID:            uuid.NewString(),
		CorrelationID: correlationID,
		DeliveryID:    ev.DeliveryID,
		EventType:     ev.EventType,
		Action:        ev.Action,
		Repository:    ev.Repository,
		Status:        string(result.Kind),
		Summary:       result.Summary(),
		DurationMS:    elapsed.Milliseconds(),
		CompletedAt:   time.Now().UTC(),
	}
	if result.Details != nil {
		d.ArtifactPath = result.Details.ArtifactPath
	}
	return d
}
