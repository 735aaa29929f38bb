// Package dispatch routes inbound events to handlers, records the outcome and
// runs accepted deliveries in the background.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/review-relay/internal/database"
	"github.com/ZanzyTHEbar/review-relay/internal/handlers"
	"github.com/ZanzyTHEbar/review-relay/internal/monitoring"
	"github.com/ZanzyTHEbar/review-relay/internal/policy"
	"github.com/ZanzyTHEbar/review-relay/internal/types"
)

// ReasonNoHandler is returned for event types without a registered handler
const ReasonNoHandler = "no handler for event type"

// Engine dispatches a single event end to end
type Engine struct {
	router  *handlers.Router
	policy  *policy.Policy
	stats   *monitoring.StatsRegistry
	journal database.Journal
	logger  *monitoring.Logger
	now     func() time.Time
}

// NewEngine wires an engine. journal may be nil when no journal is configured.
func NewEngine(router *handlers.Router, pol *policy.Policy, stats *monitoring.StatsRegistry, journal database.Journal, logger *monitoring.Logger) *Engine {
	return &Engine{
		router:  router,
		policy:  pol,
		stats:   stats,
		journal: journal,
		logger:  logger,
		now:     time.Now,
	}
}

// Dispatch runs the handler for ev and always records the outcome in stats.
// A panicking handler becomes an error result instead of crashing the caller.
func (e *Engine) Dispatch(ctx context.Context, ev types.InboundEvent, correlationID string) types.HandlerResult {
	start := e.now()
	result := e.route(ctx, ev, correlationID)
	elapsed := e.now().Sub(start)

	e.stats.Record(ev.EventType, ev.Repository, result.Kind, elapsed)

	if e.journal != nil {
		// The journal outlives the request, so a cancelled ctx must not drop the entry.
		jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := e.journal.Record(jctx, database.NewDelivery(correlationID, ev, result, elapsed)); err != nil {
			e.logger.Error("Failed to journal delivery", "correlation_id", correlationID, "error", err)
		}
		cancel()
	}

	e.logger.DispatchLogger(correlationID, ev, result, elapsed)
	return result
}

func (e *Engine) route(ctx context.Context, ev types.InboundEvent, correlationID string) (result types.HandlerResult) {
	h, ok := e.router.Lookup(ev.EventType)
	if !ok {
		return types.Ignored(ReasonNoHandler)
	}

	if ok, reason := e.policy.Check(ev.Repository, ev.EventType); !ok {
		return types.Ignored(reason)
	}
	entry, _ := e.policy.Lookup(ev.Repository)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Handler panicked", "correlation_id", correlationID, "event_type", ev.EventType, "panic", r)
			result = types.Failed(fmt.Sprintf("handler panic: %v", r))
		}
	}()

	return h.Handle(ctx, handlers.Request{
		Event:         ev,
		CorrelationID: correlationID,
		Repo:          entry,
	})
}
