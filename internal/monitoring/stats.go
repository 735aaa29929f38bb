package monitoring

import (
	"sync"
	"time"

	"github.com/ZanzyTHEbar/review-relay/internal/types"
)

// DefaultWindow is the number of processing-time samples kept
const DefaultWindow = 100

// StatsSnapshot is a point-in-time copy of the dispatch counters
type StatsSnapshot struct {
	Total                    int64            `json:"total_webhooks"`
	Succeeded                int64            `json:"successful_processing"`
	Failed                   int64            `json:"failed_processing"`
	EventsByType             map[string]int64 `json:"events_by_type"`
	EventsByRepository       map[string]int64 `json:"events_by_repo"`
	RecentProcessingSeconds  []float64        `json:"recent_processing_times"`
	StartTime                time.Time        `json:"start_time"`
	UptimeSeconds            float64          `json:"uptime_seconds"`
	SuccessRate              float64          `json:"success_rate"`
	AverageProcessingSeconds float64          `json:"average_processing_time"`
}

// StatsRegistry aggregates dispatch outcomes. All mutations for one dispatch
// happen under a single lock so snapshots are always internally consistent.
type StatsRegistry struct {
	mu        sync.Mutex
	window    int
	total     int64
	succeeded int64
	failed    int64
	byType    map[string]int64
	byRepo    map[string]int64
	latencies []time.Duration
	startTime time.Time
	now       func() time.Time
}

// NewStatsRegistry creates a registry keeping the last window latency samples
func NewStatsRegistry(window int) *StatsRegistry {
	if window <= 0 {
		window = DefaultWindow
	}
	return &StatsRegistry{
		window:    window,
		byType:    make(map[string]int64),
		byRepo:    make(map[string]int64),
		latencies: make([]time.Duration, 0, window),
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Record folds one completed dispatch into the counters
func (s *StatsRegistry) Record(eventType, repository string, kind types.ResultKind, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	switch kind {
	case types.KindSuccess:
		s.succeeded++
	case types.KindError:
		s.failed++
	}

	if len(s.latencies) == s.window {
		copy(s.latencies, s.latencies[1:])
		s.latencies = s.latencies[:s.window-1]
	}
	s.latencies = append(s.latencies, elapsed)

	s.byType[eventType]++
	s.byRepo[repository]++
}

// Snapshot returns a consistent copy of the current counters
func (s *StatsRegistry) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Total:                   s.total,
		Succeeded:               s.succeeded,
		Failed:                  s.failed,
		EventsByType:            make(map[string]int64, len(s.byType)),
		EventsByRepository:      make(map[string]int64, len(s.byRepo)),
		RecentProcessingSeconds: make([]float64, len(s.latencies)),
		StartTime:               s.startTime,
		UptimeSeconds:           s.now().Sub(s.startTime).Seconds(),
	}

	for k, v := range s.byType {
		snap.EventsByType[k] = v
	}
	for k, v := range s.byRepo {
		snap.EventsByRepository[k] = v
	}

	var sum float64
	for i, d := range s.latencies {
		snap.RecentProcessingSeconds[i] = d.Seconds()
		sum += d.Seconds()
	}
	if len(s.latencies) > 0 {
		snap.AverageProcessingSeconds = sum / float64(len(s.latencies))
	}
	if s.total > 0 {
		snap.SuccessRate = float64(s.succeeded) / float64(s.total)
	}

	return snap
}

// Window returns the latency window capacity
func (s *StatsRegistry) Window() int {
	return s.window
}
