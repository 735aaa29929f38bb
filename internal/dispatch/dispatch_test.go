package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/review-relay/internal/config"
	"github.com/ZanzyTHEbar/review-relay/internal/database"
	"github.com/ZanzyTHEbar/review-relay/internal/handlers"
	"github.com/ZanzyTHEbar/review-relay/internal/monitoring"
	"github.com/ZanzyTHEbar/review-relay/internal/policy"
	"github.com/ZanzyTHEbar/review-relay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFunc func(ctx context.Context, req handlers.Request) types.HandlerResult

func (f handlerFunc) Handle(ctx context.Context, req handlers.Request) types.HandlerResult {
	return f(ctx, req)
}

type memJournal struct {
	entries []database.Delivery
	err     error
}

func (m *memJournal) Record(_ context.Context, d database.Delivery) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, d)
	return nil
}

func (m *memJournal) Recent(context.Context, int) ([]database.Delivery, error) { return m.entries, nil }
func (m *memJournal) Ping(context.Context) error                               { return nil }
func (m *memJournal) Close() error                                             { return nil }

func testLogger() (*monitoring.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return monitoring.NewLogger(buf, slog.LevelDebug, "json"), buf
}

func newEngine(t *testing.T, h map[string]handlers.Handler, journal database.Journal) (*Engine, *monitoring.StatsRegistry) {
	t.Helper()
	logger, _ := testLogger()
	stats := monitoring.NewStatsRegistry(monitoring.DefaultWindow)
	pol := policy.New([]config.RepositoryConfig{{Name: "acme/widgets", Events: []string{"issues", "pull_request"}}})
	return NewEngine(handlers.NewRouter(h), pol, stats, journal, logger), stats
}

func event(eventType string) types.InboundEvent {
	return types.InboundEvent{
		EventType:  eventType,
		Action:     "opened",
		DeliveryID: "d-1",
		Repository: "acme/widgets",
		ReceivedAt: time.Now(),
	}
}

func TestDispatchUnknownEventType(t *testing.T) {
	engine, stats := newEngine(t, map[string]handlers.Handler{}, nil)

	res := engine.Dispatch(context.Background(), event("push"), "c1")

	assert.Equal(t, types.KindIgnored, res.Kind)
	assert.Equal(t, ReasonNoHandler, res.Reason)

	snap := stats.Snapshot()
	assert.Equal(t, int64(1), snap.Total)
	assert.Equal(t, int64(1), snap.EventsByType["push"])
	assert.Zero(t, snap.Succeeded)
	assert.Zero(t, snap.Failed)
}

func TestDispatchPolicyRecheck(t *testing.T) {
	called := false
	engine, _ := newEngine(t, map[string]handlers.Handler{
		"workflow_run": handlerFunc(func(context.Context, handlers.Request) types.HandlerResult {
			called = true
			return types.Success(types.SuccessDetails{})
		}),
	}, nil)

	res := engine.Dispatch(context.Background(), event("workflow_run"), "c1")
	assert.Equal(t, types.KindIgnored, res.Kind)
	assert.Equal(t, policy.ReasonEventNotEnabled, res.Reason)
	assert.False(t, called)

	ev := event("workflow_run")
	ev.Repository = "someone/else"
	res = engine.Dispatch(context.Background(), ev, "c2")
	assert.Equal(t, policy.ReasonRepositoryNotConfigured, res.Reason)
}

func TestDispatchSuccessIsCountedAndJournaled(t *testing.T) {
	journal := &memJournal{}
	var got handlers.Request
	engine, stats := newEngine(t, map[string]handlers.Handler{
		"issues": handlerFunc(func(_ context.Context, req handlers.Request) types.HandlerResult {
			got = req
			return types.Success(types.SuccessDetails{ArtifactPath: "outputs/issues/issue_1_analysis.md", Identifier: 1})
		}),
	}, journal)

	res := engine.Dispatch(context.Background(), event("issues"), "corr-1")
	require.Equal(t, types.KindSuccess, res.Kind)

	assert.Equal(t, "corr-1", got.CorrelationID)
	assert.Equal(t, "acme/widgets", got.Repo.Name)

	snap := stats.Snapshot()
	assert.Equal(t, int64(1), snap.Succeeded)
	assert.Len(t, snap.RecentProcessingSeconds, 1)

	require.Len(t, journal.entries, 1)
	assert.Equal(t, "corr-1", journal.entries[0].CorrelationID)
	assert.Equal(t, "success", journal.entries[0].Status)
	assert.Equal(t, "outputs/issues/issue_1_analysis.md", journal.entries[0].ArtifactPath)
}

func TestDispatchRecoversPanics(t *testing.T) {
	engine, stats := newEngine(t, map[string]handlers.Handler{
		"issues": handlerFunc(func(context.Context, handlers.Request) types.HandlerResult {
			panic("nil map")
		}),
	}, nil)

	res := engine.Dispatch(context.Background(), event("issues"), "c1")

	assert.Equal(t, types.KindError, res.Kind)
	assert.Contains(t, res.Message, "nil map")
	assert.Equal(t, int64(1), stats.Snapshot().Failed)
}

func TestDispatchJournalFailureDoesNotChangeResult(t *testing.T) {
	journal := &memJournal{err: errors.New("disk full")}
	engine, _ := newEngine(t, map[string]handlers.Handler{
		"issues": handlerFunc(func(context.Context, handlers.Request) types.HandlerResult {
			return types.Skipped("already analyzed")
		}),
	}, journal)

	res := engine.Dispatch(context.Background(), event("issues"), "c1")
	assert.Equal(t, types.KindSkipped, res.Kind)
}

func TestRunnerBoundsConcurrency(t *testing.T) {
	logger, _ := testLogger()
	runner := NewRunner(2, logger)

	var running, peak atomic.Int64
	release := make(chan struct{})
	for i := 0; i < 6; i++ {
		require.True(t, runner.Submit("task", func(context.Context) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		}))
	}

	assert.Eventually(t, func() bool { return running.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 6, runner.InFlight())
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, runner.Shutdown(ctx))
	assert.Equal(t, int64(2), peak.Load())
	assert.Zero(t, runner.InFlight())
}

func TestRunnerRejectsAfterShutdown(t *testing.T) {
	logger, _ := testLogger()
	runner := NewRunner(1, logger)
	require.NoError(t, runner.Shutdown(context.Background()))

	assert.False(t, runner.Submit("late", func(context.Context) {}))
}

func TestRunnerShutdownTimeoutCancelsTasks(t *testing.T) {
	logger, _ := testLogger()
	runner := NewRunner(1, logger)

	cancelled := make(chan struct{})
	runner.Submit("slow", func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, runner.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task context was not cancelled")
	}
}

func TestRunnerSurvivesPanics(t *testing.T) {
	logger, buf := testLogger()
	runner := NewRunner(1, logger)

	runner.Submit("boom", func(context.Context) { panic("boom") })
	require.NoError(t, runner.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "Background task panicked")
}
