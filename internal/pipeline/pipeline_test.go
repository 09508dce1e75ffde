package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/nasa-explorer/internal/domain"
	"github.com/couchcryptid/nasa-explorer/internal/observability"
	"github.com/couchcryptid/nasa-explorer/internal/pipeline"
)

// --- mocks ---

type mockLoader struct {
	mu       sync.Mutex
	batches  [][]domain.GameEvent
	failures int // LoadBatch fails this many times before succeeding
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.GameEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("broker unavailable")
	}
	m.batches = append(m.batches, append([]domain.GameEvent(nil), events...))
	return nil
}

func (m *mockLoader) loaded() []domain.GameEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GameEvent
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func (m *mockLoader) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func event(userID string) domain.GameEvent {
	return domain.GameEvent{Type: domain.EventMissionCompleted, UserID: userID, MissionID: "m-" + userID}
}

func runDispatcher(t *testing.T, d *pipeline.Dispatcher) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	require.Eventually(t, func() bool { return d.CheckReadiness(context.Background()) == nil }, time.Second, 5*time.Millisecond)
	return cancel, done
}

// --- tests ---

func TestDispatcher_FlushesFullBatch(t *testing.T) {
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	d := pipeline.New(ldr, slog.Default(), metrics, 2, time.Hour)

	cancel, done := runDispatcher(t, d)
	defer cancel()

	d.Publish(event("a"))
	d.Publish(event("b"))

	require.Eventually(t, func() bool { return ldr.batchCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, userIDs(ldr.loaded()))
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.EventsPublished), 0)

	cancel()
	require.NoError(t, <-done)
}

func TestDispatcher_FlushesOnInterval(t *testing.T) {
	ldr := &mockLoader{}
	d := pipeline.New(ldr, slog.Default(), observability.NewMetricsForTesting(), 100, 20*time.Millisecond)

	cancel, done := runDispatcher(t, d)
	defer cancel()

	d.Publish(event("a"))

	require.Eventually(t, func() bool { return len(ldr.loaded()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestDispatcher_RetriesFailedLoad(t *testing.T) {
	ldr := &mockLoader{failures: 2}
	metrics := observability.NewMetricsForTesting()
	d := pipeline.New(ldr, slog.Default(), metrics, 1, time.Hour)

	cancel, done := runDispatcher(t, d)
	defer cancel()

	d.Publish(event("a"))

	require.Eventually(t, func() bool { return len(ldr.loaded()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.PublishErrors), 0)

	cancel()
	require.NoError(t, <-done)
}

func TestDispatcher_DrainsOnShutdown(t *testing.T) {
	ldr := &mockLoader{}
	d := pipeline.New(ldr, slog.Default(), observability.NewMetricsForTesting(), 10, time.Hour)

	cancel, done := runDispatcher(t, d)
	d.Publish(event("a"))
	d.Publish(event("b"))
	d.Publish(event("c"))

	cancel()
	require.NoError(t, <-done)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, userIDs(ldr.loaded()))
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	d := pipeline.New(&mockLoader{}, slog.Default(), metrics, 1, time.Hour)

	// Not running, so nothing consumes the queue of 10.
	for i := 0; i < 12; i++ {
		d.Publish(event("u"))
	}

	assert.InDelta(t, 10, testutil.ToFloat64(metrics.EventsQueued), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.EventsDropped), 0)
}

func TestDispatcher_ContextCancellation(t *testing.T) {
	ldr := &mockLoader{}
	d := pipeline.New(ldr, slog.Default(), observability.NewMetricsForTesting(), 10, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, d.Run(ctx))
	assert.Empty(t, ldr.loaded())
	assert.Error(t, d.CheckReadiness(context.Background()))
}

func userIDs(events []domain.GameEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.UserID)
	}
	return out
}
