// Package pipeline delivers game events to a batch loader in the background.
// Producers enqueue without blocking; a single Run loop groups events into
// batches by size or flush interval and retries failed loads with backoff.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/nasa-explorer/internal/domain"
	"github.com/couchcryptid/nasa-explorer/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second

	// queueFactor sizes the queue as a multiple of the batch size.
	queueFactor = 10

	// drainTimeout bounds the final flush after shutdown is requested.
	drainTimeout = 5 * time.Second
)

// BatchLoader writes multiple game events to the destination. The slice is
// reused after LoadBatch returns and must not be retained.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.GameEvent) error
}

// Dispatcher buffers game events and hands them to a BatchLoader in batches.
type Dispatcher struct {
	loader        BatchLoader
	logger        *slog.Logger
	metrics       *observability.Metrics
	queue         chan domain.GameEvent
	batchSize     int
	flushInterval time.Duration
	running       atomic.Bool
}

// New creates a Dispatcher. Batches hold at most batchSize events and are
// flushed at least every flushInterval while events are pending.
func New(l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int, flushInterval time.Duration) *Dispatcher {
	batchSize = max(batchSize, 1)
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Dispatcher{
		loader:        l,
		logger:        logger,
		metrics:       metrics,
		queue:         make(chan domain.GameEvent, batchSize*queueFactor),
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Publish enqueues an event. When the queue is full the event is dropped
// and counted; game requests never wait on the broker.
func (d *Dispatcher) Publish(event domain.GameEvent) {
	select {
	case d.queue <- event:
		d.metrics.EventsQueued.Inc()
	default:
		d.metrics.EventsDropped.Inc()
		d.logger.Warn("event queue full, dropping event", "type", event.Type, "user_id", event.UserID)
	}
}

// CheckReadiness returns nil while the Run loop is active.
func (d *Dispatcher) CheckReadiness(_ context.Context) error {
	if !d.running.Load() {
		return errors.New("event dispatcher is not running")
	}
	return nil
}

// Run drains the queue into batches until the context is cancelled, then
// flushes whatever is still queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("event dispatcher started", "batch_size", d.batchSize, "flush_interval", d.flushInterval)
	d.metrics.PipelineRunning.Set(1)
	d.running.Store(true)
	defer func() {
		d.running.Store(false)
		d.metrics.PipelineRunning.Set(0)
	}()

	ticker := time.NewTicker(d.flushInterval)
	defer ticker.Stop()

	batch := make([]domain.GameEvent, 0, d.batchSize)
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("event dispatcher stopping", "reason", ctx.Err())
			d.drain(ctx, batch)
			return nil
		case ev := <-d.queue:
			batch = append(batch, ev)
			if len(batch) < d.batchSize {
				continue
			}
		case <-ticker.C:
			if len(batch) == 0 {
				continue
			}
		}

		if !d.loadWithBackoff(ctx, batch, &backoff) {
			d.drain(ctx, batch)
			return nil
		}
		batch = batch[:0]
	}
}

// loadWithBackoff retries the batch until it loads. Returns false if the
// context was cancelled first.
func (d *Dispatcher) loadWithBackoff(ctx context.Context, batch []domain.GameEvent, backoff *time.Duration) bool {
	for {
		if d.load(ctx, batch) {
			*backoff = initialBackoff
			return true
		}
		if ctx.Err() != nil || !sleepWithContext(ctx, *backoff) {
			return false
		}
		*backoff = nextBackoff(*backoff, maxBackoff)
	}
}

func (d *Dispatcher) load(ctx context.Context, batch []domain.GameEvent) bool {
	d.metrics.BatchSize.Observe(float64(len(batch)))
	if err := d.loader.LoadBatch(ctx, batch); err != nil {
		d.metrics.PublishErrors.Inc()
		d.logger.Error("load event batch failed", "error", err, "batch_size", len(batch))
		return false
	}
	d.metrics.EventsPublished.Add(float64(len(batch)))
	return true
}

// drain makes one bounded attempt to deliver pending and queued events.
func (d *Dispatcher) drain(ctx context.Context, pending []domain.GameEvent) {
	for len(d.queue) > 0 {
		pending = append(pending, <-d.queue)
	}
	if len(pending) == 0 {
		return
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	for start := 0; start < len(pending); start += d.batchSize {
		end := min(start+d.batchSize, len(pending))
		if !d.load(drainCtx, pending[start:end]) {
			d.metrics.EventsDropped.Add(float64(len(pending) - start))
			d.logger.Warn("dropping undelivered events on shutdown", "count", len(pending)-start)
			return
		}
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
