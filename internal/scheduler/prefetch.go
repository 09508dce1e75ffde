// Package scheduler warms the NASA response cache on a cron schedule so the
// first players of the day do not pay for the slow upstream calls.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/nasa-explorer/internal/adapter/nasa"
	"github.com/couchcryptid/nasa-explorer/internal/domain"
)

// Warmer is the subset of the cached NASA client refreshed by the prefetcher.
type Warmer interface {
	APOD(ctx context.Context, date string) (nasa.APOD, error)
	DONKI(ctx context.Context, eventType, start, end string) ([]nasa.SpaceWeatherEvent, error)
}

// Prefetcher requests the day's APOD and recent solar flares, using the same
// query keys as position data collection.
type Prefetcher struct {
	nasa   Warmer
	cron   *cron.Cron
	spec   string
	logger *slog.Logger
}

// New schedules a warm-up on spec (standard five-field cron or a descriptor
// such as @daily). Schedules are evaluated in UTC.
func New(spec string, api Warmer, logger *slog.Logger) (*Prefetcher, error) {
	p := &Prefetcher{
		nasa:   api,
		cron:   cron.New(cron.WithLocation(time.UTC)),
		spec:   spec,
		logger: logger,
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse prefetch schedule %q: %w", spec, err)
	}
	return p, nil
}

// Start runs one warm-up immediately, then on every tick until ctx is cancelled.
func (p *Prefetcher) Start(ctx context.Context) error {
	_, err := p.cron.AddFunc(p.spec, func() {
		if err := p.Warm(ctx); err != nil {
			p.logger.Warn("nasa cache prefetch failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule prefetch: %w", err)
	}

	if err := p.Warm(ctx); err != nil {
		p.logger.Warn("initial nasa cache prefetch failed", "error", err)
	}

	p.cron.Start()
	p.logger.Info("nasa prefetch scheduled", "schedule", p.spec)

	go func() {
		<-ctx.Done()
		<-p.cron.Stop().Done()
		p.logger.Info("nasa prefetch stopped")
	}()
	return nil
}

// Warm fetches today's cacheable NASA responses.
func (p *Prefetcher) Warm(ctx context.Context) error {
	today := domain.Now().UTC()
	end := today.Format(time.DateOnly)
	start := today.AddDate(0, 0, -7).Format(time.DateOnly)

	_, apodErr := p.nasa.APOD(ctx, end)
	_, donkiErr := p.nasa.DONKI(ctx, "FLR", start, end)

	if err := errors.Join(apodErr, donkiErr); err != nil {
		return err
	}
	p.logger.Debug("nasa cache warmed", "date", end)
	return nil
}
