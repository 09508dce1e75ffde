// Package game is the application layer: it validates requests, runs the
// domain rules, persists the outcome through a store, and publishes events.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/nasa-explorer/internal/domain"
	"github.com/couchcryptid/nasa-explorer/internal/observability"
	"github.com/couchcryptid/nasa-explorer/internal/store"
)

// Listing limits for a player's location history.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ErrInvalidRequest is returned for malformed input that is not a coordinate problem.
var ErrInvalidRequest = errors.New("invalid request")

// EventPublisher accepts game events for asynchronous delivery.
type EventPublisher interface {
	Publish(event domain.GameEvent)
}

// Service runs game operations for all players.
type Service struct {
	store   store.Store
	nasa    NASA
	events  EventPublisher
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService wires a game service. events may be nil to disable publishing.
func NewService(st store.Store, nasa NASA, events EventPublisher, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:   st,
		nasa:    nasa,
		events:  events,
		metrics: metrics,
		logger:  logger,
	}
}

// VisitRequest is a reported position for one player.
type VisitRequest struct {
	UserID     string
	SessionID  string
	Coordinate domain.Coordinate
	Hour       *int      // local hour of day; the service clock is used when nil
	RecordedAt time.Time // zero means now
}

// VisitResult is the outcome of a recorded visit.
type VisitResult struct {
	Record   domain.LocationRecord  `json:"record"`
	Stats    domain.UserGameStats   `json:"stats"`
	Unlocked []domain.AchievementID `json:"unlocked"`
}

// MissionResult is the outcome of a completed mission.
type MissionResult struct {
	MissionID string                 `json:"mission_id"`
	Stats     domain.UserGameStats   `json:"stats"`
	Unlocked  []domain.AchievementID `json:"unlocked"`
}

// Assess classifies a position without persisting anything.
func (s *Service) Assess(c domain.Coordinate, hour *int) (domain.Assessment, error) {
	a, err := domain.Assess(c, resolveHour(hour))
	if err != nil {
		return domain.Assessment{}, err
	}
	s.metrics.Assessments.WithLabelValues(string(a.Environment), string(a.Level)).Inc()
	return a, nil
}

// ReportLocation assesses a visit, stores the record, folds it into the
// player's stats, and publishes a location_visited event.
func (s *Service) ReportLocation(ctx context.Context, req VisitRequest) (VisitResult, error) {
	if req.UserID == "" {
		return VisitResult{}, fmt.Errorf("report location: %w: user id is required", ErrInvalidRequest)
	}

	a, err := s.Assess(req.Coordinate, req.Hour)
	if err != nil {
		return VisitResult{}, fmt.Errorf("report location: %w", err)
	}

	rec := domain.NewLocationRecord(req.UserID, req.SessionID, req.Coordinate, a, req.RecordedAt)

	var unlocked []domain.AchievementID
	stats, err := s.store.RecordVisit(ctx, rec, func(cur domain.UserGameStats) (domain.UserGameStats, error) {
		next, u, err := cur.RecordVisit(rec)
		unlocked = u
		return next, err
	})
	if err != nil {
		s.metrics.VisitErrors.Inc()
		return VisitResult{}, fmt.Errorf("report location: %w", err)
	}
	if unlocked == nil {
		unlocked = []domain.AchievementID{}
	}

	s.metrics.VisitsRecorded.Inc()
	s.metrics.ExperienceAwarded.Add(float64(rec.ExperienceReward))
	s.countUnlocks(unlocked)

	s.logger.Info("location recorded",
		"user_id", rec.UserID,
		"location_id", rec.ID,
		"environment", rec.Environment,
		"level", rec.Level,
		"experience_reward", rec.ExperienceReward,
		"player_level", stats.Level,
		"unlocked", unlocked,
	)

	s.publish(domain.GameEvent{
		Type:       domain.EventLocationVisited,
		UserID:     rec.UserID,
		Record:     &rec,
		Stats:      stats,
		Unlocked:   unlocked,
		OccurredAt: domain.Now().UTC(),
	})

	return VisitResult{Record: rec, Stats: stats, Unlocked: unlocked}, nil
}

// Stats returns the player's stats, or fresh-player stats for an unknown user.
func (s *Service) Stats(ctx context.Context, userID string) (domain.UserGameStats, error) {
	if userID == "" {
		return domain.UserGameStats{}, fmt.Errorf("stats: %w: user id is required", ErrInvalidRequest)
	}
	return s.store.GetStats(ctx, userID)
}

// Locations returns the player's active records, newest first. A limit of
// zero selects DefaultListLimit; larger limits are capped at MaxListLimit.
func (s *Service) Locations(ctx context.Context, userID string, limit int) ([]domain.LocationRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("locations: %w: user id is required", ErrInvalidRequest)
	}
	if limit < 0 {
		return nil, fmt.Errorf("locations: %w: negative limit %d", ErrInvalidRequest, limit)
	}
	if limit == 0 {
		limit = DefaultListLimit
	}
	return s.store.ListLocations(ctx, userID, min(limit, MaxListLimit))
}

// RemoveLocation soft-deletes a record. Stats already earned are kept.
func (s *Service) RemoveLocation(ctx context.Context, userID, locationID string) error {
	if userID == "" || locationID == "" {
		return fmt.Errorf("remove location: %w: user id and location id are required", ErrInvalidRequest)
	}
	if err := s.store.DeactivateLocation(ctx, userID, locationID); err != nil {
		return fmt.Errorf("remove location: %w", err)
	}
	s.logger.Info("location removed", "user_id", userID, "location_id", locationID)
	return nil
}

// CompleteMission records a finished mission and publishes a mission_completed event.
func (s *Service) CompleteMission(ctx context.Context, userID, missionID string) (MissionResult, error) {
	if userID == "" || missionID == "" {
		return MissionResult{}, fmt.Errorf("complete mission: %w: user id and mission id are required", ErrInvalidRequest)
	}

	var unlocked []domain.AchievementID
	stats, err := s.store.UpdateStats(ctx, userID, func(cur domain.UserGameStats) (domain.UserGameStats, error) {
		next, u := cur.CompleteMission()
		unlocked = u
		return next, nil
	})
	if err != nil {
		return MissionResult{}, fmt.Errorf("complete mission: %w", err)
	}
	if unlocked == nil {
		unlocked = []domain.AchievementID{}
	}

	s.metrics.MissionsCompleted.Inc()
	s.countUnlocks(unlocked)
	s.logger.Info("mission completed", "user_id", userID, "mission_id", missionID, "unlocked", unlocked)

	s.publish(domain.GameEvent{
		Type:       domain.EventMissionCompleted,
		UserID:     userID,
		MissionID:  missionID,
		Stats:      stats,
		Unlocked:   unlocked,
		OccurredAt: domain.Now().UTC(),
	})

	return MissionResult{MissionID: missionID, Stats: stats, Unlocked: unlocked}, nil
}

// CheckReadiness reports whether the backing store is reachable.
func (s *Service) CheckReadiness(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store not ready: %w", err)
	}
	return nil
}

func (s *Service) countUnlocks(unlocked []domain.AchievementID) {
	for _, id := range unlocked {
		s.metrics.AchievementsUnlocked.WithLabelValues(string(id)).Inc()
	}
}

func (s *Service) publish(event domain.GameEvent) {
	if s.events == nil {
		return
	}
	s.events.Publish(event)
}

func resolveHour(hour *int) int {
	if hour != nil {
		return *hour
	}
	return domain.CurrentHour()
}
