// Package store persists location records and player stats.
//
// Every backend serializes read-modify-write cycles on a single player's
// stats: two concurrent visits by the same user never lose an update, while
// different users proceed independently.
package store

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/couchcryptid/nasa-explorer/internal/domain"
)

// ErrNotFound is returned when a location record does not exist for the user.
var ErrNotFound = eris.New("not found")

// StatsUpdate derives new stats from the current ones. Backends may invoke it
// more than once when a write conflicts, so it must be free of side effects
// beyond recording its latest result. Errors it returns are passed through
// to the caller unwrapped.
type StatsUpdate func(current domain.UserGameStats) (domain.UserGameStats, error)

// Store is the persistence contract of the game service.
type Store interface {
	// RecordVisit inserts rec and applies update to the user's stats in one
	// isolated unit. Nothing is persisted if update fails.
	RecordVisit(ctx context.Context, rec domain.LocationRecord, update StatsUpdate) (domain.UserGameStats, error)

	// UpdateStats applies update to the user's stats in isolation.
	UpdateStats(ctx context.Context, userID string, update StatsUpdate) (domain.UserGameStats, error)

	// GetStats returns the user's stats, or fresh-player stats if none exist.
	GetStats(ctx context.Context, userID string) (domain.UserGameStats, error)

	// ListLocations returns up to limit active records, newest first.
	ListLocations(ctx context.Context, userID string, limit int) ([]domain.LocationRecord, error)

	// DeactivateLocation soft-deletes a record. Returns ErrNotFound if the
	// user has no record with that id.
	DeactivateLocation(ctx context.Context, userID, locationID string) error

	Ping(ctx context.Context) error
	Close()
}

func sortNewestFirst(recs []domain.LocationRecord) {
	slices.SortStableFunc(recs, func(a, b domain.LocationRecord) int {
		return b.RecordedAt.Compare(a.RecordedAt)
	})
}

func achievementsToStrings(ids []domain.AchievementID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func achievementsFromStrings(ss []string) []domain.AchievementID {
	out := make([]domain.AchievementID, len(ss))
	for i, s := range ss {
		out[i] = domain.AchievementID(s)
	}
	return out
}

func dataTypesToStrings(dts []domain.DataType) []string {
	out := make([]string, len(dts))
	for i, dt := range dts {
		out[i] = string(dt)
	}
	return out
}

func dataTypesFromStrings(ss []string) []domain.DataType {
	out := make([]domain.DataType, len(ss))
	for i, s := range ss {
		out[i] = domain.DataType(s)
	}
	return out
}
