package domain

import (
	"fmt"
	"slices"
	"time"
)

// ExperiencePerLevel is the experience needed to advance one player level.
const ExperiencePerLevel = 1000

// UserGameStats is a player's cumulative progress. Methods return updated
// copies and never mutate the receiver.
type UserGameStats struct {
	UserID                string          `json:"user_id" dynamodbav:"user_id"`
	Level                 int             `json:"level" dynamodbav:"level"`
	Experience            int64           `json:"experience" dynamodbav:"experience"`
	TotalLocationsVisited int64           `json:"total_locations_visited" dynamodbav:"total_locations_visited"`
	NASADataCollected     int64           `json:"nasa_data_collected" dynamodbav:"nasa_data_collected"`
	MissionsCompleted     int64           `json:"missions_completed" dynamodbav:"missions_completed"`
	Achievements          []AchievementID `json:"achievements" dynamodbav:"achievements"`
	UpdatedAt             time.Time       `json:"updated_at" dynamodbav:"updated_at"`
	Version               int64           `json:"-" dynamodbav:"version"`
}

// NewUserGameStats returns the stats of a player who has not played yet.
func NewUserGameStats(userID string) UserGameStats {
	return UserGameStats{
		UserID:       userID,
		Level:        1,
		Achievements: []AchievementID{},
	}
}

// LevelForExperience returns the player level reached with exp experience.
func LevelForExperience(exp int64) int {
	if exp < 0 {
		return 1
	}
	return int(exp/ExperiencePerLevel) + 1
}

// HasAchievement reports whether id is already unlocked.
func (s UserGameStats) HasAchievement(id AchievementID) bool {
	return slices.Contains(s.Achievements, id)
}

// Unlock adds id to the achievement set. The bool is false if it was already present.
func (s UserGameStats) Unlock(id AchievementID) (UserGameStats, bool) {
	if s.HasAchievement(id) {
		return s, false
	}
	s.Achievements = append(slices.Clone(s.Achievements), id)
	return s, true
}

// RecordVisit folds a new location record into the stats and returns the
// updated stats together with the achievements unlocked by this visit, in
// unlock order. Callers must invoke it at most once per record.
func (s UserGameStats) RecordVisit(rec LocationRecord) (UserGameStats, []AchievementID, error) {
	if len(rec.DataTypes) == 0 {
		return s, nil, fmt.Errorf("record visit %s: %w: no data types", rec.ID, ErrInvalidVisit)
	}
	if rec.ExperienceReward < 0 {
		return s, nil, fmt.Errorf("record visit %s: %w: negative reward %d", rec.ID, ErrInvalidVisit, rec.ExperienceReward)
	}

	s.Achievements = slices.Clone(s.Achievements)
	if s.Level < 1 {
		s.Level = 1
	}

	s.TotalLocationsVisited++
	s.NASADataCollected += int64(len(rec.DataTypes))
	s.Experience += int64(rec.ExperienceReward)

	var unlocked []AchievementID
	unlock := func(id AchievementID) {
		var added bool
		if s, added = s.Unlock(id); added {
			unlocked = append(unlocked, id)
		}
	}

	if newLevel := LevelForExperience(s.Experience); newLevel > s.Level {
		s.Level = newLevel
		unlock(AchievementExplorer)
	}

	for _, t := range counterThresholds {
		if t.value(s) >= t.min {
			unlock(t.id)
		}
	}

	s.UpdatedAt = clock.Now()
	return s, unlocked, nil
}

// CompleteMission records a finished mission and unlocks space_explorer.
func (s UserGameStats) CompleteMission() (UserGameStats, []AchievementID) {
	s.MissionsCompleted++
	s.UpdatedAt = clock.Now()

	s, added := s.Unlock(AchievementSpaceExplorer)
	if !added {
		return s, nil
	}
	return s, []AchievementID{AchievementSpaceExplorer}
}
