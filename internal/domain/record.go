package domain

import (
	"time"

	"github.com/google/uuid"
)

// LocationRecord is a persisted visit. It is immutable once created except
// for the Active flag, which a soft delete clears.
type LocationRecord struct {
	ID               string      `json:"id" dynamodbav:"id"`
	UserID           string      `json:"user_id" dynamodbav:"user_id"`
	SessionID        string      `json:"session_id" dynamodbav:"session_id"`
	Coordinate       Coordinate  `json:"coordinate" dynamodbav:"coordinate"`
	Environment      Environment `json:"environment" dynamodbav:"environment"`
	Level            GameLevel   `json:"level" dynamodbav:"level"`
	DataTypes        []DataType  `json:"data_types" dynamodbav:"data_types"`
	Difficulty       int         `json:"difficulty" dynamodbav:"difficulty"`
	ExperienceReward int         `json:"experience_reward" dynamodbav:"experience_reward"`
	RecordedAt       time.Time   `json:"recorded_at" dynamodbav:"recorded_at"`
	Active           bool        `json:"active" dynamodbav:"active"`
}

// NewLocationRecord builds an active record for a visit from its assessment.
// A zero recordedAt is replaced with the package clock's current time.
func NewLocationRecord(userID, sessionID string, c Coordinate, a Assessment, recordedAt time.Time) LocationRecord {
	if recordedAt.IsZero() {
		recordedAt = clock.Now()
	}
	return LocationRecord{
		ID:               uuid.NewString(),
		UserID:           userID,
		SessionID:        sessionID,
		Coordinate:       c,
		Environment:      a.Environment,
		Level:            a.Level,
		DataTypes:        a.DataTypes,
		Difficulty:       a.Difficulty,
		ExperienceReward: a.ExperienceReward,
		RecordedAt:       recordedAt.UTC(),
		Active:           true,
	}
}

// GameEventType distinguishes published game events.
type GameEventType string

const (
	EventLocationVisited  GameEventType = "location_visited"
	EventMissionCompleted GameEventType = "mission_completed"
)

// GameEvent is published after a stats change has been persisted.
type GameEvent struct {
	Type       GameEventType   `json:"type"`
	UserID     string          `json:"user_id"`
	Record     *LocationRecord `json:"record,omitempty"`
	MissionID  string          `json:"mission_id,omitempty"`
	Stats      UserGameStats   `json:"stats"`
	Unlocked   []AchievementID `json:"unlocked"`
	OccurredAt time.Time       `json:"occurred_at"`
}
