package domain

import (
	"fmt"
	"math"
)

const (
	baseReward    = 10.0
	minDifficulty = 1
	maxDifficulty = 10
	// maxDataFactor caps the min(count/2, 2) term of the reward formula.
	maxDataFactor = 2.0
)

var environmentMultipliers = map[Environment]float64{
	EnvironmentLand:     1.0,
	EnvironmentWater:    1.2,
	EnvironmentMountain: 1.5,
	EnvironmentDesert:   1.3,
	EnvironmentForest:   1.1,
	EnvironmentUrban:    1.1,
	EnvironmentPolar:    2.0,
}

var levelMultipliers = map[GameLevel]float64{
	LevelEarth:     1.0,
	LevelSpace:     1.5,
	LevelDeepSpace: 2.0,
}

// EnvironmentMultiplier returns the reward multiplier for env, or 1 if unknown.
func EnvironmentMultiplier(env Environment) float64 {
	if m, ok := environmentMultipliers[env]; ok {
		return m
	}
	return 1.0
}

// LevelMultiplier returns the reward multiplier for level, or 1 if unknown.
func LevelMultiplier(level GameLevel) float64 {
	if m, ok := levelMultipliers[level]; ok {
		return m
	}
	return 1.0
}

// Difficulty scores a position from 1 to 10.
func Difficulty(env Environment, level GameLevel) int {
	d := minDifficulty
	switch level {
	case LevelSpace:
		d += 2
	case LevelDeepSpace:
		d += 4
	}
	if env == EnvironmentPolar || env == EnvironmentMountain {
		d += 2
	}
	return min(max(d, minDifficulty), maxDifficulty)
}

// ExperienceReward computes the experience awarded for a visit with dataTypeCount
// collectible data types. The result is rounded half away from zero.
func ExperienceReward(env Environment, level GameLevel, dataTypeCount int) (int, error) {
	if dataTypeCount <= 0 {
		return 0, fmt.Errorf("experience reward for %s/%s: %w", env, level, ErrNoDataTypes)
	}
	factor := math.Min(float64(dataTypeCount)/2, maxDataFactor)
	raw := baseReward * EnvironmentMultiplier(env) * LevelMultiplier(level) * factor
	return int(math.Round(raw)), nil
}

// Assessment holds the game attributes derived for a single position.
type Assessment struct {
	Environment      Environment `json:"environment"`
	Level            GameLevel   `json:"level"`
	DataTypes        []DataType  `json:"data_types"`
	Difficulty       int         `json:"difficulty"`
	ExperienceReward int         `json:"experience_reward"`
}

// Assess classifies a coordinate and computes its data types, difficulty, and
// reward for the given hour. The coordinate is validated first.
func Assess(c Coordinate, hour int) (Assessment, error) {
	if err := c.Validate(); err != nil {
		return Assessment{}, err
	}
	if hour < 0 || hour > 23 {
		return Assessment{}, fmt.Errorf("%w: %d outside [0,23]", ErrInvalidHour, hour)
	}

	env, level := Classify(c)
	dataTypes := ResolveDataTypes(env, hour)
	reward, err := ExperienceReward(env, level, len(dataTypes))
	if err != nil {
		return Assessment{}, err
	}

	return Assessment{
		Environment:      env,
		Level:            level,
		DataTypes:        dataTypes,
		Difficulty:       Difficulty(env, level),
		ExperienceReward: reward,
	}, nil
}
