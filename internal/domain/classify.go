package domain

import "math"

// Environment is a coarse terrain category derived from latitude bands.
type Environment string

const (
	EnvironmentLand     Environment = "land"
	EnvironmentWater    Environment = "water"
	EnvironmentMountain Environment = "mountain"
	EnvironmentDesert   Environment = "desert"
	EnvironmentForest   Environment = "forest"
	EnvironmentUrban    Environment = "urban"
	EnvironmentPolar    Environment = "polar"
)

// GameLevel is the altitude tier of a position, derived from absolute latitude.
type GameLevel string

const (
	LevelEarth     GameLevel = "earth"
	LevelSpace     GameLevel = "space"
	LevelDeepSpace GameLevel = "deep_space"
)

type environmentRule struct {
	matches func(lat float64) bool
	env     Environment
}

// environmentRules are evaluated top to bottom; the first match wins. The
// bands overlap, so reordering them changes classification.
var environmentRules = []environmentRule{
	{func(lat float64) bool { return math.Abs(lat) > 60 }, EnvironmentPolar},
	{func(lat float64) bool { return lat > 15 && lat < 35 }, EnvironmentDesert},
	{func(lat float64) bool { return lat > 20 && lat < 50 }, EnvironmentMountain},
	{func(lat float64) bool { return lat > 30 && lat < 60 }, EnvironmentForest},
}

type levelRule struct {
	minAbsLat float64 // exclusive
	level     GameLevel
}

var levelRules = []levelRule{
	{80, LevelDeepSpace},
	{60, LevelSpace},
}

// Classify derives the environment and game level of a validated coordinate.
// It does not re-validate its input.
func Classify(c Coordinate) (Environment, GameLevel) {
	return ClassifyEnvironment(c.Latitude), ClassifyLevel(c.Latitude)
}

// ClassifyEnvironment applies the environment rules to a latitude.
func ClassifyEnvironment(lat float64) Environment {
	for _, r := range environmentRules {
		if r.matches(lat) {
			return r.env
		}
	}
	return EnvironmentLand
}

// ClassifyLevel maps absolute latitude to a game level.
func ClassifyLevel(lat float64) GameLevel {
	abs := math.Abs(lat)
	for _, r := range levelRules {
		if abs > r.minAbsLat {
			return r.level
		}
	}
	return LevelEarth
}
