package domain

// AchievementID identifies a one-time unlock in a player's stats.
type AchievementID string

const (
	AchievementFirstLocation  AchievementID = "first_location"
	AchievementDataCollector  AchievementID = "data_collector"
	AchievementExplorer       AchievementID = "explorer"
	AchievementNASAFan        AchievementID = "nasa_fan"
	AchievementLocationMaster AchievementID = "location_master"
	AchievementSpaceExplorer  AchievementID = "space_explorer"
)

// Achievement is the presentation metadata for an achievement id.
type Achievement struct {
	ID          AchievementID `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Icon        string        `json:"icon"`
}

// Achievements is the fixed catalog, in display order.
var Achievements = []Achievement{
	{ID: AchievementFirstLocation, Name: "First Steps", Description: "Report your first location", Icon: "🚀"},
	{ID: AchievementDataCollector, Name: "Data Collector", Description: "Collect 10 pieces of NASA data", Icon: "📡"},
	{ID: AchievementExplorer, Name: "Explorer", Description: "Reach a new experience level", Icon: "🌍"},
	{ID: AchievementNASAFan, Name: "NASA Fan", Description: "Visit 50 locations", Icon: "⭐"},
	{ID: AchievementLocationMaster, Name: "Location Master", Description: "Visit 100 locations", Icon: "🏆"},
	{ID: AchievementSpaceExplorer, Name: "Space Explorer", Description: "Complete a space mission", Icon: "🛰️"},
}

// LookupAchievement returns the catalog entry for id.
func LookupAchievement(id AchievementID) (Achievement, bool) {
	for _, a := range Achievements {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}

// counterThreshold unlocks an achievement once a cumulative counter reaches a value.
type counterThreshold struct {
	id    AchievementID
	value func(UserGameStats) int64
	min   int64
}

// Achievements triggered by counters, checked against post-update stats.
// explorer is driven by level-ups and space_explorer by mission completion.
// first_location uses >= 1 rather than == 1 so stats missing it from an
// earlier version still earn it on their next visit; on fresh stats both
// forms unlock on exactly the first visit.
var counterThresholds = []counterThreshold{
	{AchievementFirstLocation, func(s UserGameStats) int64 { return s.TotalLocationsVisited }, 1},
	{AchievementDataCollector, func(s UserGameStats) int64 { return s.NASADataCollected }, DataCollectorThreshold},
	{AchievementNASAFan, func(s UserGameStats) int64 { return s.TotalLocationsVisited }, 50},
	{AchievementLocationMaster, func(s UserGameStats) int64 { return s.TotalLocationsVisited }, 100},
}

// DataCollectorThreshold is the nasaDataCollected count that unlocks data_collector.
const DataCollectorThreshold = 10
