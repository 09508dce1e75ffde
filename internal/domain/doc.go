// Package domain models the location-to-game-attributes engine of the NASA
// explorer game: it turns a reported GPS position into game attributes and
// folds visits into a player's cumulative statistics.
//
// # Classification
//
// Environments are coarse latitude bands. The bands overlap, so they are
// evaluated as an ordered rule list and the first match wins:
//
//	polar     |lat| > 60
//	desert    15 < lat < 35
//	mountain  20 < lat < 50
//	forest    30 < lat < 60
//	land      everything else
//
// Latitude 25 satisfies both the desert and mountain bands and is classified
// as desert. Bands are signed, so southern latitudes between -60 and 0 always
// fall through to land. Longitude never affects the result.
//
// Game levels are an "altitude tier" derived from absolute latitude and are
// unrelated to the player's experience level:
//
//	deep_space  |lat| > 80
//	space       |lat| > 60
//	earth       otherwise
//
// # Data types
//
// Every position offers satellite_imagery, an environment-specific pair, and
// either solar_data (hour in [6,18)) or moon_data. The hour is local to the
// clock in use; see [SetClock].
//
// # Rewards
//
// Difficulty starts at 1, adds 2 for space, 4 for deep_space and 2 for polar
// or mountain terrain, and is clamped to 10. The experience reward is
//
//	round(10 * envMultiplier * levelMultiplier * min(dataTypes/2, 2))
//
// rounded half away from zero. Rewards are never negative, so this is
// round-half-up.
//
// # Statistics
//
// [UserGameStats] is a value object. [UserGameStats.RecordVisit] returns the
// updated stats and the achievements it unlocked; persisting the result with
// per-user read-modify-write isolation is the caller's job. Recording the same
// LocationRecord twice counts it twice.
package domain
