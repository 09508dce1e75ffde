package domain

// DataType names a category of NASA-sourced information collectible at a position.
type DataType string

const (
	DataSatelliteImagery DataType = "satellite_imagery"
	DataSolar            DataType = "solar_data"
	DataMoon             DataType = "moon_data"
	DataOcean            DataType = "ocean_data"
	DataWeather          DataType = "weather_data"
	DataGeological       DataType = "geological_data"
	DataAtmospheric      DataType = "atmospheric_data"
	DataClimate          DataType = "climate_data"
)

// Day spans [dayStartHour, dayEndHour).
const (
	dayStartHour = 6
	dayEndHour   = 18
)

var environmentDataTypes = map[Environment][2]DataType{
	EnvironmentWater:    {DataOcean, DataWeather},
	EnvironmentMountain: {DataGeological, DataAtmospheric},
	EnvironmentDesert:   {DataClimate, DataAtmospheric},
	EnvironmentPolar:    {DataClimate, DataAtmospheric},
}

var defaultDataTypes = [2]DataType{DataWeather, DataAtmospheric}

// IsDaytime reports whether hour falls in the daytime window [6,18).
func IsDaytime(hour int) bool {
	return hour >= dayStartHour && hour < dayEndHour
}

// ResolveDataTypes returns the data types available in env at the given hour:
// satellite imagery first, the environment pair second, and solar or moon data last.
func ResolveDataTypes(env Environment, hour int) []DataType {
	pair, ok := environmentDataTypes[env]
	if !ok {
		pair = defaultDataTypes
	}

	celestial := DataMoon
	if IsDaytime(hour) {
		celestial = DataSolar
	}

	out := make([]DataType, 0, 4)
	seen := make(map[DataType]bool, 4)
	for _, dt := range []DataType{DataSatelliteImagery, pair[0], pair[1], celestial} {
		if seen[dt] {
			continue
		}
		seen[dt] = true
		out = append(out, dt)
	}
	return out
}
