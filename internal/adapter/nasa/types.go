package nasa

import (
	"encoding/json"

	"github.com/couchcryptid/nasa-explorer/internal/domain"
)

// API names used as metric labels and cache key prefixes.
const (
	apiAPOD  = "apod"
	apiEarth = "earth"
	apiCMR   = "cmr"
	apiDONKI = "donki"
)

// APOD is the Astronomy Picture of the Day.
type APOD struct {
	Date           string `json:"date"`
	Title          string `json:"title"`
	Explanation    string `json:"explanation"`
	URL            string `json:"url"`
	HDURL          string `json:"hdurl,omitempty"`
	MediaType      string `json:"media_type"`
	Copyright      string `json:"copyright,omitempty"`
	ServiceVersion string `json:"service_version,omitempty"`
}

// EarthQuery selects a Landsat imagery asset near a position.
type EarthQuery struct {
	Coordinate domain.Coordinate
	Date       string  // YYYY-MM-DD, optional
	Dim        float64 // tile width/height in degrees, optional
}

// EarthAsset is the closest Landsat scene to the requested date.
type EarthAsset struct {
	ID       string        `json:"id"`
	Date     string        `json:"date"`
	URL      string        `json:"url"`
	Resource EarthResource `json:"resource"`
}

// EarthResource identifies the dataset behind an EarthAsset.
type EarthResource struct {
	Dataset string `json:"dataset"`
	Planet  string `json:"planet"`
}

// GranuleQuery searches CMR for granules covering a position.
type GranuleQuery struct {
	ShortName  string
	Coordinate domain.Coordinate
	Start      string // RFC 3339 or YYYY-MM-DD, optional
	End        string
	Limit      int
}

// Granule is one CMR search hit.
type Granule struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	DatasetID string   `json:"dataset_id"`
	TimeStart string   `json:"time_start"`
	TimeEnd   string   `json:"time_end"`
	Links     []string `json:"links"`
}

// TileQuery locates a GIBS WMTS tile covering a position.
type TileQuery struct {
	Coordinate domain.Coordinate
	Layer      string
	Date       string
	Zoom       int
}

// TileRef is a resolved GIBS tile address.
type TileRef struct {
	Layer         string `json:"layer"`
	Date          string `json:"date"`
	TileMatrixSet string `json:"tile_matrix_set"`
	Zoom          int    `json:"zoom"`
	Row           int    `json:"row"`
	Col           int    `json:"col"`
	URL           string `json:"url"`
}

// SpaceWeatherEvent is a DONKI event. The schema differs per event type, so
// the payload is kept as returned.
type SpaceWeatherEvent = json.RawMessage

// DONKIEventTypes lists the event types the DONKI API serves.
var DONKIEventTypes = []string{"FLR", "CME", "GST", "SEP", "IPS", "MPC", "RBE", "HSS"}

// cmrResponse is the CMR granule search JSON envelope.
type cmrResponse struct {
	Feed struct {
		Entry []struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			DatasetID string `json:"dataset_id"`
			TimeStart string `json:"time_start"`
			TimeEnd   string `json:"time_end"`
			Links     []struct {
				Href string `json:"href"`
			} `json:"links"`
		} `json:"entry"`
	} `json:"feed"`
}
