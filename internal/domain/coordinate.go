package domain

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
)

// Coordinate is a reported GPS position. Only Latitude and Longitude take part
// in classification; the optional fields are stored as reported.
type Coordinate struct {
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Accuracy         *float64 `json:"accuracy,omitempty"`
	Altitude         *float64 `json:"altitude,omitempty"`
	AltitudeAccuracy *float64 `json:"altitude_accuracy,omitempty"`
	Heading          *float64 `json:"heading,omitempty"`
	Speed            *float64 `json:"speed,omitempty"`
}

// Validate rejects latitudes outside [-90,90], longitudes outside [-180,180]
// and non-finite values. Out-of-range input is never clamped.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) || c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90,90]", ErrInvalidCoordinate, c.Latitude)
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180,180]", ErrInvalidCoordinate, c.Longitude)
	}
	return nil
}

// Point returns the position as an XY point in lon/lat order.
func (c Coordinate) Point() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{c.Longitude, c.Latitude})
}

// BoundingBox returns a box extending offset degrees around the position,
// trimmed to the valid lon/lat range. Dimension 0 is longitude, 1 is latitude.
func (c Coordinate) BoundingBox(offset float64) *geom.Bounds {
	return geom.NewBounds(geom.XY).Set(
		math.Max(c.Longitude-offset, -180),
		math.Max(c.Latitude-offset, -90),
		math.Min(c.Longitude+offset, 180),
		math.Min(c.Latitude+offset, 90),
	)
}
