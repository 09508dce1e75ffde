package nasa

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// GIBS EPSG:4326 grid: a zoom-0 tile spans 288 degrees (512 px at 0.5625 deg/px).
const (
	DefaultGIBSLayer = "MODIS_Terra_CorrectedReflectance_TrueColor"
	gibsMatrixSet    = "250m"
	gibsMaxZoom      = 8
	gibsLevel0Span   = 288.0
)

// ErrInvalidQuery is returned for NASA queries rejected before any request is made.
var ErrInvalidQuery = eris.New("invalid nasa query")

// TileFor resolves the GIBS tile covering q. It makes no network request.
func TileFor(baseURL string, q TileQuery) (TileRef, error) {
	if err := q.Coordinate.Validate(); err != nil {
		return TileRef{}, fmt.Errorf("gibs tile: %w", err)
	}
	if q.Zoom < 0 || q.Zoom > gibsMaxZoom {
		return TileRef{}, eris.Wrapf(ErrInvalidQuery, "gibs zoom %d outside [0,%d]", q.Zoom, gibsMaxZoom)
	}
	if q.Date == "" {
		return TileRef{}, eris.Wrap(ErrInvalidQuery, "gibs date is required")
	}
	layer := q.Layer
	if layer == "" {
		layer = DefaultGIBSLayer
	}

	span := gibsLevel0Span / math.Pow(2, float64(q.Zoom))
	cols := int(math.Ceil(360 / span))
	rows := int(math.Ceil(180 / span))

	col := min(int(math.Floor((q.Coordinate.Longitude+180)/span)), cols-1)
	row := min(int(math.Floor((90-q.Coordinate.Latitude)/span)), rows-1)

	return TileRef{
		Layer:         layer,
		Date:          q.Date,
		TileMatrixSet: gibsMatrixSet,
		Zoom:          q.Zoom,
		Row:           row,
		Col:           col,
		URL: fmt.Sprintf("%s/%s/default/%s/%s/%d/%d/%d.jpg",
			strings.TrimSuffix(baseURL, "/"), layer, q.Date, gibsMatrixSet, q.Zoom, row, col),
	}, nil
}
