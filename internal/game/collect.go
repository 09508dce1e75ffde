package game

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/nasa-explorer/internal/adapter/nasa"
	"github.com/couchcryptid/nasa-explorer/internal/domain"
)

// NASA is the set of NASA lookups the game uses to fill collected data.
type NASA interface {
	APOD(ctx context.Context, date string) (nasa.APOD, error)
	EarthAssets(ctx context.Context, q nasa.EarthQuery) (nasa.EarthAsset, error)
	SearchGranules(ctx context.Context, q nasa.GranuleQuery) ([]nasa.Granule, error)
	DONKI(ctx context.Context, eventType, start, end string) ([]nasa.SpaceWeatherEvent, error)
	GIBSTile(q nasa.TileQuery) (nasa.TileRef, error)
}

// collectConcurrency caps simultaneous NASA calls for one collection.
const collectConcurrency = 4

const dateLayout = "2006-01-02"

// CMR collections searched for each granule-backed data type.
var granuleCollections = map[domain.DataType]string{
	domain.DataOcean:       "MUR-JPL-L4-GLOB-v4.1",
	domain.DataWeather:     "MOD06_L2",
	domain.DataAtmospheric: "MOD04_L2",
	domain.DataClimate:     "MOD11A1",
}

// CollectedData is the NASA payload gathered for one data type. Exactly one
// of Data and Error is set.
type CollectedData struct {
	DataType domain.DataType `json:"data_type"`
	Source   string          `json:"source"`
	Data     any             `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Collection is everything collectible at a position.
type Collection struct {
	Assessment domain.Assessment `json:"assessment"`
	Items      []CollectedData   `json:"items"`
}

// CollectData fetches NASA data for every data type available at the
// position, concurrently. A failed lookup is reported in its item and does
// not fail the collection.
func (s *Service) CollectData(ctx context.Context, c domain.Coordinate, hour *int) (Collection, error) {
	a, err := s.Assess(c, hour)
	if err != nil {
		return Collection{}, err
	}

	today := domain.Now().UTC()
	items := make([]CollectedData, len(a.DataTypes))

	var g errgroup.Group
	g.SetLimit(collectConcurrency)
	for i, dt := range a.DataTypes {
		g.Go(func() error {
			source, data, err := s.fetchDataType(ctx, dt, c, today)
			items[i] = CollectedData{DataType: dt, Source: source}
			if err != nil {
				s.logger.Warn("nasa data collection failed", "data_type", dt, "source", source, "error", err)
				items[i].Error = err.Error()
				return nil
			}
			items[i].Data = data
			return nil
		})
	}
	_ = g.Wait()

	return Collection{Assessment: a, Items: items}, nil
}

func (s *Service) fetchDataType(ctx context.Context, dt domain.DataType, c domain.Coordinate, today time.Time) (string, any, error) {
	switch dt {
	case domain.DataSatelliteImagery:
		// GIBS publishes the previous day's imagery.
		tile, err := s.nasa.GIBSTile(nasa.TileQuery{
			Coordinate: c,
			Layer:      nasa.DefaultGIBSLayer,
			Date:       today.AddDate(0, 0, -1).Format(dateLayout),
			Zoom:       5,
		})
		return "gibs", tile, err
	case domain.DataGeological:
		asset, err := s.nasa.EarthAssets(ctx, nasa.EarthQuery{
			Coordinate: c,
			Date:       today.AddDate(0, 0, -30).Format(dateLayout),
			Dim:        0.1,
		})
		return "earth", asset, err
	case domain.DataSolar:
		events, err := s.nasa.DONKI(ctx, "FLR", today.AddDate(0, 0, -7).Format(dateLayout), today.Format(dateLayout))
		return "donki", events, err
	case domain.DataMoon:
		apod, err := s.nasa.APOD(ctx, today.Format(dateLayout))
		return "apod", apod, err
	}

	shortName, ok := granuleCollections[dt]
	if !ok {
		return "", nil, fmt.Errorf("%w: no nasa source for %s", ErrInvalidRequest, dt)
	}
	granules, err := s.nasa.SearchGranules(ctx, nasa.GranuleQuery{
		ShortName:  shortName,
		Coordinate: c,
		Start:      today.AddDate(0, 0, -7).Format(dateLayout),
		End:        today.Format(dateLayout),
		Limit:      5,
	})
	return "cmr", granules, err
}
