package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/couchcryptid/nasa-explorer/internal/adapter/nasa"
	"github.com/couchcryptid/nasa-explorer/internal/domain"
	"github.com/couchcryptid/nasa-explorer/internal/game"
)

// defaultTileZoom applies when a GIBS tile query omits zoom.
const defaultTileZoom = 3

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 16

// visitBody is the JSON body of a location report.
type visitBody struct {
	Coordinate *coordinateBody `json:"coordinate"`
	SessionID  string          `json:"session_id"`
	Hour       *int            `json:"hour,omitempty"`
	RecordedAt *time.Time      `json:"recorded_at,omitempty"`
}

type coordinateBody struct {
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	Accuracy         *float64 `json:"accuracy,omitempty"`
	Altitude         *float64 `json:"altitude,omitempty"`
	AltitudeAccuracy *float64 `json:"altitude_accuracy,omitempty"`
	Heading          *float64 `json:"heading,omitempty"`
	Speed            *float64 `json:"speed,omitempty"`
}

func (b *coordinateBody) toDomain() (domain.Coordinate, error) {
	if b == nil || b.Latitude == nil || b.Longitude == nil {
		return domain.Coordinate{}, fmt.Errorf("%w: latitude and longitude are required", domain.ErrInvalidCoordinate)
	}
	return domain.Coordinate{
		Latitude:         *b.Latitude,
		Longitude:        *b.Longitude,
		Accuracy:         b.Accuracy,
		Altitude:         b.Altitude,
		AltitudeAccuracy: b.AltitudeAccuracy,
		Heading:          b.Heading,
		Speed:            b.Speed,
	}, nil
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	c, hour, err := positionParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.game.Assess(c, hour)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleAchievements(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, domain.Achievements)
}

func (s *Server) handleReportLocation(w http.ResponseWriter, r *http.Request) {
	var body visitBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: decode body: %v", errBadParam, err))
		return
	}
	c, err := body.Coordinate.toDomain()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	req := game.VisitRequest{
		UserID:     chi.URLParam(r, "userID"),
		SessionID:  body.SessionID,
		Coordinate: c,
		Hour:       body.Hour,
	}
	if body.RecordedAt != nil {
		req.RecordedAt = *body.RecordedAt
	}

	res, err := s.game.ReportLocation(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recs, err := s.game.Locations(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleRemoveLocation(w http.ResponseWriter, r *http.Request) {
	err := s.game.RemoveLocation(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "locationID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.game.Stats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCompleteMission(w http.ResponseWriter, r *http.Request) {
	res, err := s.game.CompleteMission(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "missionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAPOD(w http.ResponseWriter, r *http.Request) {
	apod, err := s.nasa.APOD(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apod)
}

func (s *Server) handleEarthAssets(w http.ResponseWriter, r *http.Request) {
	c, err := coordinateParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	dim, err := floatParam(r, "dim", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asset, err := s.nasa.EarthAssets(r.Context(), nasa.EarthQuery{
		Coordinate: c,
		Date:       r.URL.Query().Get("date"),
		Dim:        dim,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (s *Server) handleGIBSTile(w http.ResponseWriter, r *http.Request) {
	c, err := coordinateParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	zoom, err := intParam(r, "zoom", defaultTileZoom)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	q := nasa.TileQuery{
		Coordinate: c,
		Layer:      r.URL.Query().Get("layer"),
		Date:       r.URL.Query().Get("date"),
		Zoom:       zoom,
	}
	if q.Layer == "" {
		q.Layer = nasa.DefaultGIBSLayer
	}
	if q.Date == "" {
		q.Date = domain.Now().UTC().AddDate(0, 0, -1).Format(time.DateOnly)
	}

	tile, err := s.nasa.GIBSTile(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tile)
}

func (s *Server) handleGranules(w http.ResponseWriter, r *http.Request) {
	c, err := coordinateParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	granules, err := s.nasa.SearchGranules(r.Context(), nasa.GranuleQuery{
		ShortName:  q.Get("short_name"),
		Coordinate: c,
		Start:      q.Get("start"),
		End:        q.Get("end"),
		Limit:      limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, granules)
}

func (s *Server) handleDONKI(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events, err := s.nasa.DONKI(r.Context(), chi.URLParam(r, "eventType"), q.Get("start"), q.Get("end"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	c, hour, err := positionParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	col, err := s.game.CollectData(r.Context(), c, hour)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

// coordinateParams reads and validates the lat and lon query parameters.
func coordinateParams(r *http.Request) (domain.Coordinate, error) {
	q := r.URL.Query()
	if q.Get("lat") == "" || q.Get("lon") == "" {
		return domain.Coordinate{}, fmt.Errorf("%w: lat and lon are required", domain.ErrInvalidCoordinate)
	}
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: lat %q", domain.ErrInvalidCoordinate, q.Get("lat"))
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: lon %q", domain.ErrInvalidCoordinate, q.Get("lon"))
	}
	c := domain.Coordinate{Latitude: lat, Longitude: lon}
	if err := c.Validate(); err != nil {
		return domain.Coordinate{}, err
	}
	return c, nil
}

// positionParams reads the coordinate and the optional hour parameter.
func positionParams(r *http.Request) (domain.Coordinate, *int, error) {
	c, err := coordinateParams(r)
	if err != nil {
		return domain.Coordinate{}, nil, err
	}
	raw := r.URL.Query().Get("hour")
	if raw == "" {
		return c, nil, nil
	}
	hour, err := strconv.Atoi(raw)
	if err != nil || hour < 0 || hour > 23 {
		return domain.Coordinate{}, nil, fmt.Errorf("%w: hour %q outside 0-23", errBadParam, raw)
	}
	return c, &hour, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", errBadParam, name, raw)
	}
	return n, nil
}

func floatParam(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", errBadParam, name, raw)
	}
	return f, nil
}
