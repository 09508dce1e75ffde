package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/nasa-explorer/internal/adapter/http"
	"github.com/couchcryptid/nasa-explorer/internal/adapter/nasa"
	"github.com/couchcryptid/nasa-explorer/internal/domain"
	"github.com/couchcryptid/nasa-explorer/internal/game"
	"github.com/couchcryptid/nasa-explorer/internal/observability"
	"github.com/couchcryptid/nasa-explorer/internal/resilience"
	"github.com/couchcryptid/nasa-explorer/internal/store"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type stubNASA struct {
	err error
}

func (s *stubNASA) APOD(_ context.Context, date string) (nasa.APOD, error) {
	if s.err != nil {
		return nasa.APOD{}, s.err
	}
	return nasa.APOD{Date: date, Title: "Horsehead Nebula", MediaType: "image"}, nil
}

func (s *stubNASA) EarthAssets(_ context.Context, q nasa.EarthQuery) (nasa.EarthAsset, error) {
	return nasa.EarthAsset{ID: "LC8", Date: q.Date}, s.err
}

func (s *stubNASA) SearchGranules(_ context.Context, q nasa.GranuleQuery) ([]nasa.Granule, error) {
	if q.ShortName == "" {
		return nil, eris.Wrap(nasa.ErrInvalidQuery, "cmr short_name is required")
	}
	return []nasa.Granule{{ID: "G1", DatasetID: q.ShortName}}, s.err
}

func (s *stubNASA) DONKI(_ context.Context, eventType, _, _ string) ([]nasa.SpaceWeatherEvent, error) {
	if eventType != "FLR" {
		return nil, eris.Wrapf(nasa.ErrInvalidQuery, "unknown donki event type %q", eventType)
	}
	return []nasa.SpaceWeatherEvent{json.RawMessage(`{"flrID":"2024-04-20T01:00:00-FLR-001"}`)}, s.err
}

func (s *stubNASA) GIBSTile(q nasa.TileQuery) (nasa.TileRef, error) {
	return nasa.TileFor(nasa.DefaultGIBSURL, q)
}

func newTestServer(t *testing.T, nasaErr error) *httpadapter.Server {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := &stubNASA{err: nasaErr}
	svc := game.NewService(store.NewMemory(), api, nil, observability.NewMetricsForTesting(), logger)
	return httpadapter.NewServer(":0", []string{"https://explorer.example"}, svc, api, &mockReadiness{}, logger)
}

func do(t *testing.T, srv http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthzReturns200(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReflectsChecker(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := game.NewService(store.NewMemory(), &stubNASA{}, nil, observability.NewMetricsForTesting(), logger)

	ready := httpadapter.NewServer(":0", nil, svc, &stubNASA{}, &mockReadiness{}, logger)
	assert.Equal(t, http.StatusOK, do(t, ready, http.MethodGet, "/readyz", "").Code)

	notReady := httpadapter.NewServer(":0", nil, svc, &stubNASA{}, &mockReadiness{err: fmt.Errorf("store down")}, logger)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, notReady, http.MethodGet, "/readyz", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		status int
		env    domain.Environment
		last   domain.DataType
	}{
		{"mountain day", "lat=40&lon=-105&hour=12", http.StatusOK, domain.EnvironmentMountain, domain.DataSolar},
		{"polar night", "lat=-85&lon=0&hour=2", http.StatusOK, domain.EnvironmentPolar, domain.DataMoon},
		{"clock hour", "lat=0&lon=0", http.StatusOK, domain.EnvironmentLand, domain.DataSolar},
		{"missing lon", "lat=10", http.StatusBadRequest, "", ""},
		{"out of range", "lat=91&lon=0", http.StatusBadRequest, "", ""},
		{"not a number", "lat=abc&lon=0", http.StatusBadRequest, "", ""},
		{"bad hour", "lat=0&lon=0&hour=24", http.StatusBadRequest, "", ""},
	}

	srv := newTestServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, "/api/v1/assess?"+tt.query, "")
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				body := decode[map[string]string](t, rec)
				assert.NotEmpty(t, body["error"])
				return
			}
			a := decode[domain.Assessment](t, rec)
			assert.Equal(t, tt.env, a.Environment)
			assert.Equal(t, tt.last, a.DataTypes[len(a.DataTypes)-1])
		})
	}
}

func TestReportLocationFlow(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/api/v1/users/u1/locations",
		`{"coordinate":{"latitude":40,"longitude":-105,"accuracy":5},"session_id":"s1","hour":12}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	res := decode[game.VisitResult](t, rec)
	assert.Equal(t, "u1", res.Record.UserID)
	assert.Equal(t, domain.EnvironmentMountain, res.Record.Environment)
	assert.Equal(t, 30, res.Record.ExperienceReward)
	assert.Equal(t, []domain.AchievementID{domain.AchievementFirstLocation}, res.Unlocked)
	require.NotNil(t, res.Record.Coordinate.Accuracy)
	assert.InDelta(t, 5.0, *res.Record.Coordinate.Accuracy, 0)

	rec = do(t, srv, http.MethodGet, "/api/v1/users/u1/locations?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	recs := decode[[]domain.LocationRecord](t, rec)
	require.Len(t, recs, 1)
	assert.Equal(t, res.Record.ID, recs[0].ID)

	rec = do(t, srv, http.MethodGet, "/api/v1/users/u1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[domain.UserGameStats](t, rec)
	assert.Equal(t, int64(1), stats.TotalLocationsVisited)
	assert.Equal(t, int64(4), stats.NASADataCollected)

	rec = do(t, srv, http.MethodDelete, "/api/v1/users/u1/locations/"+res.Record.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/api/v1/users/u1/locations/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/users/u1/locations", "")
	assert.Empty(t, decode[[]domain.LocationRecord](t, rec))
}

func TestReportLocationRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"coordinate":`},
		{"missing coordinate", `{"session_id":"s1"}`},
		{"missing longitude", `{"coordinate":{"latitude":10}}`},
		{"longitude out of range", `{"coordinate":{"latitude":10,"longitude":181}}`},
		{"unknown field", `{"coordinate":{"latitude":10,"longitude":10},"speed_kmh":3}`},
		{"hour above range", `{"coordinate":{"latitude":25,"longitude":10},"session_id":"s","hour":25}`},
		{"negative hour", `{"coordinate":{"latitude":25,"longitude":10},"session_id":"s","hour":-1}`},
	}

	srv := newTestServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/v1/users/u1/locations", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestListLocationsRejectsNegativeLimit(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodGet, "/api/v1/users/u1/locations?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteMission(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/api/v1/users/u1/missions/artemis/complete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[game.MissionResult](t, rec)
	assert.Equal(t, "artemis", res.MissionID)
	assert.Equal(t, []domain.AchievementID{domain.AchievementSpaceExplorer}, res.Unlocked)
}

func TestAchievementsCatalog(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodGet, "/api/v1/achievements", "")
	require.Equal(t, http.StatusOK, rec.Code)
	catalog := decode[[]domain.Achievement](t, rec)
	assert.Len(t, catalog, len(domain.Achievements))
	assert.Equal(t, domain.AchievementFirstLocation, catalog[0].ID)
}

func TestNASARoutes(t *testing.T) {
	tests := []struct {
		name   string
		target string
		status int
	}{
		{"apod", "/api/v1/nasa/apod?date=2024-04-20", http.StatusOK},
		{"earth assets", "/api/v1/nasa/earth/assets?lat=40&lon=-105&dim=0.1", http.StatusOK},
		{"earth bad dim", "/api/v1/nasa/earth/assets?lat=40&lon=-105&dim=wide", http.StatusBadRequest},
		{"gibs tile", "/api/v1/nasa/gibs/tile?lat=40&lon=-105&zoom=2", http.StatusOK},
		{"gibs bad zoom", "/api/v1/nasa/gibs/tile?lat=40&lon=-105&zoom=12", http.StatusBadRequest},
		{"granules", "/api/v1/nasa/cmr/granules?short_name=MOD04_L2&lat=40&lon=-105", http.StatusOK},
		{"granules without collection", "/api/v1/nasa/cmr/granules?lat=40&lon=-105", http.StatusBadRequest},
		{"donki", "/api/v1/nasa/donki/FLR?start=2024-04-19", http.StatusOK},
		{"donki unknown type", "/api/v1/nasa/donki/XYZ", http.StatusBadRequest},
		{"collect", "/api/v1/nasa/collect?lat=40&lon=-105&hour=12", http.StatusOK},
	}

	srv := newTestServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestGIBSTileDefaults(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodGet, "/api/v1/nasa/gibs/tile?lat=40&lon=-105", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tile := decode[nasa.TileRef](t, rec)
	assert.Equal(t, nasa.DefaultGIBSLayer, tile.Layer)
	assert.Equal(t, "2024-04-25", tile.Date)
	assert.Equal(t, 3, tile.Zoom)
}

func TestNASAErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"upstream error", eris.Wrap(nasa.ErrUpstream, "apod: status 500"), http.StatusBadGateway},
		{"circuit open", resilience.ErrCircuitOpen, http.StatusServiceUnavailable},
		{"unexpected", fmt.Errorf("decode response: unexpected EOF"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(t, tt.err), http.MethodGet, "/api/v1/nasa/apod", "")
			assert.Equal(t, tt.status, rec.Code)
			body := decode[map[string]string](t, rec)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestCollectReportsPartialFailures(t *testing.T) {
	srv := newTestServer(t, eris.Wrap(nasa.ErrUpstream, "earth: status 503"))

	rec := do(t, srv, http.MethodGet, "/api/v1/nasa/collect?lat=40&lon=-105&hour=12", "")
	require.Equal(t, http.StatusOK, rec.Code)

	col := decode[struct {
		Items []struct {
			DataType string `json:"data_type"`
			Error    string `json:"error"`
		} `json:"items"`
	}](t, rec)
	require.Len(t, col.Items, 4)
	assert.Empty(t, col.Items[0].Error, "gibs tiles are computed locally")
	assert.NotEmpty(t, col.Items[1].Error)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/achievements", nil)
	req.Header.Set("Origin", "https://explorer.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, "https://explorer.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
