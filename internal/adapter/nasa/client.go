package nasa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/nasa-explorer/internal/observability"
	"github.com/couchcryptid/nasa-explorer/internal/resilience"
)

// Default upstream endpoints.
const (
	DefaultBaseURL = "https://api.nasa.gov"
	DefaultCMRURL  = "https://cmr.earthdata.nasa.gov/search"
	DefaultGIBSURL = "https://gibs.earthdata.nasa.gov/wmts/epsg4326/best"
)

// searchRadius is the half-width in degrees of the area searched around a position.
const searchRadius = 0.1

// ErrUpstream is returned when a NASA API answers with a non-success status.
var ErrUpstream = eris.New("nasa upstream error")

// Config configures a Client. Zero URLs fall back to the public endpoints.
type Config struct {
	APIKey    string
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
	BaseURL   string
	CMRURL    string
	GIBSURL   string
}

// Client calls the NASA open APIs. Every request passes a shared token-bucket
// limiter, is retried on transient failures, and is guarded by a circuit breaker.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	cmrURL     string
	gibsURL    string
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
	retry      resilience.RetryConfig
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a NASA API client.
func NewClient(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CMRURL == "" {
		cfg.CMRURL = DefaultCMRURL
	}
	if cfg.GIBSURL == "" {
		cfg.GIBSURL = DefaultGIBSURL
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		logger.Warn("nasa circuit breaker state change", "from", from.String(), "to", to.String())
		if to == resilience.CircuitOpen {
			metrics.NASABreakerOpen.Set(1)
		} else {
			metrics.NASABreakerOpen.Set(0)
		}
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger(logger, "nasa", "request")

	return &Client{
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		cmrURL:     cfg.CMRURL,
		gibsURL:    cfg.GIBSURL,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		breaker:    resilience.NewCircuitBreaker(breakerCfg),
		retry:      retryCfg,
		metrics:    metrics,
		logger:     logger,
	}
}

// APOD fetches the Astronomy Picture of the Day. An empty date means today.
func (c *Client) APOD(ctx context.Context, date string) (APOD, error) {
	params := url.Values{"api_key": {c.apiKey}}
	if date != "" {
		params.Set("date", date)
	}

	var out APOD
	err := c.getJSON(ctx, apiAPOD, c.baseURL+"/planetary/apod?"+params.Encode(), &out)
	return out, err
}

// EarthAssets finds the Landsat scene nearest to q.Date at the position.
func (c *Client) EarthAssets(ctx context.Context, q EarthQuery) (EarthAsset, error) {
	params := url.Values{
		"api_key": {c.apiKey},
		"lat":     {formatCoord(q.Coordinate.Latitude)},
		"lon":     {formatCoord(q.Coordinate.Longitude)},
	}
	if q.Date != "" {
		params.Set("date", q.Date)
	}
	if q.Dim > 0 {
		params.Set("dim", strconv.FormatFloat(q.Dim, 'f', -1, 64))
	}

	var out EarthAsset
	err := c.getJSON(ctx, apiEarth, c.baseURL+"/planetary/earth/assets?"+params.Encode(), &out)
	return out, err
}

// SearchGranules searches CMR for granules of q.ShortName intersecting a box
// of ±0.1 degrees around the position, newest first.
func (c *Client) SearchGranules(ctx context.Context, q GranuleQuery) ([]Granule, error) {
	if q.ShortName == "" {
		return nil, eris.Wrap(ErrInvalidQuery, "cmr short_name is required")
	}
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	box := q.Coordinate.BoundingBox(searchRadius)
	params := url.Values{
		"short_name":   {q.ShortName},
		"bounding_box": {fmt.Sprintf("%s,%s,%s,%s", formatCoord(box.Min(0)), formatCoord(box.Min(1)), formatCoord(box.Max(0)), formatCoord(box.Max(1)))},
		"page_size":    {strconv.Itoa(limit)},
		"sort_key":     {"-start_date"},
	}
	if q.Start != "" || q.End != "" {
		params.Set("temporal", q.Start+","+q.End)
	}

	var resp cmrResponse
	if err := c.getJSON(ctx, apiCMR, c.cmrURL+"/granules.json?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	granules := make([]Granule, 0, len(resp.Feed.Entry))
	for _, e := range resp.Feed.Entry {
		g := Granule{
			ID:        e.ID,
			Title:     e.Title,
			DatasetID: e.DatasetID,
			TimeStart: e.TimeStart,
			TimeEnd:   e.TimeEnd,
			Links:     make([]string, 0, len(e.Links)),
		}
		for _, l := range e.Links {
			g.Links = append(g.Links, l.Href)
		}
		granules = append(granules, g)
	}
	return granules, nil
}

// DONKI lists space weather events of eventType between start and end (YYYY-MM-DD).
func (c *Client) DONKI(ctx context.Context, eventType, start, end string) ([]SpaceWeatherEvent, error) {
	if !slices.Contains(DONKIEventTypes, eventType) {
		return nil, eris.Wrapf(ErrInvalidQuery, "unknown donki event type %q", eventType)
	}
	params := url.Values{"api_key": {c.apiKey}}
	if start != "" {
		params.Set("startDate", start)
	}
	if end != "" {
		params.Set("endDate", end)
	}

	var out []SpaceWeatherEvent
	if err := c.getJSON(ctx, apiDONKI, c.baseURL+"/DONKI/"+eventType+"?"+params.Encode(), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []SpaceWeatherEvent{}
	}
	return out, nil
}

// GIBSTile resolves the GIBS tile covering q.
func (c *Client) GIBSTile(q TileQuery) (TileRef, error) {
	return TileFor(c.gibsURL, q)
}

// getJSON performs a GET with rate limiting, retry and the circuit breaker,
// and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, api, fullURL string, out any) error {
	start := time.Now()
	defer func() {
		c.metrics.NASAAPIDuration.WithLabelValues(api).Observe(time.Since(start).Seconds())
	}()

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrapf(err, "%s: rate limit wait", api)
			}
			return c.doRequest(ctx, api, fullURL)
		})
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, resilience.ErrCircuitOpen) {
			outcome = "rejected"
		}
		c.metrics.NASARequests.WithLabelValues(api, outcome).Inc()
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.metrics.NASARequests.WithLabelValues(api, "error").Inc()
		return eris.Wrapf(err, "%s: decode response", api)
	}
	c.metrics.NASARequests.WithLabelValues(api, "success").Inc()
	return nil
}

func (c *Client) doRequest(ctx context.Context, api, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: create request", api)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrapf(ctx.Err(), "%s request", api)
		}
		return nil, resilience.NewTransientError(eris.Wrapf(err, "%s request", api), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "%s: read body", api), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		upstreamErr := eris.Wrapf(ErrUpstream, "%s: status %d: %s", api, resp.StatusCode, truncate(body, 256))
		if resilience.IsTransientStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(upstreamErr, resp.StatusCode)
		}
		return nil, upstreamErr
	}
	return body, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
