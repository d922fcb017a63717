package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"fed-monitor/internal/storage"
)

const observationsPath = "/series/observations"

// FREDOptions parameterise the FRED API client.
type FREDOptions struct {
	BaseURL           string
	APIKey            string
	RequestsPerMinute int
	Timeout           time.Duration
	UserAgent         string
}

// FRED fetches economic series observations from the FRED API.
type FRED struct {
	opts    FREDOptions
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewFRED constructs a rate-limited FRED client.
func NewFRED(opts FREDOptions, logger zerolog.Logger) *FRED {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.stlouisfed.org/fred"
	}

	perMinute := opts.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 100
	}

	return &FRED{
		opts:    opts,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		logger:  logger.With().Str("component", "fred_client").Logger(),
	}
}

// FetchSeries retrieves observations for one FRED series id. Observations that
// FRED marks missing (value ".") are dropped.
func (f *FRED) FetchSeries(ctx context.Context, seriesID string, from, to *time.Time) ([]storage.Observation, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("series_id", seriesID)
	params.Set("api_key", f.opts.APIKey)
	params.Set("file_type", "json")
	if from != nil {
		params.Set("observation_start", from.UTC().Format("2006-01-02"))
	}
	if to != nil {
		params.Set("observation_end", to.UTC().Format("2006-01-02"))
	}

	endpoint := f.baseURL + observationsPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", seriesID, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(seriesID, resp.StatusCode, payload)
	}

	var body observationsResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", seriesID, err)
	}

	points := make([]storage.Observation, 0, len(body.Observations))
	for _, obs := range body.Observations {
		if obs.Value == "." {
			continue
		}
		date, err := time.Parse("2006-01-02", obs.Date)
		if err != nil {
			return nil, fmt.Errorf("parse %s observation date %q: %w", seriesID, obs.Date, err)
		}
		value, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s observation value %q: %w", seriesID, obs.Value, err)
		}
		points = append(points, storage.Observation{Date: date, Value: value})
	}
	return points, nil
}

type observationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

type errorResponse struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func parseHTTPError(seriesID string, status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.ErrorMessage != "" {
		return fmt.Errorf("fred api error for %s (%d): %s", seriesID, status, apiErr.ErrorMessage)
	}
	if len(payload) > 0 {
		return fmt.Errorf("fred api error for %s (%d): %s", seriesID, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("fred api error for %s (%d)", seriesID, status)
}

var _ SeriesFetcher = (*FRED)(nil)
