package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fredServer(t *testing.T, handler http.HandlerFunc) *FRED {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFRED(FREDOptions{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Timeout: time.Second,
	}, zerolog.Nop())
}

func TestFetchSeriesParsesObservations(t *testing.T) {
	var gotQuery map[string][]string
	client := fredServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/series/observations", r.URL.Path)
		gotQuery = r.URL.Query()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"observations": []map[string]string{
				{"date": "2026-01-05", "value": "5.33"},
				{"date": "2026-01-06", "value": "."},
				{"date": "2026-01-07", "value": "5.34"},
			},
		})
	})

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points, err := client.FetchSeries(context.Background(), "EFFR", &from, nil)
	require.NoError(t, err)

	// The "." placeholder is dropped, not stored as zero.
	require.Len(t, points, 2)
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), points[0].Date)
	assert.Equal(t, 5.33, points[0].Value)
	assert.Equal(t, 5.34, points[1].Value)

	assert.Equal(t, "EFFR", gotQuery["series_id"][0])
	assert.Equal(t, "test-key", gotQuery["api_key"][0])
	assert.Equal(t, "json", gotQuery["file_type"][0])
	assert.Equal(t, "2026-01-01", gotQuery["observation_start"][0])
	assert.NotContains(t, gotQuery, "observation_end")
}

func TestFetchSeriesAPIError(t *testing.T) {
	client := fredServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error_code":    400,
			"error_message": "Bad Request. The value for variable api_key is not registered.",
		})
	})

	_, err := client.FetchSeries(context.Background(), "EFFR", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
	assert.Contains(t, err.Error(), "EFFR")
}

func TestFetchSeriesMalformedValue(t *testing.T) {
	client := fredServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"observations": []map[string]string{
				{"date": "2026-01-05", "value": "not-a-number"},
			},
		})
	})

	_, err := client.FetchSeries(context.Background(), "EFFR", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-number")
}
