package fetcher

import (
	"context"
	"time"

	"fed-monitor/internal/storage"
)

// SeriesFetcher retrieves raw observations for one upstream series.
type SeriesFetcher interface {
	FetchSeries(ctx context.Context, seriesID string, from, to *time.Time) ([]storage.Observation, error)
}

// ObservationSink is the storage surface the ingestor writes through.
type ObservationSink interface {
	UpsertObservations(ctx context.Context, seriesKey string, points []storage.Observation) (int64, error)
	LatestObservation(ctx context.Context, seriesKey string) (storage.Observation, bool, error)
	LogFetch(ctx context.Context, seriesKey, status string, rows int, errMsg string) error
}
