package fetcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"fed-monitor/internal/config"
)

// FetchRange bounds one ingestion run. With neither Start nor BackfillDays set,
// each series resumes from the day after its latest stored observation.
type FetchRange struct {
	Start        *time.Time
	End          *time.Time
	BackfillDays int
}

// Ingestor fetches all configured series and writes them through the sink.
type Ingestor struct {
	client SeriesFetcher
	sink   ObservationSink
	series []config.SeriesDef
	logger zerolog.Logger
}

// NewIngestor wires a series fetcher and storage sink.
func NewIngestor(client SeriesFetcher, sink ObservationSink, series []config.SeriesDef, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		client: client,
		sink:   sink,
		series: series,
		logger: logger.With().Str("component", "ingestor").Logger(),
	}
}

// FetchAll ingests every configured series. A failure on one series is logged and
// recorded in the fetch log, and the remaining series proceed. Returns rows written
// per series key.
func (in *Ingestor) FetchAll(ctx context.Context, rng FetchRange) (map[string]int64, error) {
	results := make(map[string]int64, len(in.series))

	end := rng.End
	if end == nil {
		now := time.Now().UTC()
		end = &now
	}

	for _, def := range in.series {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		start, err := in.resolveStart(ctx, def.Key, rng)
		if err != nil {
			return results, err
		}

		rows, err := in.fetchAndStore(ctx, def, start, end)
		if err != nil {
			in.logger.Error().Err(err).Str("series", def.Key).Msg("series fetch failed")
			continue
		}
		results[def.Key] = rows
	}

	return results, nil
}

func (in *Ingestor) resolveStart(ctx context.Context, seriesKey string, rng FetchRange) (*time.Time, error) {
	if rng.Start != nil {
		return rng.Start, nil
	}
	if rng.BackfillDays > 0 {
		start := time.Now().UTC().AddDate(0, 0, -rng.BackfillDays)
		return &start, nil
	}

	latest, found, err := in.sink.LatestObservation(ctx, seriesKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	start := latest.Date.AddDate(0, 0, 1)
	return &start, nil
}

func (in *Ingestor) fetchAndStore(ctx context.Context, def config.SeriesDef, from, to *time.Time) (int64, error) {
	points, err := in.client.FetchSeries(ctx, def.SeriesID, from, to)
	if err != nil {
		if logErr := in.sink.LogFetch(ctx, def.Key, "error", 0, err.Error()); logErr != nil {
			in.logger.Error().Err(logErr).Str("series", def.Key).Msg("failed to record fetch error")
		}
		return 0, err
	}

	rows, err := in.sink.UpsertObservations(ctx, def.Key, points)
	if err != nil {
		if logErr := in.sink.LogFetch(ctx, def.Key, "error", 0, err.Error()); logErr != nil {
			in.logger.Error().Err(logErr).Str("series", def.Key).Msg("failed to record fetch error")
		}
		return 0, err
	}

	if err := in.sink.LogFetch(ctx, def.Key, "success", int(rows), ""); err != nil {
		in.logger.Error().Err(err).Str("series", def.Key).Msg("failed to record fetch success")
	}

	in.logger.Info().Str("series", def.Key).Int64("rows", rows).Msg("observations stored")
	return rows, nil
}
