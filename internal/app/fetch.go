package app

import (
	"context"
	"time"

	"fed-monitor/internal/fetcher"
)

// Fetch ingests observations for all configured series and refreshes derived
// values. With no range options the run is incremental, resuming each series from
// its latest stored observation.
func (a *App) Fetch(ctx context.Context, opts FetchOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.InitSchema(ctx); err != nil {
		return err
	}

	rng := fetcher.FetchRange{
		Start:        opts.Start,
		End:          opts.End,
		BackfillDays: opts.BackfillDays,
	}
	if opts.Years > 0 && rng.Start == nil && rng.BackfillDays == 0 {
		start := time.Now().UTC().AddDate(-opts.Years, 0, 0)
		rng.Start = &start
	}

	svc := a.newService(store, false)
	results, err := svc.Fetch(ctx, rng)
	if err != nil {
		return err
	}

	var total int64
	for _, rows := range results {
		total += rows
	}
	a.Logger.Info().Int64("observations", total).Int("series", len(results)).Msg("fetch complete")
	return nil
}
