package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fed-monitor/internal/app"
)

var (
	fetchStart        string
	fetchEnd          string
	fetchBackfillDays int
	fetchYears        int
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch observations for all configured series",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.FetchOptions{
			BackfillDays: fetchBackfillDays,
			Years:        fetchYears,
		}

		if fetchStart != "" {
			start, err := time.Parse("2006-01-02", fetchStart)
			if err != nil {
				return fmt.Errorf("invalid --start value: %w", err)
			}
			opts.Start = &start
		}

		if fetchEnd != "" {
			end, err := time.Parse("2006-01-02", fetchEnd)
			if err != nil {
				return fmt.Errorf("invalid --end value: %w", err)
			}
			opts.End = &end
		}

		return getApp().Fetch(cmd.Context(), opts)
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchStart, "start", "", "Start date (YYYY-MM-DD, inclusive)")
	fetchCmd.Flags().StringVar(&fetchEnd, "end", "", "End date (YYYY-MM-DD, inclusive)")
	fetchCmd.Flags().IntVar(&fetchBackfillDays, "backfill-days", 0, "Refetch this many days before each series' latest observation")
	fetchCmd.Flags().IntVar(&fetchYears, "years", 0, "Fetch this many years of history (ignored when --start or --backfill-days is set)")
}
