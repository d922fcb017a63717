package cli

import (
	"github.com/spf13/cobra"

	"fed-monitor/internal/app"
)

var (
	checkDryRun     bool
	checkSummary    bool
	checkSeverities []string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate alert rules against the latest data",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.CheckOptions{
			DryRun:     checkDryRun,
			Summary:    checkSummary,
			Severities: checkSeverities,
		}
		return getApp().Check(cmd.Context(), opts)
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkDryRun, "dry-run", false, "Evaluate without updating state or sending notifications")
	checkCmd.Flags().BoolVar(&checkSummary, "summary", false, "Print currently breached alerts grouped by severity")
	checkCmd.Flags().StringSliceVar(&checkSeverities, "severity", nil, "Only process alerts of these severities (defaults to config)")
}
