package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fed-monitor/internal/app"
)

var (
	showLimit       int
	showTransitions bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display latest metric values or recent alert transitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:       showLimit,
			Transitions: showTransitions,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of transitions to display")
	showCmd.Flags().BoolVar(&showTransitions, "transitions", false, "Show the alert transition log instead of metric values")
}
