package cli

import (
	"github.com/spf13/cobra"

	"fed-monitor/internal/app"
)

var (
	exportOutputDir string
	exportDays      int
	exportPNG       bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the dashboard JSON document and optional PNG charts",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			OutputDir: exportOutputDir,
			Days:      exportDays,
			PNG:       exportPNG,
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOutputDir, "output-dir", "", "Directory to write exports into (defaults to config)")
	exportCmd.Flags().IntVar(&exportDays, "days", 0, "History window in days for charts (defaults to config)")
	exportCmd.Flags().BoolVar(&exportPNG, "png", false, "Also render one PNG per configured chart")
}
