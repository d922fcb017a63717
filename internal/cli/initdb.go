package cli

import (
	"github.com/spf13/cobra"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create database tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().InitDB(cmd.Context())
	},
}
