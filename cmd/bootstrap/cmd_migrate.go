package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"llm-gateway/internal/wire"
)

var includeExternal bool

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&includeExternal, "include-external", false, "also create threads and media_attachments (development only)")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update gateway tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		data, cleanup, err := wire.InitializeDataLayer(ctx, cfg)
		if err != nil {
			return fmt.Errorf("init data layer: %w", err)
		}
		defer cleanup()

		if err := data.PgClient.AutoMigrate(ctx, includeExternal); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migration completed")
		return nil
	},
}
