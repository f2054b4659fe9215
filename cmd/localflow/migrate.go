package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/localflow/internal/config"
)

// buildMigrateCmd applies the store's schema. Both backends run
// CREATE TABLE IF NOT EXISTS on Open, so this is an explicit, scriptable way
// to run that step (e.g. before a zero-downtime deploy) without starting the
// HTTP server.
func buildMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			defer st.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", cfg.DatabaseURL)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML/JSON5 configuration file")
	return cmd
}
