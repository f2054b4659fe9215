// Package main provides the CLI entry point for the localflow assistant
// server: a local-first conversational assistant that drafts content,
// requires explicit human approval before anything is locked in, and only
// then executes tools against a content-addressed, immutable audit trail.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "localflow",
		Short:        "localflow - local-first conversational assistant server",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd(), buildMigrateCmd(), buildVersionCmd())
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the localflow version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "localflow %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}

func defaultConfigPath() string {
	if v := os.Getenv("LOCALFLOW_CONFIG"); v != "" {
		return v
	}
	return "localflow.yaml"
}
