package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set during build.
var Version = "0.1.0"

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "harmonia",
	Short: "Local-first memory service for conversational agents",
	Long: `harmonia extracts durable facts from conversation messages and stores
them per user in an embedded SQLite database with full-text search.

Examples:
  harmonia serve                 Start the REST API server
  harmonia init-db alice         Create (or verify) a user's database
  harmonia validate-env          Check that the LLM backend and data directory are reachable`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path (not read: configuration is loaded from ./config.yaml, ~/.harmonia/config.yaml or /etc/harmonia/config.yaml)")
	rootCmd.PersistentFlags().String("log_level", "", "override the configured log level (debug, info, warn, error)")
}
