package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jason-c-dev/harmonia-memory/internal/cli"
	"github.com/jason-c-dev/harmonia-memory/pkg/config"
)

var validateEnvCmd = &cobra.Command{
	Use:   "validate-env",
	Short: "Check that the data directory and LLM backend are reachable",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
			os.Exit(1)
		}

		report := cli.ValidateEnvironment(cfg)
		fmt.Print(report.String())

		if !report.OK() {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(validateEnvCmd)
}
