package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jason-c-dev/harmonia-memory/internal/cli"
	"github.com/jason-c-dev/harmonia-memory/pkg/config"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db <user_id>",
	Short: "Create or verify a user's database",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
			os.Exit(1)
		}
		if err := cli.InitDB(cfg, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}
