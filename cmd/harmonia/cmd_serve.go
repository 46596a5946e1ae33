package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jason-c-dev/harmonia-memory/internal/api"
	"github.com/jason-c-dev/harmonia-memory/internal/logging"
	"github.com/jason-c-dev/harmonia-memory/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start the HTTP server that accepts memory store, search, list, export, get, and delete requests.`,
	Run: func(cmd *cobra.Command, args []string) {
		runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 0, "override the configured REST API port")
}

func runServe(cmd *cobra.Command) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.RestAPI.Port = port
		cfg.RestAPI.AutoPort = false
	}

	if level, _ := cmd.Flags().GetString("log_level"); level != "" {
		cfg.Logging.Level = level
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output})

	if err := cfg.EnsureDataDir(); err != nil {
		fmt.Fprintf(os.Stderr, "error preparing data directory: %v\n", err)
		os.Exit(1)
	}

	server := api.NewServer(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
