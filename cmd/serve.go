package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xylemhq/xylem/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server (default)",
	Long: `Start the HTTP API server.

The server binds to localhost only and exposes the query, fact,
remember/recall, conflict, and episode endpoints under /api/v1.

Examples:
  xylem serve
  xylem serve --addr 127.0.0.1:9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		return runServeAt(addr)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("xylem %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Bind address (overrides config)")
}

func runServe() error { return runServeAt("") }

func runServeAt(addr string) error {
	s, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if addr == "" {
		addr = cfg.ListenAddr
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	pipe := buildPipeline(s, cfg, logger)
	srv := server.New(addr, s, pipe, logger)

	fmt.Fprintln(os.Stderr, "🧠 Xylem - reconciled memory for chat agents")
	fmt.Fprintf(os.Stderr, "Listening on http://%s\n", addr)
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to stop.")
	fmt.Fprintln(os.Stderr, "")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		fmt.Fprintln(os.Stderr, "Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
