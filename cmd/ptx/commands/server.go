package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/server"
)

// ServerCmd starts the PTX HTTP API
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the PTX HTTP API server",
	Long: `Start the PTX HTTP API server.

The server exposes template and dataset management, single runs, background
batches with a WebSocket progress feed, Prometheus metrics on /metrics and
a health summary on /health. Config file changes to the llm section are
picked up without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

var serverPort int

func init() {
	ServerCmd.Flags().IntVar(&serverPort, "port", 0, "Port to listen on (overrides server.port)")
	ServerCmd.Flags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.database.Close()

	port := server.ConfiguredPort(s.cfg)
	if serverPort != 0 {
		port = serverPort
	}

	srv, err := server.NewPTXServer(s.services)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	printStartupBanner(verbosity, s.dbPath, port, s.cfg)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(port)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			return errors.Wrap(err, "server failed to start")
		}
		return nil
	case <-sigChan:
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Stop()
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	}
}
