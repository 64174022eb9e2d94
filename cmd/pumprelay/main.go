// Command pumprelay runs the Pump.fun token event relay: one subscription
// to the Solana RPC WebSocket feed, fanned out to any number of downstream
// WebSocket consumers.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/solanastream/pumprelay/internal/config"
	"github.com/solanastream/pumprelay/internal/hub"
	"github.com/solanastream/pumprelay/internal/server"
	"github.com/solanastream/pumprelay/internal/upstream"
	"github.com/solanastream/pumprelay/pkg/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pumprelay",
		Short: "Relay pump.fun token events to WebSocket consumers",
		Long: `pumprelay subscribes to pump.fun program account changes on the
Solana RPC WebSocket feed, converts each notification into a canonical
token event, and broadcasts it to every connected WebSocket client.

Configuration comes from the environment (SERVER_PORT, SOLANA_RPC_WS,
PUMP_PROGRAM_ID, LOG_LEVEL, LOG_FORMAT); flags override it.`,
		SilenceUsage: true,
		RunE:         run,
	}

	cmd.Flags().Int("port", 0, "Downstream server port (overrides SERVER_PORT)")
	cmd.Flags().String("upstream-url", "", "Solana RPC WebSocket URL (overrides SOLANA_RPC_WS)")
	cmd.Flags().String("log-level", "", "Log level (overrides LOG_LEVEL)")

	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(&logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	logger.Info().
		Int("port", cfg.ServerPort).
		Str("upstream_url", cfg.UpstreamURL).
		Str("program_id", cfg.ProgramID).
		Msg("Starting pump.fun event relay")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.New(&logger, cfg.ClientBuffer)

	connector := upstream.New(upstream.Options{
		URL:        cfg.UpstreamURL,
		ProgramID:  cfg.ProgramID,
		RetryDelay: cfg.RetryDelay,
	}, h, &logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = connector.Run(ctx)
	}()

	srv := server.New(h, connector.Status, &logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("WebSocket server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		stop()
		wg.Wait()
		h.Close()
		return err
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Server shutdown incomplete")
	}
	wg.Wait()
	h.Close()

	logger.Info().Msg("Relay stopped")
	return nil
}

// applyFlags overrides environment configuration with explicitly set flags.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.ServerPort, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("upstream-url") {
		cfg.UpstreamURL, _ = cmd.Flags().GetString("upstream-url")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
}
