package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rana-image-tool/cmd/ranaimg/commands"
	"rana-image-tool/internal/config"
	"rana-image-tool/internal/display"
	"rana-image-tool/internal/observability"
	"rana-image-tool/internal/services"
)

func main() {
	os.Exit(run())
}

func run() int {
	// A missing .env is the normal case
	_ = godotenv.Load() //nolint:errcheck // Optional file

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	otelConfig := observability.LoadConfig()
	otelConfig.LogLevel = cfg.Logging.Level
	otelConfig.LogFormat = cfg.Logging.Format
	otelConfig.ServiceVersion = commands.Version
	logger := observability.NewLogger(otelConfig)

	// Ctrl+C cancels the batch; files already committed stay committed
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := observability.NewProvider(ctx, otelConfig, logger)
	if err != nil {
		logger.Error(ctx).Err(err).Msg("Failed to initialize OpenTelemetry")
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx).Err(err).Msg("Telemetry shutdown error")
		}
	}()

	container, err := services.NewContainer(ctx, cfg, services.Options{
		Logger:   logger,
		Provider: provider,
		Out:      os.Stdout,
		Terminal: display.IsTerminal(os.Stdout),
	})
	if err != nil {
		logger.Error(ctx).Err(err).Msg("Failed to initialize services container")
		return 1
	}
	defer container.Close()

	return commands.Execute(ctx, container, os.Args[1:])
}
