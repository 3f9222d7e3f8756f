// Command storefront runs the storefront edge: per-device carts, the hamper
// configurator and checkout in front of the storefront API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/itsobito471-bot/thebottlestories/internal/app"
	"github.com/itsobito471-bot/thebottlestories/internal/config"
	"github.com/itsobito471-bot/thebottlestories/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("storefront edge exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// configureJSON sets process-wide encoding options. Prices travel as JSON
// numbers on both the storefront API and the edge's own surface.
func configureJSON() {
	decimal.MarshalJSONWithoutQuotes = true
}

func run() error {
	configureJSON()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New("storefront", cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting storefront edge",
		slog.String("version", app.Version),
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("storage", cfg.StorageBackend),
		slog.Bool("kafka", cfg.KafkaEnabled),
	)

	edge, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := edge.Run(ctx); err != nil {
		return err
	}
	log.Info("storefront edge stopped")
	return nil
}
