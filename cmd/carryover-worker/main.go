package main

import (
	"context"
	"os"

	"kharcha/internal/cli"
	"kharcha/internal/config"
	"kharcha/internal/log"
	"kharcha/internal/services"
)

func main() {
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig(log.New(log.DefaultConfig()), (*config.Config).ValidateCarryoverWorker)
	logger := cli.SetupLogger(cfg, log.ComponentCarryover)
	logger.Info("Starting carryover-worker", "interval", cfg.CarryoverInterval.String())

	result := cli.OpenBackend(context.Background(), logger, cfg)

	var publisher services.EventPublisher
	if result.Publisher != nil {
		publisher = result.Publisher
	}
	// The worker holds no summary cache. The API server caches the current
	// month for at most a minute, so inserted rows show up on the next view.
	taxonomy := services.NewTaxonomyService(result.Store, nil)
	carryover := services.NewCarryoverService(result.Store, taxonomy, publisher, nil, nil)
	runner := services.NewCarryoverRunner(result.Store, carryover)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(context.Context) {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	if err := runner.Run(ctx, cfg.CarryoverInterval); err != nil {
		logger.Error("Carryover worker failed", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Carryover worker stopped gracefully")
}
