package main

import (
	"fmt"
	"os"

	"commissions/internal/cli"
	applog "commissions/internal/log"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg, os.Stdout).WithComponent(applog.ComponentWorker)
	logger.Info("Starting commissions-worker")

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	app, err := cli.NewApp(ctx, cfg, logger, cli.Options{RequireEvents: cfg.AMQPURL != ""})
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to release resources", "error", err)
		}
	}()

	w, err := app.NewMirrorWorker(ctx)
	if err != nil {
		return fmt.Errorf("initialize mirror worker: %w", err)
	}

	logger.Info("Worker running", app.Describe()...)
	if err := w.Run(ctx); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}
	logger.Info("Worker shutdown complete")
	return nil
}
