package main

import (
	"fmt"
	"os"

	"commissions/internal/cli"
	"commissions/internal/config"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	// The admin CLI talks to the store directly and never authenticates.
	cfg.AuthDisabled = true
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	// Keep stdout for command output.
	cfg.LogLevel = "warn"
	logger := cli.SetupLogger(cfg, os.Stderr)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	app, err := cli.NewApp(ctx, cfg, logger, cli.Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	err = cli.NewAdminCommand(app.Entries, app.Backend).Execute(ctx, os.Args[1:])
	if closeErr := app.Close(); closeErr != nil {
		fmt.Fprintln(os.Stderr, "Error:", closeErr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
