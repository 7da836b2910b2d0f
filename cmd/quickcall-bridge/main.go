package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/quickcall/quickcall/internal/app"
	"github.com/quickcall/quickcall/internal/cli"
	"github.com/quickcall/quickcall/internal/config"
)

// main is the entrypoint for the bridge companion.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling.
func run(outW io.Writer, args []string) error {
	opts, shouldExit, err := cli.Parse("quickcall-bridge", "token and call companion for the quickcall panel", args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// Gateway credentials commonly live in a .env file next to the binary.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.Bridge.Listen = opts.Listen
	}
	if opts.LogFormat != "" {
		cfg.Logging.Format = opts.LogFormat
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.ValidateBridge(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	bridgeApp := app.NewBridge(outW, cfg)
	return bridgeApp.Run(ctx)
}
