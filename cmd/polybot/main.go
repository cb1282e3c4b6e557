// Command polybot trades the Polymarket BTC Up/Down 5-minute windows. It
// loads configuration, validates it, sets up signal handling and runs the
// selected subcommand.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/wingertjp/polymarket/internal/app"
	"github.com/wingertjp/polymarket/internal/config"
)

const usage = `usage: polybot [-config file] [-log-level level] <command> [--dry-run]

commands:
  data      live order book view (no auth)
  snipe     snipe near the close, rescue on reversal
  mm        fixed-spread market maker
  wallet    positions and USDC.e balance
  redeem    redeem resolved positions in a loop
  record    record book and price ticks per window
`

func main() {
	configPath := flag.String("config", "", "path to an optional TOML configuration file")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides config and LOG_LEVEL)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	mode, err := app.ParseMode(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}
	sub := flag.NewFlagSet(string(mode), flag.ExitOnError)
	dryRun := sub.Bool("dry-run", false, "simulate orders instead of sending them")
	_ = sub.Parse(flag.Args()[1:])

	// Setup structured JSON logger. Data mode owns stdout for its view.
	var logOut io.Writer = os.Stdout
	if mode == app.ModeData {
		logOut = os.Stderr
	}
	logger := newLogger(logOut, "info")
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *dryRun {
		cfg.DryRun = true
	}

	logger = newLogger(logOut, cfg.LogLevel)
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	redacted := config.RedactedConfig(cfg)
	logger.Info("polybot starting",
		slog.String("mode", string(mode)),
		slog.String("config", *configPath),
		slog.Any("settings", redacted),
	)

	// Create the application.
	application := app.New(cfg, logger)

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// Run the application.
	err = application.Run(ctx, mode)
	stop()
	application.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	logger.Info("polybot stopped")
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
