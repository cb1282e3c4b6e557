// Package app provides the top-level lifecycle of the bot. It wires the
// optional infrastructure, builds the venue clients and runs the goroutines
// of the selected mode until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wingertjp/polymarket/internal/config"
	"github.com/wingertjp/polymarket/internal/decision"
	"github.com/wingertjp/polymarket/internal/domain"
)

// Mode is a CLI subcommand.
type Mode string

const (
	ModeData   Mode = "data"
	ModeSnipe  Mode = "snipe"
	ModeMM     Mode = "mm"
	ModeWallet Mode = "wallet"
	ModeRedeem Mode = "redeem"
	ModeRecord Mode = "record"
)

// Modes lists every mode in help order.
var Modes = []Mode{ModeData, ModeSnipe, ModeMM, ModeWallet, ModeRedeem, ModeRecord}

// ParseMode validates a subcommand name.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("app: unknown mode %q", s)
}

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	started time.Time
	closers []func()

	mode   Mode
	live   atomic.Pointer[liveView]
	signal domain.SignalSource
}

// liveView is what the status endpoint reads about the current window.
type liveView struct {
	window domain.MarketWindow
	engine *decision.Engine
}

// New creates a new App from the given configuration and logger. Terminal
// output (data view, wallet report) goes to stdout.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "app")),
		out:     os.Stdout,
		started: time.Now(),
	}
}

// Run wires the dependencies mode needs and blocks until ctx is cancelled or
// the mode fails. A cancelled ctx is reported as context.Canceled.
func (a *App) Run(ctx context.Context, mode Mode) error {
	a.mode = mode
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", string(mode)),
		slog.Bool("dry_run", a.cfg.DryRun),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, mode, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch mode {
	case ModeData:
		return a.DataMode(ctx, deps)
	case ModeSnipe:
		return a.SnipeMode(ctx, deps)
	case ModeMM:
		return a.MMMode(ctx, deps)
	case ModeWallet:
		return a.WalletMode(ctx, deps)
	case ModeRedeem:
		return a.RedeemMode(ctx, deps)
	case ModeRecord:
		return a.RecordMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Status implements the status source for the HTTP server and WebSocket hub.
func (a *App) Status() domain.BotStatus {
	now := time.Now()
	st := domain.BotStatus{
		Mode:          string(a.mode),
		DryRun:        a.cfg.DryRun,
		UptimeSeconds: int64(now.Sub(a.started).Seconds()),
	}
	if a.signal != nil {
		st.Signal = a.signal.Snapshot()
	}
	if v := a.live.Load(); v != nil {
		w := v.window
		st.Window = &w
		st.Remaining = w.SecondsRemaining(now)
		if v.engine != nil {
			bet := v.engine.State()
			st.Bet = &bet
		}
	}
	return st
}
