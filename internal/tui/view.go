// Package tui renders the live order-book view used by data mode.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/wingertjp/polymarket/internal/book"
	"github.com/wingertjp/polymarket/internal/domain"
)

const (
	depth        = 5
	clearScreen  = "\033[H\033[2J"
	defaultEvery = 500 * time.Millisecond
)

// View is everything one frame shows.
type View struct {
	Window domain.MarketWindow
	Now    time.Time
	Up     domain.BookSnapshot
	Down   domain.BookSnapshot
	Signal *domain.SignalSnapshot
}

// Render writes one frame to w.
func Render(w io.Writer, v View) error {
	remaining := int(v.Window.SecondsRemaining(v.Now))
	border := strings.Repeat("═", 64)

	fmt.Fprintf(w, "%s  %s\n  %s\n", clearScreen, border, v.Window.Title)
	fmt.Fprintf(w, "  LIVE  ·  %s UTC  ·  closes in %d:%02d\n  %s\n",
		v.Now.UTC().Format("15:04:05.000"), remaining/60, remaining%60, border)
	fmt.Fprintf(w, "  ▲ Up    mid %s     ▼ Down  mid %s\n\n",
		midLabel(v.Up, v.Down), midLabel(v.Down, v.Up))

	table := tablewriter.NewWriter(w)
	table.Header("", "Up bid", "Up ask", "Down bid", "Down ask")
	upBids, upAsks := v.Up.Top(depth)
	downBids, downAsks := v.Down.Top(depth)
	for i := 0; i < depth; i++ {
		row := []any{
			fmt.Sprintf("%d", i+1),
			cell(upBids, i), cell(upAsks, i),
			cell(downBids, i), cell(downAsks, i),
		}
		if err := table.Append(row...); err != nil {
			return fmt.Errorf("tui: render book: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("tui: render book: %w", err)
	}

	if v.Signal != nil {
		s := *v.Signal
		status := "live"
		if !s.Usable() {
			status = "stale"
		}
		fmt.Fprintf(w, "\n  BTC %.2f  obi %+.3f  vel %+.2f/s  dir %s  (%s)\n",
			s.FilteredPrice, s.OBI, s.Velocity, s.Direction, status)
	}
	fmt.Fprintf(w, "  %s\n", border)
	return nil
}

func midLabel(own, comp domain.BookSnapshot) string {
	mid, src, ok := book.PairMid(own, comp)
	if !ok {
		return "  n/a"
	}
	if src == book.MidFull {
		return pct(mid)
	}
	return fmt.Sprintf("%s (%s)", pct(mid), src)
}

func cell(levels []domain.PriceLevel, i int) string {
	if i >= len(levels) {
		return ""
	}
	return fmt.Sprintf("%s  $%.0f", pct(levels[i].Price), levels[i].Size)
}

func pct(v float64) string { return fmt.Sprintf("%5.1f%%", v*100) }

// Source produces the frame to draw.
type Source func(now time.Time) View

// Screen redraws a View on a fixed interval.
type Screen struct {
	out   io.Writer
	every time.Duration
	now   func() time.Time
}

// NewScreen creates a Screen writing to out. every <= 0 selects 500ms.
func NewScreen(out io.Writer, every time.Duration) *Screen {
	if every <= 0 {
		every = defaultEvery
	}
	return &Screen{out: out, every: every, now: time.Now}
}

// Run draws immediately and then on every interval until ctx is done.
func (s *Screen) Run(ctx context.Context, src Source) error {
	t := time.NewTicker(s.every)
	defer t.Stop()
	for {
		if err := Render(s.out, src(s.now())); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Waiting draws the placeholder shown while the next window is discovered.
func Waiting(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s  %s\n", clearScreen, msg)
}
