package recorder

import (
	"context"
	"log/slog"
	"time"

	"github.com/wingertjp/polymarket/internal/domain"
)

const uploadTimeout = 2 * time.Minute

// Uploader stores a finished recording and returns its object key.
type Uploader interface {
	UploadFile(ctx context.Context, localPath string) (string, error)
}

// Config holds recorder parameters.
type Config struct {
	Dir    string
	Format string
}

// Recorder writes one window's ticks. The local file is owned by the
// recorder; extra sinks are shared and not closed by it.
type Recorder struct {
	cfg      Config
	window   domain.MarketWindow
	books    domain.BookSource
	signal   domain.SignalSource
	extra    []Sink
	uploader Uploader
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Recorder for window w. uploader may be nil.
func New(cfg Config, w domain.MarketWindow, books domain.BookSource, signal domain.SignalSource, extra []Sink, uploader Uploader, logger *slog.Logger) *Recorder {
	if cfg.Dir == "" {
		cfg.Dir = "recordings"
	}
	return &Recorder{
		cfg:      cfg,
		window:   w,
		books:    books,
		signal:   signal,
		extra:    extra,
		uploader: uploader,
		logger:   logger.With("component", "recorder", "slug", w.Slug),
		now:      time.Now,
	}
}

// Run writes a tick on every book change until the window closes or ctx is
// cancelled, then closes the file and uploads it. It returns the file path.
func (r *Recorder) Run(ctx context.Context, changed <-chan struct{}) (string, error) {
	sink, err := NewFileSink(FilePath(r.cfg.Dir, r.window.Slug, r.cfg.Format, r.now()), r.cfg.Format)
	if err != nil {
		return "", err
	}
	r.logger.Info("recording", "title", r.window.Title, "file", sink.Path())

	closeTimer := time.NewTimer(r.window.CloseAt.Sub(r.now()))
	defer closeTimer.Stop()

	written, dropped := 0, 0
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-closeTimer.C:
			break loop
		case <-changed:
			now := r.now()
			if r.window.SecondsRemaining(now) <= 0 {
				break loop
			}
			t := NewTick(now, r.window, r.books, r.signal.Snapshot())
			if err := sink.Write(ctx, r.window.Slug, t); err != nil {
				sink.Close()
				return sink.Path(), err
			}
			written++
			for _, s := range r.extra {
				if err := s.Write(ctx, r.window.Slug, t); err != nil {
					dropped++
					r.logger.Debug("sink write failed", "error", err)
				}
			}
			r.logger.Debug("tick", "remaining", t.Remaining, "up_mid", deref(t.UpMid), "down_mid", deref(t.DownMid), "btc", deref(t.BTC))
		}
	}

	if err := sink.Close(); err != nil {
		return sink.Path(), err
	}
	r.logger.Info("window done", "ticks", written, "sink_errors", dropped, "file", sink.Path())

	if r.uploader != nil {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uploadTimeout)
		defer cancel()
		key, err := r.uploader.UploadFile(uctx, sink.Path())
		if err != nil {
			r.logger.Error("upload failed", "file", sink.Path(), "error", err)
		} else {
			r.logger.Info("uploaded", "key", key)
		}
	}
	return sink.Path(), nil
}
