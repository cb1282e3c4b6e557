package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/wingertjp/polymarket/internal/domain"
)

// Resolver performs read-only market discovery for a slug. The returned
// window carries identifiers only; timing is filled in by the Manager.
type Resolver interface {
	Resolve(ctx context.Context, slug string) (domain.MarketWindow, error)
}

// Session is the arena of everything that lives for one window: its books,
// feed subscription and bet state.
type Session interface {
	// Ready is closed once the session's subscriptions are confirmed live.
	Ready() <-chan struct{}
	// Expire is called exactly once when the window's remaining time
	// crosses from positive to zero.
	Expire()
	// Close tears the session down.
	Close()
}

// SessionFactory starts a session for a freshly resolved window.
type SessionFactory func(ctx context.Context, w domain.MarketWindow) (Session, error)

// Config holds window manager parameters.
type Config struct {
	MarketSlug   string
	Length       time.Duration
	Retry        time.Duration
	MaxAttempts  int
	Tick         time.Duration
	ReadyTimeout time.Duration
}

// Manager owns the single current MarketWindow reference.
type Manager struct {
	cfg      Config
	resolver Resolver
	logger   *slog.Logger
	now      func() time.Time

	current atomic.Pointer[domain.MarketWindow]
	lastCID string
}

// NewManager creates a Manager.
func NewManager(cfg Config, resolver Resolver, logger *slog.Logger) *Manager {
	if cfg.Length <= 0 {
		cfg.Length = 300 * time.Second
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 250 * time.Millisecond
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 15 * time.Second
	}
	return &Manager{
		cfg:      cfg,
		resolver: resolver,
		logger:   logger.With("component", "fetch"),
		now:      time.Now,
	}
}

// CurrentSlug returns the slug for the bucket containing now.
func (m *Manager) CurrentSlug(now time.Time) string {
	return Slug(m.cfg.MarketSlug, now, m.cfg.Length)
}

// Current returns the active window, if any. Readers must treat it as a
// snapshot: it may be replaced between calls.
func (m *Manager) Current() (domain.MarketWindow, bool) {
	w := m.current.Load()
	if w == nil {
		return domain.MarketWindow{}, false
	}
	return *w, true
}

// Remaining returns the seconds left in the active window, zero when none.
func (m *Manager) Remaining() float64 {
	w, ok := m.Current()
	if !ok {
		return 0
	}
	return w.SecondsRemaining(m.now())
}

// Resolve performs a single discovery attempt for slug. A condition id equal
// to the previous window's yields ErrSameWindow.
func (m *Manager) Resolve(ctx context.Context, slug string, bucket time.Time) (domain.MarketWindow, error) {
	w, err := m.resolver.Resolve(ctx, slug)
	if err != nil {
		return domain.MarketWindow{}, err
	}
	if w.ConditionID != "" && w.ConditionID == m.lastCID {
		return domain.MarketWindow{}, fmt.Errorf("window: %s: %w", slug, domain.ErrSameWindow)
	}
	w.Slug = slug
	w.OpenAt = bucket
	w.CloseAt = bucket.Add(m.cfg.Length)
	return w, nil
}

// Discover resolves the window for the current bucket, retrying at the
// configured interval up to MaxAttempts. The slug is recomputed on every
// attempt so a retry that crosses a bucket boundary targets the new window.
func (m *Manager) Discover(ctx context.Context) (domain.MarketWindow, error) {
	limiter := rate.NewLimiter(rate.Every(m.cfg.Retry), 1)
	var lastErr error
	var slug string
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return domain.MarketWindow{}, err
		}
		now := m.now()
		slug = m.CurrentSlug(now)
		w, err := m.Resolve(ctx, slug, Bucket(now, m.cfg.Length))
		if err == nil {
			m.lastCID = w.ConditionID
			m.logger.Info("market ready",
				"slug", w.Slug,
				"title", w.Title,
				"condition_id", w.ConditionID,
				"up", short(w.UpTokenID),
				"down", short(w.DownTokenID),
				"remaining_s", int(w.SecondsRemaining(now)),
			)
			return w, nil
		}
		if ctx.Err() != nil {
			return domain.MarketWindow{}, ctx.Err()
		}
		lastErr = err
		m.logger.Warn("market not available, retrying",
			"slug", slug,
			"attempt", attempt,
			"max_attempts", m.cfg.MaxAttempts,
			"error", err,
		)
	}
	if errors.Is(lastErr, domain.ErrMarketNotFound) {
		return domain.MarketWindow{}, fmt.Errorf("window: %s after %d attempts: %w", slug, m.cfg.MaxAttempts, lastErr)
	}
	return domain.MarketWindow{}, fmt.Errorf("window: %s after %d attempts: %w: %w",
		slug, m.cfg.MaxAttempts, domain.ErrMarketNotFound, lastErr)
}

// Run discovers windows and keeps exactly one live session per window. A
// new session replaces the old one only after it reports Ready; the old
// session stays up meanwhile so monitoring never lapses. Expire fires once
// per window on the positive-to-zero edge of its remaining time.
func (m *Manager) Run(ctx context.Context, start SessionFactory) error {
	var active Session
	defer func() {
		if active != nil {
			active.Close()
		}
	}()

	for {
		w, err := m.Discover(ctx)
		if err != nil {
			return err
		}

		next, err := start(ctx, w)
		if err != nil {
			return fmt.Errorf("window: start session %s: %w", w.Slug, err)
		}
		if err := m.awaitReady(ctx, next, w); err != nil {
			next.Close()
			return err
		}

		if active != nil {
			active.Close()
		}
		active = next
		m.current.Store(&w)

		if err := m.watch(ctx, w, active); err != nil {
			return err
		}
	}
}

func (m *Manager) awaitReady(ctx context.Context, s Session, w domain.MarketWindow) error {
	timer := time.NewTimer(m.cfg.ReadyTimeout)
	defer timer.Stop()
	select {
	case <-s.Ready():
		return nil
	case <-timer.C:
		// The feed keeps retrying on its own; a slow first snapshot should
		// not block the handover forever.
		m.logger.Warn("session not ready before timeout, switching anyway",
			"slug", w.Slug, "timeout", m.cfg.ReadyTimeout)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// watch ticks until the window's remaining time crosses zero.
func (m *Manager) watch(ctx context.Context, w domain.MarketWindow, s Session) error {
	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	prev := w.SecondsRemaining(m.now())
	if prev <= 0 {
		s.Expire()
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rem := w.SecondsRemaining(m.now())
			if prev > 0 && rem <= 0 {
				m.logger.Info("window expired", "slug", w.Slug)
				s.Expire()
				return nil
			}
			prev = rem
		}
	}
}

func short(id string) string {
	if len(id) > 16 {
		return id[:16] + "…"
	}
	return id
}
