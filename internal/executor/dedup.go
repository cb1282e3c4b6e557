package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wingertjp/polymarket/internal/domain"
)

// ErrDuplicateIntent is reported when a second intent with the same window
// and reason reaches the executor.
var ErrDuplicateIntent = errors.New("duplicate order intent")

// Dedup prevents the same key from being acted on more than once within a
// time-to-live window. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // key -> last seen time
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup instance that considers a key a duplicate if it
// has been seen within the given ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsDuplicate returns true if key has been seen within the TTL window. If
// the key has not been seen (or has expired), it is recorded and false is
// returned.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if lastSeen, ok := d.seen[key]; ok {
		if now.Sub(lastSeen) < d.ttl {
			return true
		}
	}

	d.seen[key] = now
	return false
}

// Cleanup removes entries that have expired beyond the TTL. This should be
// called periodically to prevent unbounded memory growth.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}

// Guard wraps an executor with a dedup keyed on window slug and reason, and
// an optional shared rate limit.
type Guard struct {
	next    domain.OrderExecutor
	dedup   *Dedup
	limiter domain.RateLimiter
	limit   int
	per     time.Duration
	logger  *slog.Logger
}

// NewGuard wraps next. Keys live for ttl, which should exceed one window.
func NewGuard(next domain.OrderExecutor, ttl time.Duration, logger *slog.Logger) *Guard {
	return &Guard{
		next:   next,
		dedup:  NewDedup(ttl),
		logger: logger.With(slog.String("component", "order")),
	}
}

// WithRateLimit caps orders at limit per window of time using rl.
func (g *Guard) WithRateLimit(rl domain.RateLimiter, limit int, per time.Duration) *Guard {
	g.limiter, g.limit, g.per = rl, limit, per
	return g
}

// PlaceFOKBuy implements domain.OrderExecutor.
func (g *Guard) PlaceFOKBuy(ctx context.Context, intent domain.OrderIntent) domain.OrderOutcome {
	key := intent.WindowSlug + "/" + string(intent.Reason)
	if g.dedup.IsDuplicate(key) {
		g.logger.Error("duplicate intent dropped", slog.String("key", key), slog.String("intent_id", intent.ID))
		return domain.OrderOutcome{Status: domain.FillFailed, Err: fmt.Errorf("%w: %s", ErrDuplicateIntent, key)}
	}
	if g.limiter != nil {
		ok, err := g.limiter.Allow(ctx, "orders", g.limit, g.per)
		if err != nil {
			// Fail open.
			g.logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		} else if !ok {
			return domain.OrderOutcome{Status: domain.FillFailed, Err: domain.ErrRateLimited}
		}
	}
	g.dedup.Cleanup()
	return g.next.PlaceFOKBuy(ctx, intent)
}
