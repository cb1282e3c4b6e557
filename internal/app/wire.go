package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/wingertjp/polymarket/internal/blob/s3"
	"github.com/wingertjp/polymarket/internal/cache/redis"
	"github.com/wingertjp/polymarket/internal/config"
	"github.com/wingertjp/polymarket/internal/decision"
	"github.com/wingertjp/polymarket/internal/domain"
	"github.com/wingertjp/polymarket/internal/notify"
	"github.com/wingertjp/polymarket/internal/recorder"
	"github.com/wingertjp/polymarket/internal/store/postgres"
)

// Dependencies bundles the optional infrastructure. Every field is nil when
// the corresponding backend is disabled, so callers check before use.
type Dependencies struct {
	// Redis
	Bus       domain.SignalBus
	Locks     *redis.LockManager
	Limiter   domain.RateLimiter
	Publisher *redis.Publisher

	// PostgreSQL
	Bets    domain.BetStore
	Journal *postgres.Journal

	// Recording exports
	Uploader recorder.Uploader
	Kafka    *recorder.KafkaSink

	// Notifications
	Notifier *notify.Notifier
	Alerts   *notify.Alerts
}

// Observers returns every decision observer that is configured.
func (d *Dependencies) Observers() []decision.Observer {
	var obs []decision.Observer
	if d.Publisher != nil {
		obs = append(obs, d.Publisher)
	}
	if d.Journal != nil {
		obs = append(obs, d.Journal)
	}
	if d.Notifier.Enabled() {
		obs = append(obs, d.Alerts)
	}
	return obs
}

// needsPostgres reports whether mode writes bets or audit rows.
func needsPostgres(mode Mode) bool {
	switch mode {
	case ModeSnipe, ModeRedeem:
		return true
	default:
		return false
	}
}

// Wire constructs the optional infrastructure enabled in cfg and returns it
// together with a cleanup function that releases it in reverse order.
func Wire(ctx context.Context, cfg *config.Config, mode Mode, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis ---
	if cfg.Redis.Enabled && mode != ModeWallet {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			StreamLen:  cfg.Redis.StreamLen,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		bus := redis.NewSignalBus(rc)
		deps.Bus = bus
		deps.Locks = redis.NewLockManager(rc, logger)
		deps.Limiter = redis.NewRateLimiter(rc)
		deps.Publisher = redis.NewPublisher(bus, logger)
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled && needsPostgres(mode) {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		bets := postgres.NewBetStore(pg.Pool())
		deps.Bets = bets
		deps.Journal = postgres.NewJournal(bets, postgres.NewAuditStore(pg.Pool()), logger)
	}

	// --- Recording exports ---
	if mode == ModeRecord {
		if cfg.S3.Enabled && cfg.Record.Upload {
			sc, err := s3blob.New(ctx, s3blob.ClientConfig{
				Endpoint:       cfg.S3.Endpoint,
				Region:         cfg.S3.Region,
				Bucket:         cfg.S3.Bucket,
				Prefix:         cfg.S3.Prefix,
				AccessKey:      cfg.S3.AccessKey,
				SecretKey:      cfg.S3.SecretKey,
				UseSSL:         cfg.S3.UseSSL,
				ForcePathStyle: cfg.S3.ForcePathStyle,
			})
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: s3: %w", err)
			}
			deps.Uploader = s3blob.NewWriter(sc)
		}
		if cfg.Kafka.Enabled() {
			k := recorder.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
			closers = append(closers, func() { _ = k.Close() })
			deps.Kafka = k
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Alerts = notify.NewAlerts(deps.Notifier)

	return deps, cleanup, nil
}
