// Package config defines the top-level configuration for the Up/Down window
// bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from an
// optional TOML file and then overridden by environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Binance    BinanceConfig    `toml:"binance"`
	Chain      ChainConfig      `toml:"chain"`
	Window     WindowConfig     `toml:"window"`
	Snipe      SnipeConfig      `toml:"snipe"`
	Signal     SignalConfig     `toml:"signal"`
	MM         MMConfig         `toml:"mm"`
	Redeem     RedeemConfig     `toml:"redeem"`
	Record     RecordConfig     `toml:"record"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Kafka      KafkaConfig      `toml:"kafka"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	DryRun     bool             `toml:"dry_run"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	FunderAddress    string `toml:"funder_address"`
	SignatureType    int    `toml:"signature_type"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints and order parameters.
type PolymarketConfig struct {
	ClobHost          string   `toml:"clob_host"`
	GammaHost         string   `toml:"gamma_host"`
	WSURL             string   `toml:"ws_url"`
	ChainID           int      `toml:"chain_id"`
	ExchangeAddress   string   `toml:"exchange_address"`
	TickSize          float64  `toml:"tick_size"`
	OrderTimeout      duration `toml:"order_timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	MaxResyncs        int      `toml:"max_resyncs"`
}

// BinanceConfig holds the secondary venue stream.
type BinanceConfig struct {
	StreamURL string `toml:"stream_url"`
}

// ChainConfig holds Polygon RPC and contract parameters for redemption.
type ChainConfig struct {
	RPCURL         string   `toml:"rpc_url"`
	CTFAddress     string   `toml:"ctf_address"`
	USDCAddress    string   `toml:"usdc_address"`
	GasLimit       uint64   `toml:"gas_limit"`
	GasMultiplier  float64  `toml:"gas_multiplier"`
	ReceiptTimeout duration `toml:"receipt_timeout"`
	ReceiptPoll    duration `toml:"receipt_poll"`
}

// WindowConfig controls market discovery and rollover.
type WindowConfig struct {
	MarketSlug           string   `toml:"market_slug"`
	Length               duration `toml:"length"`
	DiscoveryRetry       duration `toml:"discovery_retry"`
	DiscoveryMaxAttempts int      `toml:"discovery_max_attempts"`
	Tick                 duration `toml:"tick"`
}

// SnipeConfig holds the decision thresholds.
type SnipeConfig struct {
	Amount             float64  `toml:"amount"`
	Prob               float64  `toml:"prob"`
	Time               duration `toml:"time"`
	RescueMidThreshold float64  `toml:"rescue_mid_threshold"`
	RescueAmount       float64  `toml:"rescue_amount"`
	RescueTime         duration `toml:"rescue_time"`
	// Order lists outcomes in snipe evaluation order; the first to qualify wins.
	Order   []string `toml:"order"`
	LockTTL duration `toml:"lock_ttl"`
}

// SignalConfig holds signal fusion parameters.
type SignalConfig struct {
	OBIThreshold     float64  `toml:"obi_threshold"`
	Rule             string   `toml:"rule"`
	Levels           int      `toml:"levels"`
	ProcessNoise     float64  `toml:"process_noise"`
	MeasurementNoise float64  `toml:"measurement_noise"`
	VelocityAlpha    float64  `toml:"velocity_alpha"`
	StaleAfter       duration `toml:"stale_after"`
}

// MMConfig holds market-maker parameters.
type MMConfig struct {
	Spread  float64  `toml:"spread"`
	Size    float64  `toml:"size"`
	Refresh duration `toml:"refresh"`
}

// RedeemConfig controls the redeem loop.
type RedeemConfig struct {
	PollInterval duration `toml:"poll_interval"`
}

// RecordConfig controls record mode.
type RecordConfig struct {
	Dir    string `toml:"dir"`
	Format string `toml:"format"`
	Upload bool   `toml:"upload"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	StreamLen  int64  `toml:"stream_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// KafkaConfig holds the optional tick export target.
type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// Enabled reports whether a broker list was configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = parseSeconds(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit is requests per minute per client; 0 disables it.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with the production defaults.
func Defaults() Config {
	return Config{
		Wallet: WalletConfig{
			SignatureType: 0,
		},
		Polymarket: PolymarketConfig{
			ClobHost:          "https://clob.polymarket.com",
			GammaHost:         "https://gamma-api.polymarket.com",
			WSURL:             "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:           137,
			ExchangeAddress:   "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E",
			TickSize:          0.01,
			OrderTimeout:      duration{10 * time.Second},
			RequestsPerSecond: 5,
			MaxResyncs:        5,
		},
		Binance: BinanceConfig{
			StreamURL: "wss://stream.binance.com:9443/stream?streams=btcusdt@depth5@100ms/btcusdt@aggTrade/btcusdt@kline_5m",
		},
		Chain: ChainConfig{
			RPCURL:         "https://polygon-bor-rpc.publicnode.com",
			CTFAddress:     "0x4D97DCd97eC945f40CF65F87097ACe5EA0476045",
			USDCAddress:    "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
			GasLimit:       200_000,
			GasMultiplier:  1.2,
			ReceiptTimeout: duration{90 * time.Second},
			ReceiptPoll:    duration{3 * time.Second},
		},
		Window: WindowConfig{
			MarketSlug:           "btc-updown-5m",
			Length:               duration{300 * time.Second},
			DiscoveryRetry:       duration{2 * time.Second},
			DiscoveryMaxAttempts: 30,
			Tick:                 duration{250 * time.Millisecond},
		},
		Snipe: SnipeConfig{
			Amount:             1.0,
			Prob:               0.95,
			Time:               duration{120 * time.Second},
			RescueMidThreshold: 0.80,
			RescueAmount:       0.20,
			RescueTime:         duration{15 * time.Second},
			Order:              []string{"Up", "Down"},
			LockTTL:            duration{10 * time.Minute},
		},
		Signal: SignalConfig{
			OBIThreshold:     0.30,
			Rule:             "obi_and_velocity",
			Levels:           5,
			ProcessNoise:     0.0005,
			MeasurementNoise: 0.05,
			VelocityAlpha:    0.5,
			StaleAfter:       duration{5 * time.Second},
		},
		MM: MMConfig{
			Spread:  0.02,
			Size:    5,
			Refresh: duration{30 * time.Second},
		},
		Redeem: RedeemConfig{
			PollInterval: duration{10 * time.Second},
		},
		Record: RecordConfig{
			Dir:    "recordings",
			Format: "jsonl",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			StreamLen:  10_000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polybot-recordings",
			Prefix:         "recordings",
			ForcePathStyle: true,
		},
		Kafka: KafkaConfig{
			Topic: "polybot.ticks",
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"FIRE", "RESCUE", "WIN", "LOSS", "REDEEMED"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validRules = map[string]bool{
	"obi_only":         true,
	"obi_and_velocity": true,
}

var validFormats = map[string]bool{
	"jsonl": true,
	"proto": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.WSURL == "" {
		errs = append(errs, "polymarket: ws_url must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be > 0")
	}
	if c.Polymarket.TickSize <= 0 || c.Polymarket.TickSize >= 1 {
		errs = append(errs, "polymarket: tick_size must be in (0, 1)")
	}
	if c.Polymarket.OrderTimeout.Duration <= 0 {
		errs = append(errs, "polymarket: order_timeout must be > 0")
	}
	if c.Polymarket.RequestsPerSecond <= 0 {
		errs = append(errs, "polymarket: requests_per_second must be > 0")
	}

	// Window
	if c.Window.MarketSlug == "" {
		errs = append(errs, "window: market_slug must not be empty")
	}
	if c.Window.Length.Duration < time.Second {
		errs = append(errs, "window: length must be >= 1s")
	}
	if c.Window.DiscoveryMaxAttempts < 1 {
		errs = append(errs, "window: discovery_max_attempts must be >= 1")
	}
	if c.Window.Tick.Duration <= 0 {
		errs = append(errs, "window: tick must be > 0")
	}

	// Snipe
	if c.Snipe.Amount <= 0 {
		errs = append(errs, "snipe: amount must be > 0")
	}
	if c.Snipe.Prob <= 0 || c.Snipe.Prob > 1 {
		errs = append(errs, "snipe: prob must be in (0, 1]")
	}
	if c.Snipe.Time.Duration <= 0 || c.Snipe.Time.Duration > c.Window.Length.Duration {
		errs = append(errs, "snipe: time must be in (0, window length]")
	}
	if c.Snipe.RescueMidThreshold <= 0 || c.Snipe.RescueMidThreshold >= 1 {
		errs = append(errs, "snipe: rescue_mid_threshold must be in (0, 1)")
	}
	if c.Snipe.RescueAmount <= 0 {
		errs = append(errs, "snipe: rescue_amount must be > 0")
	}
	if c.Snipe.RescueTime.Duration <= 0 {
		errs = append(errs, "snipe: rescue_time must be > 0")
	}
	if err := validOrder(c.Snipe.Order); err != "" {
		errs = append(errs, "snipe: "+err)
	}

	// Signal
	if c.Signal.OBIThreshold < 0 || c.Signal.OBIThreshold >= 1 {
		errs = append(errs, "signal: obi_threshold must be in [0, 1)")
	}
	if !validRules[c.Signal.Rule] {
		errs = append(errs, fmt.Sprintf("signal: unknown rule %q (valid: obi_only, obi_and_velocity)", c.Signal.Rule))
	}
	if c.Signal.Levels < 1 {
		errs = append(errs, "signal: levels must be >= 1")
	}
	if c.Signal.ProcessNoise <= 0 || c.Signal.MeasurementNoise <= 0 {
		errs = append(errs, "signal: process_noise and measurement_noise must be > 0")
	}
	if c.Signal.VelocityAlpha <= 0 || c.Signal.VelocityAlpha > 1 {
		errs = append(errs, "signal: velocity_alpha must be in (0, 1]")
	}
	if c.Signal.StaleAfter.Duration <= 0 {
		errs = append(errs, "signal: stale_after must be > 0")
	}

	// MM
	if c.MM.Spread <= 0 || c.MM.Spread >= 1 {
		errs = append(errs, "mm: spread must be in (0, 1)")
	}
	if c.MM.Size <= 0 {
		errs = append(errs, "mm: size must be > 0")
	}
	if c.MM.Refresh.Duration <= 0 {
		errs = append(errs, "mm: refresh must be > 0")
	}

	// Chain
	if c.Chain.GasMultiplier < 1 {
		errs = append(errs, "chain: gas_multiplier must be >= 1")
	}

	// Record
	if !validFormats[c.Record.Format] {
		errs = append(errs, fmt.Sprintf("record: unknown format %q (valid: jsonl, proto)", c.Record.Format))
	}
	if c.Record.Upload && !c.S3.Enabled {
		errs = append(errs, "record: upload requires s3.enabled")
	}

	// Postgres
	if c.Postgres.Enabled {
		if c.Postgres.DSN == "" && c.Postgres.Host == "" {
			errs = append(errs, "postgres: dsn or host is required when enabled")
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Kafka
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		errs = append(errs, "kafka: topic must not be empty when brokers are set")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RequireWallet reports an error when no signing key source is configured.
// Modes that sign orders or transactions call it before wiring.
func (c *Config) RequireWallet() error {
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		return fmt.Errorf("config: PRIVATE_KEY (or wallet.encrypted_key_path) is required")
	}
	return nil
}

func validOrder(order []string) string {
	if len(order) != 2 {
		return "order must list both Up and Down"
	}
	seen := map[string]bool{}
	for _, o := range order {
		if o != "Up" && o != "Down" {
			return fmt.Sprintf("order entry %q must be Up or Down", o)
		}
		seen[o] = true
	}
	if len(seen) != 2 {
		return "order must list both Up and Down"
	}
	return ""
}
