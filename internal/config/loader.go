package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges an optional TOML file at path on top of the built-in defaults,
// loads .env if present, applies environment overrides, and returns the
// final Config. The returned Config has NOT been validated; the caller should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads the POLYBOT_* keys and the short operator names
// (SNIPE_PROB, PRIVATE_KEY, ...) and overwrites the corresponding fields when
// a variable is set. Short names are applied last and win.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.FunderAddress, "POLYBOT_WALLET_FUNDER_ADDRESS")
	setInt(&cfg.Wallet.SignatureType, "POLYBOT_WALLET_SIGNATURE_TYPE")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYBOT_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WSURL, "POLYBOT_POLYMARKET_WS_URL")
	setInt(&cfg.Polymarket.ChainID, "POLYBOT_POLYMARKET_CHAIN_ID")
	setFloat64(&cfg.Polymarket.TickSize, "POLYBOT_POLYMARKET_TICK_SIZE")
	setDuration(&cfg.Polymarket.OrderTimeout, "POLYBOT_POLYMARKET_ORDER_TIMEOUT")

	// ── Storage / messaging ──
	setBool(&cfg.Postgres.Enabled, "POLYBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POLYBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYBOT_POSTGRES_SSL_MODE")

	setBool(&cfg.Redis.Enabled, "POLYBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYBOT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "POLYBOT_REDIS_TLS_ENABLED")

	setBool(&cfg.S3.Enabled, "POLYBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYBOT_S3_SECRET_KEY")

	setStringSlice(&cfg.Kafka.Brokers, "POLYBOT_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "POLYBOT_KAFKA_TOPIC")

	// ── Server / notify ──
	setBool(&cfg.Server.Enabled, "POLYBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POLYBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "POLYBOT_SERVER_RATE_LIMIT")
	setStr(&cfg.Notify.TelegramToken, "POLYBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYBOT_NOTIFY_EVENTS")

	setStr(&cfg.Record.Dir, "POLYBOT_RECORD_DIR")
	setStr(&cfg.Record.Format, "POLYBOT_RECORD_FORMAT")
	setBool(&cfg.Record.Upload, "POLYBOT_RECORD_UPLOAD")
	setStr(&cfg.LogLevel, "POLYBOT_LOG_LEVEL")

	// ── Short operator names ──
	setStr(&cfg.Wallet.PrivateKey, "PRIVATE_KEY")
	setStr(&cfg.Polymarket.ClobHost, "HOST")
	setStr(&cfg.Polymarket.GammaHost, "GAMMA_API")
	setStr(&cfg.Polymarket.WSURL, "WS_URL")
	setStr(&cfg.Chain.RPCURL, "RPC_URL")
	setStr(&cfg.Chain.USDCAddress, "USDC_E")
	setStr(&cfg.Chain.CTFAddress, "CTF_ADDR")
	setStr(&cfg.Window.MarketSlug, "MARKET_SLUG")
	setFloat64(&cfg.Snipe.Amount, "SNIPE_AMOUNT")
	setFloat64(&cfg.Snipe.Prob, "SNIPE_PROB")
	setDuration(&cfg.Snipe.Time, "SNIPE_TIME")
	setFloat64(&cfg.Snipe.RescueMidThreshold, "RESCUE_MID_THRESHOLD")
	setFloat64(&cfg.Snipe.RescueAmount, "SNIPE_RESCUE_AMOUNT")
	setDuration(&cfg.Snipe.RescueTime, "RESCUE_TIME")
	setStringSlice(&cfg.Snipe.Order, "SNIPE_ORDER")
	setFloat64(&cfg.Signal.OBIThreshold, "OBI_THRESHOLD")
	setStr(&cfg.Signal.Rule, "DIRECTION_RULE")
	setFloat64(&cfg.MM.Spread, "MM_SPREAD")
	setFloat64(&cfg.MM.Size, "MM_SIZE")
	setDuration(&cfg.MM.Refresh, "MM_REFRESH")
	setDuration(&cfg.Redeem.PollInterval, "POLL_INTERVAL")
	setFlag(&cfg.DryRun, "DRY_RUN")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
}

// parseSeconds accepts either a Go duration ("2m", "15s") or a bare number
// of seconds ("120", "2.5").
func parseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setFlag accepts the looser truthy spellings operators use in .env files.
func setFlag(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			*dst = true
		default:
			*dst = false
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := parseSeconds(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
