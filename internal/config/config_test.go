package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.InDelta(t, 1.0, cfg.Snipe.Amount, 1e-9)
	assert.InDelta(t, 0.95, cfg.Snipe.Prob, 1e-9)
	assert.Equal(t, 120*time.Second, cfg.Snipe.Time.Duration)
	assert.Equal(t, 15*time.Second, cfg.Snipe.RescueTime.Duration)
	assert.InDelta(t, 0.80, cfg.Snipe.RescueMidThreshold, 1e-9)
	assert.InDelta(t, 0.20, cfg.Snipe.RescueAmount, 1e-9)
	assert.Equal(t, "btc-updown-5m", cfg.Window.MarketSlug)
	assert.Equal(t, 300*time.Second, cfg.Window.Length.Duration)
	assert.False(t, cfg.DryRun)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "polybot.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[snipe]
prob = 0.9
time = "90s"
rescue_time = 20

[signal]
rule = "obi_only"
`), 0o600))

	t.Setenv("SNIPE_AMOUNT", "2.5")
	t.Setenv("RESCUE_TIME", "12")
	t.Setenv("DRY_RUN", "yes")
	t.Setenv("MARKET_SLUG", "eth-updown-5m")
	t.Setenv("POLYBOT_KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.InDelta(t, 0.9, cfg.Snipe.Prob, 1e-9)
	assert.Equal(t, 90*time.Second, cfg.Snipe.Time.Duration)
	assert.Equal(t, 12*time.Second, cfg.Snipe.RescueTime.Duration)
	assert.InDelta(t, 2.5, cfg.Snipe.Amount, 1e-9)
	assert.Equal(t, "obi_only", cfg.Signal.Rule)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "eth-updown-5m", cfg.Window.MarketSlug)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("SNIPE_PROB", "0.97")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.InDelta(t, 0.97, cfg.Snipe.Prob, 1e-9)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestEnv_IgnoresGarbage(t *testing.T) {
	t.Setenv("SNIPE_PROB", "lots")
	t.Setenv("SNIPE_TIME", "soon")
	cfg := Defaults()
	applyEnvOverrides(&cfg)
	assert.InDelta(t, 0.95, cfg.Snipe.Prob, 1e-9)
	assert.Equal(t, 120*time.Second, cfg.Snipe.Time.Duration)
}

func TestParseSeconds(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"120", 120 * time.Second},
		{"2.5", 2500 * time.Millisecond},
		{"2m", 2 * time.Minute},
		{" 15s ", 15 * time.Second},
	}
	for _, tt := range tests {
		got, err := parseSeconds(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Snipe.Prob = 1.5
	cfg.Snipe.Order = []string{"Up", "Up"}
	cfg.Signal.Rule = "vibes"
	cfg.Record.Format = "csv"
	cfg.Postgres.Enabled = true
	cfg.Postgres.Host = ""

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "config validation failed")
	assert.Contains(t, msg, "log_level")
	assert.Contains(t, msg, "snipe: prob")
	assert.Contains(t, msg, "snipe: order")
	assert.Contains(t, msg, "signal: unknown rule")
	assert.Contains(t, msg, "record: unknown format")
	assert.Contains(t, msg, "postgres: dsn or host")
}

func TestRequireWallet(t *testing.T) {
	cfg := Defaults()
	assert.Error(t, cfg.RequireWallet())
	cfg.Wallet.PrivateKey = "0xabc"
	assert.NoError(t, cfg.RequireWallet())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xsecret"
	cfg.Redis.Password = "hunter2"
	cfg.Notify.Events = []string{"a"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Redis.Password)
	assert.Equal(t, "", out.S3.AccessKey)
	assert.Equal(t, "0xsecret", cfg.Wallet.PrivateKey)

	out.Notify.Events[0] = "b"
	assert.Equal(t, "a", cfg.Notify.Events[0])
}
