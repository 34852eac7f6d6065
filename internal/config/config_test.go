package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hardhatKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func validConfig() Config {
	cfg := Defaults()
	cfg.Escrow.PrivateKey = hardhatKey
	return cfg
}

func TestDefaultsNeedEscrowIdentity(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escrow: one of private_key")

	cfg = validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsProblems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"mode", func(c *Config) { c.Mode = "trade" }, `unknown mode "trade"`},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, `unknown log_level "loud"`},
		{"fee range", func(c *Config) { c.Escrow.FeeBps = 10_001 }, "fee_bps must be 0-10000"},
		{"fee recipient", func(c *Config) { c.Escrow.FeeBps = 250 }, "fee_recipient must be a hex address"},
		{"bad address", func(c *Config) { c.Escrow.Address = "bob" }, `address "bob"`},
		{"encrypted without password", func(c *Config) { c.Escrow.EncryptedKeyPath = "/k" }, "key_password is required"},
		{"token provider", func(c *Config) { c.Token.Provider = "ipfs" }, `unknown provider "ipfs"`},
		{"erc721 rpc", func(c *Config) { c.Token.Provider = "erc721"; c.Token.Contract = "0x5FbDB2315678afecb367f032d93F642f64180aa3" }, "rpc_url must not be empty"},
		{"memory token with postgres", func(c *Config) { c.Store.Backend = "postgres" }, "provider memory loses ownership"},
		{"store backend", func(c *Config) { c.Store.Backend = "sqlite" }, `unknown backend "sqlite"`},
		{"redis addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, "redis: addr"},
		{"archive store", func(c *Config) { c.Mode = "archive" }, "needs store.backend postgres"},
		{"server port", func(c *Config) { c.Server.Port = 70000 }, "port must be 1-65535"},
		{"unsigned identity with erc721", func(c *Config) {
			c.Token.Provider = "erc721"
			c.Token.RPCURL = "http://127.0.0.1:8545"
			c.Token.Contract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
		}, "require_signatures must be set"},
		{"unsigned identity with postgres", func(c *Config) { c.Store.Backend = "postgres" }, "require_signatures must be set"},
		{"operator key reuses api key", func(c *Config) {
			c.Server.APIKey = "shared"
			c.Server.OperatorKey = "shared"
		}, "operator_key must differ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "full"

[escrow]
address = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
fee_bps = 250
fee_recipient = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
lock_ttl = "10s"

[archive]
retention_days = 30
interval = "1h"
`), 0o600))

	t.Setenv("NFTMARKET_SERVER_PORT", "9100")
	t.Setenv("NFTMARKET_NOTIFY_EVENTS", "item_sold, offer_filled ,")
	t.Setenv("NFTMARKET_REDIS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, int64(250), cfg.Escrow.FeeBps)
	assert.Equal(t, 10*time.Second, cfg.Escrow.LockTTL.Duration)
	assert.Equal(t, time.Hour, cfg.Archive.Interval.Duration)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, []string{"item_sold", "offer_filled"}, cfg.Notify.Events)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestSignedIdentityOutsideMemorySetup(t *testing.T) {
	cfg := validConfig()
	cfg.Token.Provider = "erc721"
	cfg.Token.RPCURL = "http://127.0.0.1:8545"
	cfg.Token.Contract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	cfg.Server.RequireSignatures = true
	assert.NoError(t, cfg.Validate())

	cfg = validConfig()
	require.False(t, cfg.Server.RequireSignatures)
	assert.NoError(t, cfg.Validate(), "memory setup may trust wallet headers")
}

func TestArchiveCutoff(t *testing.T) {
	now := time.Date(2026, 4, 30, 12, 0, 0, 0, time.UTC)
	a := ArchiveConfig{RetentionDays: 30}
	assert.Equal(t, time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC), a.Cutoff(now))
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pw"
	cfg.Notify.DiscordWebhookURL = "https://discord/hook"
	cfg.Server.OperatorKey = "op"

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Escrow.PrivateKey)
	assert.Equal(t, redacted, out.Postgres.Password)
	assert.Equal(t, redacted, out.Notify.DiscordWebhookURL)
	assert.Equal(t, redacted, out.Server.OperatorKey)
	assert.Equal(t, "", out.S3.SecretKey)
	assert.Equal(t, hardhatKey, cfg.Escrow.PrivateKey)

	out.Server.CORSOrigins[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Server.CORSOrigins[0])
}
