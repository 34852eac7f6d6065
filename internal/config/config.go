// Package config defines the marketplace configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration. Fields come from a TOML file and are then
// overridden by NFTMARKET_* environment variables.
type Config struct {
	Escrow   EscrowConfig   `toml:"escrow"`
	Token    TokenConfig    `toml:"token"`
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Archive  ArchiveConfig  `toml:"archive"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EscrowConfig identifies the marketplace operator account. The address is
// derived from the key when one is configured.
type EscrowConfig struct {
	PrivateKey       string   `toml:"private_key"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	Address          string   `toml:"address"`
	ChainID          int64    `toml:"chain_id"`
	FeeBps           int64    `toml:"fee_bps"`
	FeeRecipient     string   `toml:"fee_recipient"`
	LockTTL          duration `toml:"lock_ttl"`
}

// HasKey reports whether a signing key source is configured.
func (e EscrowConfig) HasKey() bool {
	return e.PrivateKey != "" || e.EncryptedKeyPath != ""
}

// TokenConfig selects the token ownership authority.
type TokenConfig struct {
	Provider string `toml:"provider"` // memory | erc721
	RPCURL   string `toml:"rpc_url"`
	Contract string `toml:"contract"`
}

// StoreConfig selects the ledger backend.
type StoreConfig struct {
	Backend string `toml:"backend"` // memory | postgres
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters. When disabled, locks, the
// event bus and replay protection stay in-process.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port              int      `toml:"port"`
	CORSOrigins       []string `toml:"cors_origins"`
	APIKey            string   `toml:"api_key"`
	OperatorKey       string   `toml:"operator_key"` // enables POST /api/escrow/deposit; empty keeps it closed
	RequireSignatures bool     `toml:"require_signatures"`
	RateLimit         int      `toml:"rate_limit"` // requests per minute per client, 0 disables
	ReplayWindow      duration `toml:"replay_window"`
}

// NotifyConfig holds notification channel credentials. Events lists the
// event types forwarded; empty means all.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Enabled reports whether any channel is configured.
func (n NotifyConfig) Enabled() bool {
	return (n.TelegramToken != "" && n.TelegramChatID != "") || n.DiscordWebhookURL != ""
}

// ArchiveConfig controls export of settled history to S3.
type ArchiveConfig struct {
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// Cutoff returns the instant before which records are archived.
func (a ArchiveConfig) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -a.RetentionDays)
}

// duration lets TOML carry durations as strings such as "5m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Escrow: EscrowConfig{
			ChainID: 31337,
			LockTTL: duration{30 * time.Second},
		},
		Token: TokenConfig{
			Provider: "memory",
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "nftmarket",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "nftmarket-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:    120,
			ReplayWindow: duration{10 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"item_sold", "offer_filled"},
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server":  true,
	"archive": true,
	"full":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Escrow
	if !c.Escrow.HasKey() && c.Escrow.Address == "" {
		errs = append(errs, "escrow: one of private_key, encrypted_key_path or address must be set")
	}
	if c.Escrow.EncryptedKeyPath != "" && c.Escrow.KeyPassword == "" {
		errs = append(errs, "escrow: key_password is required when encrypted_key_path is set")
	}
	if c.Escrow.Address != "" && !common.IsHexAddress(c.Escrow.Address) {
		errs = append(errs, fmt.Sprintf("escrow: address %q is not a hex address", c.Escrow.Address))
	}
	if c.Escrow.ChainID <= 0 {
		errs = append(errs, "escrow: chain_id must be positive")
	}
	if c.Escrow.FeeBps < 0 || c.Escrow.FeeBps > 10_000 {
		errs = append(errs, fmt.Sprintf("escrow: fee_bps must be 0-10000, got %d", c.Escrow.FeeBps))
	}
	if c.Escrow.FeeBps > 0 && !common.IsHexAddress(c.Escrow.FeeRecipient) {
		errs = append(errs, "escrow: fee_recipient must be a hex address when fee_bps > 0")
	}
	if c.Escrow.LockTTL.Duration <= 0 {
		errs = append(errs, "escrow: lock_ttl must be positive")
	}

	// Token
	switch c.Token.Provider {
	case "memory":
		if c.Store.Backend == "postgres" {
			errs = append(errs, "token: provider memory loses ownership on restart; use erc721 with store.backend postgres")
		}
	case "erc721":
		if !c.Escrow.HasKey() {
			errs = append(errs, "token: erc721 provider needs an escrow signing key")
		}
		if c.Token.RPCURL == "" {
			errs = append(errs, "token: rpc_url must not be empty for erc721")
		}
		if !common.IsHexAddress(c.Token.Contract) {
			errs = append(errs, fmt.Sprintf("token: contract %q is not a hex address", c.Token.Contract))
		}
	default:
		errs = append(errs, fmt.Sprintf("token: unknown provider %q (valid: memory, erc721)", c.Token.Provider))
	}

	// Store
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: memory, postgres)", c.Store.Backend))
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

	// Archive needs S3 and a durable store.
	if mode == "archive" || mode == "full" {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.Archive.RetentionDays < 0 {
			errs = append(errs, "archive: retention_days must be >= 0")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}
	if mode == "archive" && c.Store.Backend != "postgres" {
		errs = append(errs, "archive: mode archive needs store.backend postgres")
	}

	// Server
	if mode == "server" || mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RequireSignatures && c.Server.ReplayWindow.Duration <= 0 {
			errs = append(errs, "server: replay_window must be positive when require_signatures is set")
		}
		// Unsigned wallet headers are only trusted by the throwaway in-memory setup.
		if !c.Server.RequireSignatures && (c.Store.Backend != "memory" || c.Token.Provider != "memory") {
			errs = append(errs, "server: require_signatures must be set unless store.backend and token.provider are both memory")
		}
		if c.Server.OperatorKey != "" && c.Server.OperatorKey == c.Server.APIKey {
			errs = append(errs, "server: operator_key must differ from api_key")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
