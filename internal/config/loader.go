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

// Load decodes the TOML file at path over Defaults, then applies .env and
// NFTMARKET_* overrides. An empty path skips the file. The result is not
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// escrow
	setStr(&cfg.Escrow.PrivateKey, "NFTMARKET_ESCROW_PRIVATE_KEY")
	setStr(&cfg.Escrow.EncryptedKeyPath, "NFTMARKET_ESCROW_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Escrow.KeyPassword, "NFTMARKET_ESCROW_KEY_PASSWORD")
	setStr(&cfg.Escrow.Address, "NFTMARKET_ESCROW_ADDRESS")
	setInt64(&cfg.Escrow.ChainID, "NFTMARKET_ESCROW_CHAIN_ID")
	setInt64(&cfg.Escrow.FeeBps, "NFTMARKET_ESCROW_FEE_BPS")
	setStr(&cfg.Escrow.FeeRecipient, "NFTMARKET_ESCROW_FEE_RECIPIENT")
	setDuration(&cfg.Escrow.LockTTL, "NFTMARKET_ESCROW_LOCK_TTL")

	// token
	setStr(&cfg.Token.Provider, "NFTMARKET_TOKEN_PROVIDER")
	setStr(&cfg.Token.RPCURL, "NFTMARKET_TOKEN_RPC_URL")
	setStr(&cfg.Token.Contract, "NFTMARKET_TOKEN_CONTRACT")

	// store
	setStr(&cfg.Store.Backend, "NFTMARKET_STORE_BACKEND")

	// postgres
	setStr(&cfg.Postgres.DSN, "NFTMARKET_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "NFTMARKET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "NFTMARKET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "NFTMARKET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "NFTMARKET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "NFTMARKET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "NFTMARKET_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "NFTMARKET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "NFTMARKET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "NFTMARKET_POSTGRES_RUN_MIGRATIONS")

	// redis
	setBool(&cfg.Redis.Enabled, "NFTMARKET_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "NFTMARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "NFTMARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "NFTMARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "NFTMARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "NFTMARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "NFTMARKET_REDIS_TLS_ENABLED")

	// s3
	setStr(&cfg.S3.Endpoint, "NFTMARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "NFTMARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "NFTMARKET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "NFTMARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "NFTMARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "NFTMARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "NFTMARKET_S3_FORCE_PATH_STYLE")

	// server
	setInt(&cfg.Server.Port, "NFTMARKET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "NFTMARKET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "NFTMARKET_SERVER_API_KEY")
	setStr(&cfg.Server.OperatorKey, "NFTMARKET_SERVER_OPERATOR_KEY")
	setBool(&cfg.Server.RequireSignatures, "NFTMARKET_SERVER_REQUIRE_SIGNATURES")
	setInt(&cfg.Server.RateLimit, "NFTMARKET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.ReplayWindow, "NFTMARKET_SERVER_REPLAY_WINDOW")

	// notify
	setStr(&cfg.Notify.TelegramToken, "NFTMARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NFTMARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NFTMARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NFTMARKET_NOTIFY_EVENTS")

	// archive
	setInt(&cfg.Archive.RetentionDays, "NFTMARKET_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "NFTMARKET_ARCHIVE_INTERVAL")

	setStr(&cfg.Mode, "NFTMARKET_MODE")
	setStr(&cfg.LogLevel, "NFTMARKET_LOG_LEVEL")
}

// The set* helpers only touch dst when the variable is set and parses.

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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
