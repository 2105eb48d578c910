package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CARMARKET_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CARMARKET_* environment variables
// and overwrites the corresponding Config fields when a variable is set
// (i.e. not empty). This lets operators inject secrets at deploy time
// without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "CARMARKET_CHAIN_RPC_URL")
	setStr(&cfg.Chain.WSURL, "CARMARKET_CHAIN_WS_URL")
	setStr(&cfg.Chain.ContractAddress, "CARMARKET_CHAIN_CONTRACT_ADDRESS")
	setInt64(&cfg.Chain.ChainID, "CARMARKET_CHAIN_CHAIN_ID")

	// ── Keystore ──
	setStr(&cfg.Keystore.Dir, "CARMARKET_KEYSTORE_DIR")
	setStr(&cfg.Keystore.ImportKeyPath, "CARMARKET_KEYSTORE_IMPORT_KEY_PATH")
	setStr(&cfg.Keystore.ImportKeyPassword, "CARMARKET_KEYSTORE_IMPORT_KEY_PASSWORD")
	setStr(&cfg.Keystore.Passphrase, "CARMARKET_KEYSTORE_PASSPHRASE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "CARMARKET_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CARMARKET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CARMARKET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CARMARKET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CARMARKET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CARMARKET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CARMARKET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CARMARKET_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CARMARKET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CARMARKET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CARMARKET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CARMARKET_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CARMARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CARMARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CARMARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CARMARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CARMARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CARMARKET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CARMARKET_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CARMARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CARMARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "CARMARKET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CARMARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CARMARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CARMARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CARMARKET_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.Retention, "CARMARKET_S3_RETENTION")
	setDuration(&cfg.S3.Interval, "CARMARKET_S3_INTERVAL")

	// ── Market ──
	setDuration(&cfg.Market.RefreshInterval, "CARMARKET_MARKET_REFRESH_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CARMARKET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CARMARKET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CARMARKET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CARMARKET_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CARMARKET_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CARMARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CARMARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CARMARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CARMARKET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CARMARKET_MODE")
	setStr(&cfg.LogLevel, "CARMARKET_LOG_LEVEL")
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
