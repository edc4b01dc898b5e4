package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VAULTSYNC_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known VAULTSYNC_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "VAULTSYNC_SERVER_PORT")

	// ── Webhook ──
	setStr(&cfg.Webhook.SigningSecret, "VAULTSYNC_WEBHOOK_SIGNING_SECRET")

	// ── Chain ──
	setStr(&cfg.Chain.RPCEndpoint, "VAULTSYNC_CHAIN_RPC_ENDPOINT")
	setInt64(&cfg.Chain.ChainID, "VAULTSYNC_CHAIN_ID")
	setStr(&cfg.Chain.ManagerAddress, "VAULTSYNC_CHAIN_MANAGER_ADDRESS")
	setStr(&cfg.Chain.GenesisAddress, "VAULTSYNC_CHAIN_GENESIS_ADDRESS")

	// ── Database ──
	setStr(&cfg.Database.DSN, "VAULTSYNC_DATABASE_DSN")
	setStr(&cfg.Database.Host, "VAULTSYNC_DATABASE_HOST")
	setInt(&cfg.Database.Port, "VAULTSYNC_DATABASE_PORT")
	setStr(&cfg.Database.Database, "VAULTSYNC_DATABASE_NAME")
	setStr(&cfg.Database.User, "VAULTSYNC_DATABASE_USER")
	setStr(&cfg.Database.Password, "VAULTSYNC_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "VAULTSYNC_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "VAULTSYNC_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "VAULTSYNC_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "VAULTSYNC_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VAULTSYNC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VAULTSYNC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VAULTSYNC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VAULTSYNC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VAULTSYNC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VAULTSYNC_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "VAULTSYNC_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "VAULTSYNC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VAULTSYNC_S3_REGION")
	setStr(&cfg.S3.Bucket, "VAULTSYNC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VAULTSYNC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VAULTSYNC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VAULTSYNC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VAULTSYNC_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VAULTSYNC_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VAULTSYNC_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VAULTSYNC_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VAULTSYNC_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "VAULTSYNC_LOG_LEVEL")
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
