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
// built-in defaults, applies VIDBLOQ_* environment variable overrides, and
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

// applyEnvOverrides reads well-known VIDBLOQ_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "VIDBLOQ_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "VIDBLOQ_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VIDBLOQ_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VIDBLOQ_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VIDBLOQ_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VIDBLOQ_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VIDBLOQ_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "VIDBLOQ_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "VIDBLOQ_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "VIDBLOQ_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VIDBLOQ_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VIDBLOQ_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VIDBLOQ_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VIDBLOQ_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VIDBLOQ_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VIDBLOQ_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "VIDBLOQ_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "VIDBLOQ_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VIDBLOQ_S3_REGION")
	setStr(&cfg.S3.Bucket, "VIDBLOQ_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VIDBLOQ_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VIDBLOQ_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VIDBLOQ_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VIDBLOQ_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.Address, "VIDBLOQ_ORACLE_ADDRESS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "VIDBLOQ_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Retention, "VIDBLOQ_ARCHIVE_RETENTION")
	setDuration(&cfg.Archive.Interval, "VIDBLOQ_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "VIDBLOQ_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "VIDBLOQ_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "VIDBLOQ_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.WebhookURL, "VIDBLOQ_NOTIFY_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VIDBLOQ_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "VIDBLOQ_MODE")
	setStr(&cfg.LogLevel, "VIDBLOQ_LOG_LEVEL")
}

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
