package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path on top of the built-in defaults, then
// applies PREDICTBOT_* environment variable overrides. The result has NOT
// been validated; call Config.Validate after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// .env is optional.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from well-known PREDICTBOT_*
// variables when set, so operators can inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Wallet.PrivateKey, "PREDICTBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "PREDICTBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "PREDICTBOT_WALLET_KEY_PASSWORD")

	setStr(&cfg.Polymarket.ClobHost, "PREDICTBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "PREDICTBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.DataHost, "PREDICTBOT_POLYMARKET_DATA_HOST")
	setInt(&cfg.Polymarket.ChainID, "PREDICTBOT_POLYMARKET_CHAIN_ID")
	setStr(&cfg.Polymarket.ApiKey, "PREDICTBOT_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "PREDICTBOT_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "PREDICTBOT_POLYMARKET_API_PASSPHRASE")

	setFloat64(&cfg.Scanner.MinEdge, "PREDICTBOT_SCANNER_MIN_EDGE")
	setFloat64(&cfg.Scanner.KellyFraction, "PREDICTBOT_SCANNER_KELLY_FRACTION")
	setFloat64(&cfg.Scanner.MinLiquidity, "PREDICTBOT_SCANNER_MIN_LIQUIDITY")
	setFloat64(&cfg.Scanner.MaxDays, "PREDICTBOT_SCANNER_MAX_DAYS")
	setStringSlice(&cfg.Scanner.Keywords, "PREDICTBOT_SCANNER_KEYWORDS")
	setInt(&cfg.Scanner.Limit, "PREDICTBOT_SCANNER_LIMIT")
	setDuration(&cfg.Scanner.Interval, "PREDICTBOT_SCANNER_INTERVAL")

	setStr(&cfg.Trading.Strategy, "PREDICTBOT_TRADING_STRATEGY")
	setFloat64(&cfg.Trading.BankrollUSD, "PREDICTBOT_TRADING_BANKROLL_USD")
	setInt(&cfg.Trading.MaxOrdersPerRun, "PREDICTBOT_TRADING_MAX_ORDERS_PER_RUN")
	setDuration(&cfg.Trading.RefreshInterval, "PREDICTBOT_TRADING_REFRESH_INTERVAL")
	setBool(&cfg.Trading.DryRun, "PREDICTBOT_TRADING_DRY_RUN")

	setStr(&cfg.Database.DSN, "PREDICTBOT_DATABASE_DSN")
	setStr(&cfg.Database.Host, "PREDICTBOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "PREDICTBOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "PREDICTBOT_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "PREDICTBOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "PREDICTBOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "PREDICTBOT_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "PREDICTBOT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "PREDICTBOT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "PREDICTBOT_DATABASE_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "PREDICTBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICTBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICTBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICTBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICTBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICTBOT_REDIS_TLS_ENABLED")

	setStr(&cfg.S3.Endpoint, "PREDICTBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDICTBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDICTBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDICTBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDICTBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDICTBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDICTBOT_S3_FORCE_PATH_STYLE")

	setStr(&cfg.Notify.TelegramToken, "PREDICTBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDICTBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDICTBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDICTBOT_NOTIFY_EVENTS")

	setStr(&cfg.Mode, "PREDICTBOT_MODE")
	setStr(&cfg.LogLevel, "PREDICTBOT_LOG_LEVEL")
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
