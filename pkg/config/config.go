// Package config loads and validates service configuration.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Pool     PoolConfig
	Lending  LendingConfig
	Exchange ExchangeConfig
	Admin    AdminConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// PoolConfig carries the fund's economic parameters. Amounts are integral base
// units of the settlement asset.
type PoolConfig struct {
	Capacity        decimal.Decimal
	RoundFee        decimal.Decimal
	SettlementAsset string
	WatchInterval   time.Duration
}

type LendingConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

type ExchangeConfig struct {
	BaseURL string
	Timeout time.Duration
}

// AdminConfig guards the privileged round and ownership endpoints.
// BootstrapName/BootstrapSecret seed the first owner operator on an empty
// database and are ignored afterwards.
type AdminConfig struct {
	TOTPSecret       string
	RateLimit        int
	RateLimitWindow  time.Duration
	IdempotencyTTL   time.Duration
	OperatorTokenTTL time.Duration
	BootstrapName    string
	BootstrapSecret  string
}

// Load reads .env (when present) and then the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "change-this-secret"),
			Expiration: getDurationEnv("JWT_EXPIRATION", 15*time.Minute),
		},
		Pool: PoolConfig{
			Capacity:        getDecimalEnv("POOL_CAPACITY", decimal.NewFromInt(1_000_000_000)),
			RoundFee:        getDecimalEnv("POOL_ROUND_FEE", decimal.NewFromInt(100)),
			SettlementAsset: getEnv("POOL_SETTLEMENT_ASSET", "USDT"),
			WatchInterval:   getDurationEnv("POOL_WATCH_INTERVAL", time.Minute),
		},
		Lending: LendingConfig{
			BaseURL:      getEnv("LENDING_BASE_URL", "http://localhost:9100"),
			TokenURL:     getEnv("LENDING_TOKEN_URL", ""),
			ClientID:     getEnv("LENDING_CLIENT_ID", ""),
			ClientSecret: getEnv("LENDING_CLIENT_SECRET", ""),
			Timeout:      getDurationEnv("LENDING_TIMEOUT", 15*time.Second),
		},
		Exchange: ExchangeConfig{
			BaseURL: getEnv("EXCHANGE_BASE_URL", "http://localhost:9100"),
			Timeout: getDurationEnv("EXCHANGE_TIMEOUT", 15*time.Second),
		},
		Admin: AdminConfig{
			TOTPSecret:       getEnv("MANAGER_TOTP_SECRET", ""),
			RateLimit:        getIntEnv("RATE_LIMIT", 100),
			RateLimitWindow:  getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
			IdempotencyTTL:   getDurationEnv("IDEMPOTENCY_TTL", 24*time.Hour),
			OperatorTokenTTL: getDurationEnv("OPERATOR_TOKEN_TTL", time.Hour),
			BootstrapName:    getEnv("ADMIN_BOOTSTRAP_NAME", "owner"),
			BootstrapSecret:  getEnv("ADMIN_BOOTSTRAP_SECRET", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getDecimalEnv(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
