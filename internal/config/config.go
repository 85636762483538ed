package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port string
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MigrationsPath  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// GatewayConfig holds the merchant credentials and endpoints for the
// mobile-wallet payment gateway.
type GatewayConfig struct {
	BaseURL          string
	MerchantID       string
	MerchantSerial   string
	PrivateKeyPath   string
	GatewayCertPath  string
	APIv3Key         string
	PaymentNotifyURL string
	RefundNotifyURL  string
	Currency         string
}

type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
}

func NewConfig() (*Config, error) {
	// .env is optional; real deployments pass plain env vars.
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.Port = getEnv("APP_PORT", "8080")

	var err error
	if cfg.Postgres.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Postgres.Port, err = requireEnv("DB_PORT"); err != nil {
		return nil, err
	}
	if cfg.Postgres.User, err = requireEnv("DB_USER"); err != nil {
		return nil, err
	}
	if cfg.Postgres.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Postgres.DBName, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}
	cfg.Postgres.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Postgres.MaxConns = int32(getEnvInt("DB_MAX_CONNS", 10))
	cfg.Postgres.MinConns = int32(getEnvInt("DB_MIN_CONNS", 2))
	cfg.Postgres.MaxConnLifetime = time.Duration(getEnvInt("DB_MAX_CONN_LIFETIME_MINUTES", 30)) * time.Minute
	cfg.Postgres.MigrationsPath = getEnv("DB_MIGRATIONS_PATH", "migrations")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	if cfg.Gateway.BaseURL, err = requireEnv("GATEWAY_BASE_URL"); err != nil {
		return nil, err
	}
	if cfg.Gateway.MerchantID, err = requireEnv("GATEWAY_MERCHANT_ID"); err != nil {
		return nil, err
	}
	if cfg.Gateway.MerchantSerial, err = requireEnv("GATEWAY_MERCHANT_SERIAL"); err != nil {
		return nil, err
	}
	if cfg.Gateway.PrivateKeyPath, err = requireEnv("GATEWAY_PRIVATE_KEY_PATH"); err != nil {
		return nil, err
	}
	if cfg.Gateway.GatewayCertPath, err = requireEnv("GATEWAY_CERT_PATH"); err != nil {
		return nil, err
	}
	if cfg.Gateway.APIv3Key, err = requireEnv("GATEWAY_APIV3_KEY"); err != nil {
		return nil, err
	}
	if cfg.Gateway.PaymentNotifyURL, err = requireEnv("GATEWAY_PAYMENT_NOTIFY_URL"); err != nil {
		return nil, err
	}
	if cfg.Gateway.RefundNotifyURL, err = requireEnv("GATEWAY_REFUND_NOTIFY_URL"); err != nil {
		return nil, err
	}
	cfg.Gateway.Currency = getEnv("GATEWAY_CURRENCY", "CNY")

	return cfg, nil
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("config: %s is required", key)
	}
	return val, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}
