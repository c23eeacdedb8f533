package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 不安全的默认值列表 (生产环境不应使用)
var insecureDefaults = map[string]bool{
	"your-secret-key-change-in-production": true,
	"internal-secret":                      true,
	"internal-service-secret":              true,
	"":                                     true,
}

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Store          StoreConfig
	JWT            JWTConfig
	Stripe         StripeConfig
	Provider       ProviderConfig
	Redis          RedisConfig
	Billing        BillingConfig
	Log            LogConfig
	InternalSecret string
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

type StoreConfig struct {
	Driver string
}

type JWTConfig struct {
	SecretKey string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

type ProviderConfig struct {
	Token         string
	DefaultImage  string
	DefaultRegion string
}

type RedisConfig struct {
	URL string
}

type BillingConfig struct {
	Currency            string
	SweepInterval       time.Duration
	CatalogCacheTTL     time.Duration
	ProvisioningTimeout time.Duration
	DropletNamePrefix   string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, after merging an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8006"),
			Mode: getEnv("GIN_MODE", "release"), // 默认为 release 模式
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "saas_user"),
			Password: getEnv("DB_PASSWORD", "saas_pass"),
			DBName:   getEnv("DB_NAME", "saas_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 25),
			MinConns: getEnvInt("DB_MIN_CONNS", 5),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET_KEY", ""),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:    getEnv("STRIPE_SUCCESS_URL", "http://localhost:5173/payment/success?session_id={CHECKOUT_SESSION_ID}"),
			CancelURL:     getEnv("STRIPE_CANCEL_URL", "http://localhost:5173/payment/cancelled"),
		},
		Provider: ProviderConfig{
			Token:         getEnv("DO_API_TOKEN", ""),
			DefaultImage:  getEnv("DO_DEFAULT_IMAGE", "ubuntu-22-04-x64"),
			DefaultRegion: getEnv("DO_DEFAULT_REGION", "fra1"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Billing: BillingConfig{
			Currency:            strings.ToLower(getEnv("BILLING_CURRENCY", "eur")),
			SweepInterval:       getEnvDuration("LEASE_SWEEP_INTERVAL", time.Hour),
			CatalogCacheTTL:     getEnvDuration("CATALOG_CACHE_TTL", 10*time.Minute),
			ProvisioningTimeout: getEnvDuration("PROVISIONING_TIMEOUT", 15*time.Minute),
			DropletNamePrefix:   getEnv("DROPLET_NAME_PREFIX", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		InternalSecret: getEnv("INTERNAL_SECRET", ""),
	}

	return cfg
}

// Validate 验证配置有效性，生产环境必须设置安全的密钥
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.Store.Driver)
	}

	if c.Billing.SweepInterval < 0 {
		return fmt.Errorf("LEASE_SWEEP_INTERVAL must not be negative")
	}
	if c.Billing.ProvisioningTimeout <= 0 {
		return fmt.Errorf("PROVISIONING_TIMEOUT must be positive")
	}

	// debug 模式允许本地开发使用空密钥
	if c.Server.Mode == "debug" {
		return nil
	}

	if insecureDefaults[c.JWT.SecretKey] {
		return fmt.Errorf("JWT_SECRET_KEY must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters long")
	}

	if insecureDefaults[c.InternalSecret] {
		return fmt.Errorf("INTERNAL_SECRET must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.InternalSecret) < 32 {
		return fmt.Errorf("INTERNAL_SECRET must be at least 32 characters long")
	}

	if c.Stripe.SecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY must be set")
	}
	if c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET must be set")
	}
	if c.Provider.Token == "" {
		return fmt.Errorf("DO_API_TOKEN must be set")
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
