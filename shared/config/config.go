package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/NOVASWAY/Seth2.0-sub005/shared/logger"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Billing   BillingConfig
	Inventory InventoryConfig
	Mpesa     MpesaConfig

	LogLevel      string `validate:"oneof=trace debug info warn error"`
	LogFormat     string `validate:"oneof=json console"`
	LogTimeFormat string
	LogOutput     string
}

type ServerConfig struct {
	Port               string `validate:"required,numeric"`
	GinMode            string `validate:"oneof=debug release test"`
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration `validate:"gt=0"`
}

type DatabaseConfig struct {
	Host            string `validate:"required"`
	Port            string `validate:"required,numeric"`
	User            string `validate:"required"`
	Password        string
	Name            string `validate:"required"`
	SSLMode         string `validate:"oneof=disable require verify-ca verify-full"`
	MaxOpenConns    int    `validate:"gt=0"`
	MaxIdleConns    int    `validate:"gte=0"`
	ConnMaxLifetime time.Duration
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// Redis is optional; an empty address disables it.
type RedisConfig struct {
	Address  string
	Password string
	DB       int `validate:"gte=0"`
}

func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

type AuthConfig struct {
	AccessSecret  string        `validate:"required"`
	RefreshSecret string        `validate:"required"`
	AccessTTL     time.Duration `validate:"gt=0"`
	RefreshTTL    time.Duration `validate:"gt=0"`
}

type BillingConfig struct {
	VATRate decimal.Decimal
	DueDays int `validate:"gte=0"`
}

type InventoryConfig struct {
	ExpiryWindowDays int `validate:"gt=0,lte=365"`
}

type MpesaConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	PassKey        string
	BaseURL        string        `validate:"required,url"`
	CallbackURL    string        `validate:"omitempty,url"`
	Timeout        time.Duration `validate:"gt=0"`
}

// Enabled reports whether enough credentials are present to call the gateway.
func (m MpesaConfig) Enabled() bool {
	return m.ConsumerKey != "" && m.ConsumerSecret != "" && m.ShortCode != "" && m.PassKey != "" && m.CallbackURL != ""
}

// Load reads configuration from the environment, loading a .env file first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			GinMode:            getEnv("GIN_MODE", "release"),
			CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "")),
			ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "clinic"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			AccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
			AccessTTL:     getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTTL:    getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		Billing: BillingConfig{
			DueDays: getEnvInt("BILLING_DUE_DAYS", 30),
		},
		Inventory: InventoryConfig{
			ExpiryWindowDays: getEnvInt("INVENTORY_EXPIRY_WINDOW_DAYS", 30),
		},
		Mpesa: MpesaConfig{
			ConsumerKey:    getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("MPESA_CONSUMER_SECRET", ""),
			ShortCode:      getEnv("MPESA_SHORTCODE", ""),
			PassKey:        getEnv("MPESA_PASSKEY", ""),
			BaseURL:        getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			CallbackURL:    getEnv("MPESA_CALLBACK_URL", ""),
			Timeout:        getEnvDuration("MPESA_TIMEOUT", 30*time.Second),
		},
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", "json")),
		LogTimeFormat: getEnv("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:     getEnv("LOG_OUTPUT", "stdout"),
	}

	vat, err := decimal.NewFromString(getEnv("BILLING_VAT_RATE", "0.16"))
	if err != nil {
		return nil, fmt.Errorf("config validation failed: BILLING_VAT_RATE: %w", err)
	}
	config.Billing.VATRate = vat

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Billing.VATRate.IsNegative() || c.Billing.VATRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("BILLING_VAT_RATE must be in [0, 1), got %s", c.Billing.VATRate)
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
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

func splitAndTrim(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
