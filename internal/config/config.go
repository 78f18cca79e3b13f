package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Gateway  GatewayConfig
	Billing  BillingConfig
	Notify   NotifyConfig
	Secrets  SecretsConfig
	Logger   LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	MetricsPort int
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// GatewayConfig holds payment gateway configuration. SecretKey may be
// left empty when SecretKeyPath is set; the key is then loaded through
// the secret manager at startup.
type GatewayConfig struct {
	BaseURL       string
	SecretKey     string
	SecretKeyPath string
	Timeout       int // Request timeout in seconds (default: 30)
}

// BillingConfig tunes the billing sweep.
type BillingConfig struct {
	CronSecret       string
	CronSecretPath   string
	BatchSize        int32
	ChargesPerSecond float64
}

// NotifyConfig holds RabbitMQ configuration. An empty URL disables
// event publishing.
type NotifyConfig struct {
	AMQPURL string
}

// SecretsConfig selects the secret manager backend.
type SecretsConfig struct {
	// Backend: "aws" or "local"
	Backend string

	// AWS region for Secrets Manager
	Region string

	// Optional AWS profile and custom endpoint (LocalStack)
	Profile  string
	Endpoint string

	// Base directory for the local backend
	LocalPath string
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort: getEnvAsInt("METRICS_PORT", 9090),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "billing_service"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Gateway: GatewayConfig{
			BaseURL:       getEnv("GATEWAY_BASE_URL", "https://api.tosspayments.com/v1/billing"),
			SecretKey:     getEnv("GATEWAY_SECRET_KEY", ""),
			SecretKeyPath: getEnv("GATEWAY_SECRET_KEY_PATH", ""),
			Timeout:       getEnvAsInt("GATEWAY_TIMEOUT", 30),
		},
		Billing: BillingConfig{
			CronSecret:       getEnv("CRON_SECRET", ""),
			CronSecretPath:   getEnv("CRON_SECRET_PATH", ""),
			BatchSize:        int32(getEnvAsInt("BILLING_BATCH_SIZE", 500)),
			ChargesPerSecond: getEnvAsFloat("BILLING_CHARGES_PER_SECOND", 5),
		},
		Notify: NotifyConfig{
			AMQPURL: getEnv("AMQP_URL", ""),
		},
		Secrets: SecretsConfig{
			Backend:   getEnv("SECRETS_BACKEND", "local"),
			Region:    getEnv("AWS_REGION", "ap-northeast-2"),
			Profile:   getEnv("AWS_PROFILE", ""),
			Endpoint:  getEnv("AWS_SECRETS_ENDPOINT", ""),
			LocalPath: getEnv("SECRETS_LOCAL_PATH", "./secrets"),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	// Validate required fields
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.Gateway.SecretKey == "" && cfg.Gateway.SecretKeyPath == "" {
		return nil, fmt.Errorf("GATEWAY_SECRET_KEY or GATEWAY_SECRET_KEY_PATH is required")
	}
	if cfg.Billing.CronSecret == "" && cfg.Billing.CronSecretPath == "" {
		return nil, fmt.Errorf("CRON_SECRET or CRON_SECRET_PATH is required")
	}
	if cfg.Billing.BatchSize < 1 || cfg.Billing.BatchSize > 1000 {
		return nil, fmt.Errorf("BILLING_BATCH_SIZE must be between 1 and 1000")
	}

	return cfg, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
