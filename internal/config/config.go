package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port            string        `json:"port"`
	Env             string        `json:"env"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	HTTPTimeout     time.Duration `json:"http_timeout"`

	// Postgres configuration. Empty falls back to the in-memory store.
	DatabaseURL string `json:"database_url"`

	// Redis configuration. Empty falls back to in-process locks.
	RedisURL    string        `json:"redis_url"`
	RedisPrefix string        `json:"redis_prefix"`
	LockTTL     time.Duration `json:"lock_ttl"`

	// QA configuration
	QaPolicyPath string `json:"qa_policy_path"`

	// Webhook notifications
	WebhookURL     string        `json:"webhook_url"`
	WebhookSecret  string        `json:"webhook_secret"`
	WebhookTimeout time.Duration `json:"webhook_timeout"`

	// CloudFlare R2 configuration for archive exports
	R2Endpoint  string `json:"r2_endpoint"`
	R2AccessKey string `json:"r2_access_key"`
	R2SecretKey string `json:"r2_secret_key"`
	R2Bucket    string `json:"r2_bucket"`
	R2AccountID string `json:"r2_account_id"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Security
	AdminAPIKey string `json:"admin_api_key"`
}

// Load loads configuration from environment variables and validates it
func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := &Config{
		// Server configuration
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("APP_ENV", "development"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HTTPTimeout:     getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),

		// Postgres configuration
		DatabaseURL: getEnv("DATABASE_URL", ""),

		// Redis configuration
		RedisURL:    getEnv("REDIS_URL", ""),
		RedisPrefix: getEnv("REDIS_PREFIX", "inklift:"),
		LockTTL:     getEnvAsDuration("LOCK_TTL", 30*time.Second),

		// QA configuration
		QaPolicyPath: getEnv("QA_POLICY_PATH", ""),

		// Webhook notifications
		WebhookURL:     getEnv("WEBHOOK_URL", ""),
		WebhookSecret:  getEnv("WEBHOOK_SECRET", ""),
		WebhookTimeout: getEnvAsDuration("WEBHOOK_TIMEOUT", 10*time.Second),

		// CloudFlare R2 configuration
		R2Endpoint:  getEnv("R2_ENDPOINT", ""),
		R2AccessKey: getEnv("R2_ACCESS_KEY", ""),
		R2SecretKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2Bucket:    getEnv("R2_BUCKET", "inklift-archive"),
		R2AccountID: getEnv("CLOUDFLARE_ACCOUNT_ID", ""),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		// Security
		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Env == "production" && c.AdminAPIKey == "" {
		return errors.New("ADMIN_API_KEY is required in production")
	}
	if c.WebhookURL != "" && c.WebhookSecret == "" {
		return errors.New("WEBHOOK_SECRET is required when WEBHOOK_URL is set")
	}
	return nil
}

// ArchiveEnabled reports whether R2 credentials are configured.
func (c *Config) ArchiveEnabled() bool {
	return c.R2Endpoint != "" && c.R2AccessKey != "" && c.R2SecretKey != ""
}

// Helper functions for environment variable handling
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %d", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %v", name, err, defaultVal)
		return defaultVal
	}
	return value
}
