package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Pricing  PricingConfig
	Surge    SurgeConfig
	Factors  FactorsConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// PricingConfig holds quoting parameters.
type PricingConfig struct {
	Currency       string
	QuoteTTL       time.Duration
	CellResolution int
}

// SurgeConfig holds the surge recomputation loop parameters.
type SurgeConfig struct {
	SweepInterval  time.Duration
	StateTTL       time.Duration
	ActivityWindow time.Duration
	Workers        int
}

// FactorsConfig holds the external factor aggregator endpoint. An empty
// base URL keeps quoting on neutral factors.
type FactorsConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "fare_platform"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "fare-platform"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Pricing: PricingConfig{
			Currency:       getEnv("PRICING_CURRENCY", "PHP"),
			QuoteTTL:       getDurationEnv("PRICING_QUOTE_TTL", 5*time.Minute),
			CellResolution: getIntEnv("PRICING_CELL_RESOLUTION", 12),
		},
		Surge: SurgeConfig{
			SweepInterval:  getDurationEnv("SURGE_SWEEP_INTERVAL", 30*time.Second),
			StateTTL:       getDurationEnv("SURGE_STATE_TTL", 2*time.Minute),
			ActivityWindow: getDurationEnv("SURGE_ACTIVITY_WINDOW", 10*time.Minute),
			Workers:        getIntEnv("SURGE_WORKERS", 8),
		},
		Factors: FactorsConfig{
			BaseURL: getEnv("FACTORS_BASE_URL", ""),
			Timeout: getDurationEnv("FACTORS_TIMEOUT", 2*time.Second),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
