// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default database address used when neither WAREHOUSE_HOST nor
// WAREHOUSE_PORT is set.
const (
	DefaultWarehouseHost = "localhost"
	DefaultWarehousePort = 27017
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Warehouse WarehouseConfig
	Notify    NotifyConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host        string
	Port        int
	GinMode     string
	CORSOrigins []string
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarehouseConfig holds document database configuration.
type WarehouseConfig struct {
	Type           string
	URI            string
	Host           string
	Port           int
	Database       string
	ConnectTimeout time.Duration
}

// NotifyConfig holds insertion notification configuration.
type NotifyConfig struct {
	Type     string
	Host     string
	Port     string
	Password string
	DB       int
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig holds Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	host, port := LookupWarehouseAddress()

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			GinMode:     getEnv("GIN_MODE", "release"),
			CORSOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Warehouse: WarehouseConfig{
			Type:           getEnv("DOCDB_TYPE", "mongodb"),
			URI:            getEnv("WAREHOUSE_URI", ""),
			Host:           host,
			Port:           port,
			Database:       getEnv("WAREHOUSE_DATABASE", "warehouse"),
			ConnectTimeout: time.Duration(getEnvAsInt("WAREHOUSE_CONNECT_TIMEOUT_SECONDS", 300)) * time.Second,
		},
		Notify: NotifyConfig{
			Type:     getEnv("NOTIFY_TYPE", "redis"),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Warehouse.Port <= 0 || c.Warehouse.Port > 65535 {
		return fmt.Errorf("invalid WAREHOUSE_PORT: %d", c.Warehouse.Port)
	}
	if c.Warehouse.ConnectTimeout <= 0 {
		return fmt.Errorf("WAREHOUSE_CONNECT_TIMEOUT_SECONDS must be positive")
	}
	if c.Warehouse.Database == "" {
		return fmt.Errorf("WAREHOUSE_DATABASE cannot be empty")
	}
	return nil
}

// LookupWarehouseAddress returns the default database host and port.
func LookupWarehouseAddress() (string, int) {
	return getEnv("WAREHOUSE_HOST", DefaultWarehouseHost), getEnvAsInt("WAREHOUSE_PORT", DefaultWarehousePort)
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as a boolean with a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
