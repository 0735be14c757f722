// Package config provides configuration management for the CCASS shareholding tracker.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultCCASSURL is the CCASS shareholding search page
const DefaultCCASSURL = "https://www.hkexnews.hk/sdw/search/searchsdw.aspx"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	CCASS     CCASSConfig
	Redis     RedisConfig
	Budget    BudgetConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// CCASSConfig holds settings for the remote shareholding source
type CCASSConfig struct {
	URL            string
	RequestTimeout time.Duration
	Workers        int // Concurrent in-flight requests per batch
	TopN           int
	MaxSpanDays    int
	UserAgent      string
}

// RedisConfig holds Redis configuration.
// Redis is optional; when disabled outbound requests are not budgeted.
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// BudgetConfig holds the outbound request budget shared by all replicas
type BudgetConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	MaxWait           time.Duration
}

// RateLimitConfig holds inbound API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://127.0.0.1:3000"}),
		},
		CCASS: CCASSConfig{
			URL:            getEnv("CCASS_URL", DefaultCCASSURL),
			RequestTimeout: getEnvAsDuration("CCASS_REQUEST_TIMEOUT", 30*time.Second),
			Workers:        getEnvAsInt("CCASS_WORKERS", 4),
			TopN:           getEnvAsInt("CCASS_TOP_N", 10),
			MaxSpanDays:    getEnvAsInt("CCASS_MAX_SPAN_DAYS", 366),
			UserAgent:      getEnv("CCASS_USER_AGENT", "ccass-tracker/1.0"),
		},
		Redis: RedisConfig{
			Enabled:        getEnvAsBool("REDIS_ENABLED", false),
			Host:           getEnv("REDIS_HOST", "localhost"),
			Port:           getEnv("REDIS_PORT", "6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
		},
		Budget: BudgetConfig{
			RequestsPerWindow: getEnvAsInt("CCASS_BUDGET_REQUESTS", 8),
			Window:            getEnvAsDuration("CCASS_BUDGET_WINDOW", time.Second),
			MaxWait:           getEnvAsDuration("CCASS_BUDGET_MAX_WAIT", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsInt("RATE_LIMIT_RPS", 5),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values that would make the pipeline misbehave
func (c *Config) Validate() error {
	if c.CCASS.URL == "" {
		return fmt.Errorf("CCASS_URL cannot be empty")
	}
	if c.CCASS.Workers < 1 {
		return fmt.Errorf("CCASS_WORKERS must be at least 1, got %d", c.CCASS.Workers)
	}
	if c.CCASS.TopN < 1 {
		return fmt.Errorf("CCASS_TOP_N must be at least 1, got %d", c.CCASS.TopN)
	}
	if c.CCASS.MaxSpanDays < 1 {
		return fmt.Errorf("CCASS_MAX_SPAN_DAYS must be at least 1, got %d", c.CCASS.MaxSpanDays)
	}
	if c.Redis.Enabled && c.Budget.RequestsPerWindow < 1 {
		return fmt.Errorf("CCASS_BUDGET_REQUESTS must be at least 1 when Redis is enabled")
	}
	return nil
}

// RedisAddr returns host:port for the Redis client
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList gets a comma separated environment variable
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
