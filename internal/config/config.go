package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const defaultRedisURL = "redis://localhost:6379/0"

// Config holds all configuration for the application.
type Config struct {
	Port       string
	Env        string
	RedisURL   string
	InstanceID string

	// Connection handling
	SendBuffer      int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
	AllowedOrigins  []string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		RedisURL:        os.Getenv("REDIS_URL"),
		InstanceID:      getEnv("INSTANCE_ID", uuid.NewString()),
		SendBuffer:      getEnvInt("WS_SEND_BUFFER", 64),
		WriteTimeout:    getEnvDuration("WS_WRITE_TIMEOUT", 10*time.Second),
		PingInterval:    getEnvDuration("WS_PING_INTERVAL", 30*time.Second),
		MaxMessageBytes: int64(getEnvInt("WS_MAX_MESSAGE_BYTES", 8192)),
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "*")),
	}

	if cfg.RedisURL == "" {
		// In production, require redis: it is both the broker and the log
		if cfg.Env == "production" {
			panic("REDIS_URL is required in production")
		}
		cfg.RedisURL = defaultRedisURL
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

// splitList parses a comma-separated list, skipping empty entries.
func splitList(value string) []string {
	var out []string
	for _, entry := range strings.Split(value, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
