package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Logging
	LogMode      string
	LogRedaction bool

	// Database
	DatabaseURL   string
	MigrationsDir string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Locking
	LockBackend string // "memory" | "redis"
	LockTTL     time.Duration

	// Sessions
	SessionStaleAfter time.Duration
	JanitorInterval   time.Duration

	// Media handles
	MediaHandlesEnabled bool
	MediaHandleTTL      time.Duration

	// Rate limiting
	RateLimitPerMinute int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                getEnvOrDefault("PORT", "8080"),
		Env:                 getEnvOrDefault("ENV", "development"),
		LogMode:             getEnvOrDefault("LOG_MODE", "development"),
		LogRedaction:        getEnvAsBoolOrDefault("LOG_REDACTION_ENABLED", true),
		DatabaseURL:         mustGetEnv("DATABASE_URL"),
		MigrationsDir:       getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		RedisURL:            mustGetEnv("REDIS_URL"),
		JWTSecret:           mustGetEnv("JWT_SECRET"),
		LockBackend:         getEnvOrDefault("LOCK_BACKEND", "redis"),
		LockTTL:             getEnvAsDurationOrDefault("LOCK_TTL", 10*time.Second),
		SessionStaleAfter:   getEnvAsDurationOrDefault("SESSION_STALE_AFTER", 2*time.Hour),
		JanitorInterval:     getEnvAsDurationOrDefault("JANITOR_INTERVAL", 10*time.Minute),
		MediaHandlesEnabled: getEnvAsBoolOrDefault("MEDIA_HANDLES_ENABLED", false),
		MediaHandleTTL:      getEnvAsDurationOrDefault("MEDIA_HANDLE_TTL", 3*time.Hour),
		RateLimitPerMinute:  getEnvAsIntOrDefault("RATE_LIMIT_PER_MINUTE", 240),
		FrontendURL:         getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvAsDurationOrDefault accepts Go durations ("90s", "2h").
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
