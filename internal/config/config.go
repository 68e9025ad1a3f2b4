// Package config reads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port string

	DatabaseDriver string
	DatabaseURL    string

	RedisURL string
	NATSURL  string

	JWTSecret     string
	JWTTTL        time.Duration
	SessionSecret string

	LogLevel string

	HookWorkers   int
	HookQueueSize int

	ReminderSchedule string

	GuestRateLimit float64
	GuestRateBurst int

	AllowedOrigins []string
}

// Load reads .env.local / .env when present and then the process environment.
func Load() *Config {
	if err := godotenv.Load(".env.local"); err != nil {
		_ = godotenv.Load()
	}

	return &Config{
		Env:  getEnv("ENV", "production"),
		Port: getEnv("PORT", "8080"),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		RedisURL: getEnv("REDIS_URL", ""),
		NATSURL:  getEnv("NATS_URL", ""),

		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTTTL:        getDurationEnv("JWT_TTL", 24*time.Hour),
		SessionSecret: getEnv("SESSION_SECRET", "development-session-secret-change-me"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		HookWorkers:   getIntEnv("HOOK_WORKERS", 4),
		HookQueueSize: getIntEnv("HOOK_QUEUE_SIZE", 256),

		ReminderSchedule: getEnv("REMINDER_SCHEDULE", "@every 1m"),

		GuestRateLimit: getFloatEnv("GUEST_RATE_LIMIT", 0.5),
		GuestRateBurst: getIntEnv("GUEST_RATE_BURST", 5),

		AllowedOrigins: getListEnv("ALLOWED_ORIGINS"),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getListEnv(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
