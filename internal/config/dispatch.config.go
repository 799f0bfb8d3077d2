package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	HTTPAddr     string
	DatabaseURL  string
	RedisAddr    string
	RedisPass    string
	KafkaBrokers []string
	JWTSecret    string

	// Work schedule window (local hours) used by the dispatch gate.
	WorkDayStartHour int
	WorkDayEndHour   int

	// Per-client HTTP request budget.
	RateLimitPerMinute int
	RateLimitBlockMin  int
}

func Load() AppConfig {
	if err := godotenv.Load(); err != nil {
		log.Println("Dispatch: No .env file found, relying on system env vars")
	}
	return AppConfig{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8013"),
		DatabaseURL:      getEnv("DATABASE_URL", "postgres://postgres:postgres@db:5432/dispatch"),
		RedisAddr:        getEnv("REDIS_ADDR", "redis:6379"),
		RedisPass:        getEnv("REDIS_PASS", ""),
		KafkaBrokers:     strings.Split(getEnv("KAFKA_BROKERS", "kafka:9092"), ","),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret"),
		WorkDayStartHour: getEnvInt("WORKDAY_START_HOUR", 8),
		WorkDayEndHour:   getEnvInt("WORKDAY_END_HOUR", 18),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 100),
		RateLimitBlockMin:  getEnvInt("RATE_LIMIT_BLOCK_MINUTES", 10),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
