package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the gateway
type Config struct {
	// Server
	Port string
	Env  string

	// Persistence
	DatabaseURL string
	RedisURL    string

	// Generation backend
	GenerationBaseURL   string
	PollIntervalSeconds int
	MaxPollAttempts     int

	// Supporting AI backend
	GeminiModel  string
	GeminiAPIKey string
	ServerAIKeys []string

	// Rate Limiting
	DefaultRateLimit int

	// Caching
	CacheTTLSeconds int
	CacheEnabled    bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		GenerationBaseURL:   getEnv("GENERATION_BASE_URL", "https://api.wavespeed.ai/api/v3"),
		PollIntervalSeconds: getEnvInt("POLL_INTERVAL_SECONDS", 3),
		MaxPollAttempts:     getEnvInt("MAX_POLL_ATTEMPTS", 120),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		ServerAIKeys:        getEnvList("SERVER_AI_KEYS"),
		DefaultRateLimit:    getEnvInt("DEFAULT_RATE_LIMIT", 100),
		CacheTTLSeconds:     getEnvInt("CACHE_TTL_SECONDS", 3600),
		CacheEnabled:        getEnvBool("CACHE_ENABLED", true),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
