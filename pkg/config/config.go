package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds secrets and runtime settings read from the environment.
type Config struct {
	Port       string
	JWTSecret  string
	AppConfig  string
	StylesFile string

	DBDriver    string
	DatabaseURL string

	GoogleClientID           string
	GoogleClientSecret       string
	GoogleProjectID          string
	GooglePubSubTopic        string
	GooglePubSubSubscription string
	GoogleCredentials        string

	LLMProvider         string
	LLMBaseURL          string
	LLMAPIKey           string
	LLMFallbackProvider string
	LLMFallbackBaseURL  string
	LLMFallbackAPIKey   string
	LLMFallbackModel    string
	ClassifyModel       string
	DraftModel          string

	WorkerConcurrency int
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:       getEnv("PORT", "8080"),
		JWTSecret:  getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		AppConfig:  getEnv("APP_CONFIG", "config/app.yml"),
		StylesFile: getEnv("STYLES_FILE", "config/communication_styles.yml"),

		DBDriver:    getEnv("DB_DRIVER", "sqlite"),
		DatabaseURL: getEnv("DATABASE_URL", "data/inbox.db"),

		GoogleClientID:           getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:       getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleProjectID:          getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:        getEnv("GOOGLE_PUBSUB_TOPIC", ""),
		GooglePubSubSubscription: getEnv("GOOGLE_PUBSUB_SUBSCRIPTION", ""),
		GoogleCredentials:        getEnv("GOOGLE_CREDENTIALS", ""),

		LLMProvider:         getEnv("LLM_PROVIDER", "openai"),
		LLMBaseURL:          getEnv("LLM_BASE_URL", ""),
		LLMAPIKey:           getEnv("LLM_API_KEY", ""),
		LLMFallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
		LLMFallbackBaseURL:  getEnv("LLM_FALLBACK_BASE_URL", ""),
		LLMFallbackAPIKey:   getEnv("LLM_FALLBACK_API_KEY", ""),
		LLMFallbackModel:    getEnv("LLM_FALLBACK_MODEL", ""),
		ClassifyModel:       getEnv("CLASSIFY_MODEL", ""),
		DraftModel:          getEnv("DRAFT_MODEL", ""),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 0),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
