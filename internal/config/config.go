package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	AllowedOrigin string
	// OpenAI
	OpenAIAPIKey string
	Model        string
	// Database: when DatabaseURL is set, PostgreSQL is used; otherwise SQLite.
	DatabaseURL string
	SQLitePath  string
	// Intent classification
	IntentPromptFile string
	ClassifyTimeout  time.Duration
	// Upper bound on steps executed in a single traversal pass. Guards
	// against flows that chain message steps in a cycle with no wait step.
	MaxStepsPerPass int
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Port:             getEnvDefault("PORT", "7070"),
		AllowedOrigin:    getEnvDefault("ALLOWED_ORIGIN", "*"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		Model:            getEnvDefault("OPENAI_MODEL", "gpt-4o-mini"),
		DatabaseURL:      os.Getenv("DB_URL"),
		SQLitePath:       getEnvDefault("SQLITE_PATH", "data/flow_chats.db"),
		IntentPromptFile: os.Getenv("INTENT_PROMPT_FILE"),
		ClassifyTimeout:  time.Duration(getEnvIntDefault("CLASSIFY_TIMEOUT_SECONDS", 10)) * time.Second,
		MaxStepsPerPass:  getEnvIntDefault("MAX_STEPS_PER_PASS", 100),
	}
	if cfg.OpenAIAPIKey == "" {
		slog.Warn("OPENAI_API_KEY is not set; intent classification calls will fail until provided")
	}
	return cfg
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		slog.Warn("invalid integer env value, using default", "key", key, "value", v, "default", def)
	}
	return def
}
