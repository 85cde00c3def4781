package config

import (
	"os"
	"time"
)

// Settings is the typed configuration for the booking service. Values come
// from an optional config file, with environment variables taking precedence.
type Settings struct {
	// Service
	ServiceName string
	LogLevel    string

	// NATS transport
	NATSURL       string
	SubjectPrefix string

	// Storage
	DBPath        string
	CheckpointURL string
	JournalPath   string
	SessionTTL    time.Duration
	FlushInterval time.Duration

	// Inference
	OpenAIAPIKey string
	OpenAIModel  string
	InferTimeout time.Duration
}

// Load builds Settings from the given config file (empty path skips the
// file) overlaid with environment variables.
func Load(path string) (Settings, error) {
	cfg := New(nil)
	if path != "" {
		loaded, err := FromFile(path)
		if err != nil {
			return Settings{}, err
		}
		cfg = loaded
	}

	s := Settings{
		ServiceName:   getEnv("SERVICE_NAME", cfg.String("service_name", "booklined")),
		LogLevel:      getEnv("LOG_LEVEL", cfg.String("log_level", "info")),
		NATSURL:       getEnv("NATS_URL", cfg.String("nats_url", "nats://localhost:4222")),
		SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", cfg.String("nats_subject_prefix", "bookline")),
		DBPath:        getEnv("DB_PATH", cfg.String("db_path", "./bookline.db")),
		CheckpointURL: getEnv("CHECKPOINT_URL", cfg.String("checkpoint_url", "./sessions.db")),
		JournalPath:   getEnv("JOURNAL_PATH", cfg.String("journal_path", "./journal.db")),
		SessionTTL:    getDurationEnv("SESSION_TTL", cfg.Duration("session_ttl", 24*time.Hour)),
		FlushInterval: getDurationEnv("FLUSH_INTERVAL", cfg.Duration("flush_interval", time.Minute)),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", cfg.String("openai_api_key", "")),
		OpenAIModel:   getEnv("OPENAI_MODEL", cfg.String("openai_model", "gpt-4o-mini")),
		InferTimeout:  getDurationEnv("INFER_TIMEOUT", cfg.Duration("infer_timeout", 30*time.Second)),
	}
	return s, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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
