package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Config holds all configuration for the application.
type Config struct {
	AppEnv   string
	HTTPAddr string

	DBDriver string
	DBPath   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NATSURL       string
	StreamName    string
	Subject       string
	DLQSubject    string
	AlertSubject  string
	ConsumerName  string
	AckWait       time.Duration
	MaxDeliveries int

	Workers       int
	FetchBatch    int
	EventTimeout  time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration

	EMAAlpha       float64
	SeedAverage    float64
	ScoreDomainMin float64
	ScoreDomainMax float64

	AlertThreshold float64
	AlertCooldown  time.Duration

	IdempotencyLease     time.Duration
	IdempotencyRetention time.Duration

	LexiconPath       string
	NegationWindow    int
	NegationDampening float64
	NeutralRatio      float64
	FuzzyMaxDistance  int
	FuzzyMinLength    int
	ScorerMin         float64
	ScorerMax         float64
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() *Config {
	return &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DBDriver: getEnv("DB_DRIVER", "sqlite3"),
		DBPath:   getEnv("DB_PATH", "./data/feedback.db"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		NATSURL:       getEnv("NATS_URL", "nats://localhost:4222"),
		StreamName:    getEnv("NATS_STREAM", "FEEDBACK"),
		Subject:       getEnv("NATS_SUBJECT", "feedback.events"),
		DLQSubject:    getEnv("NATS_DLQ_SUBJECT", "feedback.dlq"),
		AlertSubject:  getEnv("NATS_ALERT_SUBJECT", "feedback.alerts"),
		ConsumerName:  getEnv("NATS_CONSUMER", "sentiment-processor"),
		AckWait:       getEnvDuration("NATS_ACK_WAIT", 60*time.Second),
		MaxDeliveries: getEnvInt("NATS_MAX_DELIVERIES", 5),

		Workers:       getEnvInt("WORKER_COUNT", 4),
		FetchBatch:    getEnvInt("FETCH_BATCH", 16),
		EventTimeout:  getEnvDuration("EVENT_TIMEOUT", 30*time.Second),
		RetryAttempts: getEnvInt("RETRY_ATTEMPTS", 3),
		RetryBackoff:  getEnvDuration("RETRY_BACKOFF", 200*time.Millisecond),

		EMAAlpha:       getEnvFloat("EMA_ALPHA", 0.1),
		SeedAverage:    getEnvFloat("SEED_AVERAGE", 3.0),
		ScoreDomainMin: getEnvFloat("SCORE_DOMAIN_MIN", 0.0),
		ScoreDomainMax: getEnvFloat("SCORE_DOMAIN_MAX", 5.0),

		AlertThreshold: getEnvFloat("ALERT_THRESHOLD", 2.5),
		AlertCooldown:  getEnvDuration("ALERT_COOLDOWN", 24*time.Hour),

		IdempotencyLease:     getEnvDuration("IDEMPOTENCY_LEASE", 5*time.Minute),
		IdempotencyRetention: getEnvDuration("IDEMPOTENCY_RETENTION", 48*time.Hour),

		LexiconPath:       getEnv("LEXICON_PATH", ""),
		NegationWindow:    getEnvInt("NEGATION_WINDOW", 2),
		NegationDampening: getEnvFloat("NEGATION_DAMPENING", 0.5),
		NeutralRatio:      getEnvFloat("NEUTRAL_RATIO", 0.4),
		FuzzyMaxDistance:  getEnvInt("FUZZY_MAX_DISTANCE", 1),
		FuzzyMinLength:    getEnvInt("FUZZY_MIN_LENGTH", 4),
		ScorerMin:         getEnvFloat("SCORER_MIN", -5.0),
		ScorerMax:         getEnvFloat("SCORER_MAX", 5.0),
	}
}

// Validate rejects configurations that would silently corrupt scoring.
func (c *Config) Validate() error {
	if c.EMAAlpha <= 0 || c.EMAAlpha > 1 {
		return fmt.Errorf("EMA_ALPHA must be in (0, 1], got %v", c.EMAAlpha)
	}
	if c.ScoreDomainMin >= c.ScoreDomainMax {
		return fmt.Errorf("score domain [%v, %v] is empty", c.ScoreDomainMin, c.ScoreDomainMax)
	}
	if c.SeedAverage < c.ScoreDomainMin || c.SeedAverage > c.ScoreDomainMax {
		return fmt.Errorf("SEED_AVERAGE %v outside score domain [%v, %v]", c.SeedAverage, c.ScoreDomainMin, c.ScoreDomainMax)
	}
	if c.AlertThreshold < c.ScoreDomainMin || c.AlertThreshold > c.ScoreDomainMax {
		return fmt.Errorf("ALERT_THRESHOLD %v outside score domain [%v, %v]", c.AlertThreshold, c.ScoreDomainMin, c.ScoreDomainMax)
	}
	if c.ScorerMin >= c.ScorerMax {
		return fmt.Errorf("scorer range [%v, %v] is empty", c.ScorerMin, c.ScorerMax)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive, got %d", c.Workers)
	}
	if c.IdempotencyRetention <= c.IdempotencyLease {
		return fmt.Errorf("IDEMPOTENCY_RETENTION %v must exceed IDEMPOTENCY_LEASE %v", c.IdempotencyRetention, c.IdempotencyLease)
	}
	return nil
}

// NewLogger creates a new Zap logger based on the config.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	if cfg.AppEnv == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
