package app

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// StorageDriver определяет backend хранилища.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	// RedisAddr включает Redis-дедупликацию webhook-уведомлений.
	RedisAddr  string
	WebhookTTL time.Duration

	KafkaBrokers string
	OutboxTopic  string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	ReaperInterval  time.Duration
	ReaperMaxAge    time.Duration
	ReaperBatchSize int
}

// DefaultConfig возвращает конфигурацию для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		WebhookTTL: 48 * time.Hour,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,

		ReaperInterval:  15 * time.Minute,
		ReaperMaxAge:    time.Hour,
		ReaperBatchSize: 100,
	}
}

// LoadConfig читает конфигурацию из окружения поверх значений по умолчанию.
// Файл .env подхватывается, если существует.
func LoadConfig() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("failed to load .env file")
	}

	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("METRICS_ADDR", cfg.MetricsAddr)

	cfg.StorageDriver = StorageDriver(envString("STORAGE_DRIVER", string(cfg.StorageDriver)))
	cfg.PostgresDSN = envString("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.PostgresAutoMigrate = envBool("POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate)

	cfg.RedisAddr = envString("REDIS_ADDR", cfg.RedisAddr)
	cfg.WebhookTTL = envDuration("WEBHOOK_TTL", cfg.WebhookTTL)

	cfg.KafkaBrokers = envString("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.OutboxTopic = envString("OUTBOX_TOPIC", cfg.OutboxTopic)

	cfg.OutboxPollInterval = envDuration("OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxAttempts = envInt("OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts)
	cfg.OutboxRetryDelay = envDuration("OUTBOX_RETRY_DELAY", cfg.OutboxRetryDelay)

	cfg.ReaperInterval = envDuration("REAPER_INTERVAL", cfg.ReaperInterval)
	cfg.ReaperMaxAge = envDuration("REAPER_MAX_AGE", cfg.ReaperMaxAge)
	cfg.ReaperBatchSize = envInt("REAPER_BATCH_SIZE", cfg.ReaperBatchSize)

	return cfg
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.WithField("key", key).WithError(err).Warn("invalid bool in environment, using default")
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.WithField("key", key).WithError(err).Warn("invalid int in environment, using default")
		return fallback
	}
	return value
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.WithField("key", key).WithError(err).Warn("invalid duration in environment, using default")
		return fallback
	}
	return value
}
