package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	HTTPPort           int      `env:"HTTP_PORT"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
	Storage            string   `env:"LEDGER_STORAGE"`
	LogLevel           string   `env:"LOG_LEVEL"`
	NodeID             int64    `env:"NODE_ID"`

	DBConfig struct {
		Host     string `env:"LEDGER_DB_HOST"`
		Port     int    `env:"LEDGER_DB_PORT"`
		User     string `env:"LEDGER_DB_USER"`
		Password string `env:"LEDGER_DB_PASSWORD"`
		Name     string `env:"LEDGER_DB_NAME"`
		SSLMode  string `env:"LEDGER_DB_SSLMODE"`
	}
	MigrationsPath string `env:"MIGRATIONS_PATH"`

	KafkaEnabled               bool   `env:"KAFKA_ENABLED"`
	KafkaBrokerURL             string `env:"KAFKA_BROKER_URL"`
	KafkaLedgerEventsTopic     string `env:"KAFKA_LEDGER_EVENTS_TOPIC"`
	KafkaAccountLifecycleTopic string `env:"KAFKA_ACCOUNT_LIFECYCLE_TOPIC"`
	KafkaConsumerGroup         string `env:"KAFKA_CONSUMER_GROUP"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL"`
	OutboxPollTimeout  time.Duration `env:"OUTBOX_POLL_TIMEOUT"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE"`

	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB"`
	TransferCacheTTL time.Duration `env:"TRANSFER_CACHE_TTL"`

	AccountMaxRetries  int `env:"ACCOUNT_MAX_RETRIES"`
	TransferMaxRetries int `env:"TRANSFER_MAX_RETRIES"`

	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL"`
	ReconcileStaleAfter time.Duration `env:"RECONCILE_STALE_AFTER"`
}

// LoadConfig reads the environment, after loading ENV_FILE (default .env) if it
// exists. Variables already set in the environment win over the file.
func LoadConfig() (*Config, error) {
	envFile := getEnvOrDefault("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := &Config{}
	env := &envReader{}

	cfg.HTTPPort = env.getEnvAsInt("HTTP_PORT", 8080)
	cfg.CORSAllowedOrigins = strings.Split(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"), ",")
	cfg.Storage = strings.ToLower(getEnvOrDefault("LEDGER_STORAGE", StoragePostgres))
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.NodeID = int64(env.getEnvAsInt("NODE_ID", 1))

	cfg.DBConfig.Host = getEnvOrDefault("LEDGER_DB_HOST", "localhost")
	cfg.DBConfig.Port = env.getEnvAsInt("LEDGER_DB_PORT", 5432)
	cfg.DBConfig.User = getEnvOrDefault("LEDGER_DB_USER", "user")
	cfg.DBConfig.Password = getEnvOrDefault("LEDGER_DB_PASSWORD", "password")
	cfg.DBConfig.Name = getEnvOrDefault("LEDGER_DB_NAME", "ledger_db")
	cfg.DBConfig.SSLMode = getEnvOrDefault("LEDGER_DB_SSLMODE", "disable")
	cfg.MigrationsPath = getEnvOrDefault("MIGRATIONS_PATH", "file:///app/migrations")

	cfg.KafkaEnabled = env.getEnvAsBool("KAFKA_ENABLED", true)
	cfg.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaLedgerEventsTopic = getEnvOrDefault("KAFKA_LEDGER_EVENTS_TOPIC", "ledger_events")
	cfg.KafkaAccountLifecycleTopic = getEnvOrDefault("KAFKA_ACCOUNT_LIFECYCLE_TOPIC", "account_lifecycle_events")
	cfg.KafkaConsumerGroup = getEnvOrDefault("KAFKA_CONSUMER_GROUP", "ledger-service-group")

	cfg.OutboxPollInterval = env.getEnvAsDuration("OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.OutboxPollTimeout = env.getEnvAsDuration("OUTBOX_POLL_TIMEOUT", 5*time.Second)
	cfg.OutboxBatchSize = env.getEnvAsInt("OUTBOX_BATCH_SIZE", 100)

	cfg.RedisAddr = getEnvOrDefault("REDIS_ADDR", "")
	cfg.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", "")
	cfg.RedisDB = env.getEnvAsInt("REDIS_DB", 0)
	cfg.TransferCacheTTL = env.getEnvAsDuration("TRANSFER_CACHE_TTL", 24*time.Hour)

	cfg.AccountMaxRetries = env.getEnvAsInt("ACCOUNT_MAX_RETRIES", 3)
	cfg.TransferMaxRetries = env.getEnvAsInt("TRANSFER_MAX_RETRIES", 10)

	cfg.ReconcileInterval = env.getEnvAsDuration("RECONCILE_INTERVAL", 30*time.Second)
	cfg.ReconcileStaleAfter = env.getEnvAsDuration("RECONCILE_STALE_AFTER", 5*time.Minute)

	if err := errors.Join(env.errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Storage != StoragePostgres && c.Storage != StorageMemory:
		return fmt.Errorf("LEDGER_STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage)
	case c.AccountMaxRetries < 1:
		return fmt.Errorf("ACCOUNT_MAX_RETRIES must be at least 1, got %d", c.AccountMaxRetries)
	case c.TransferMaxRetries < 1:
		return fmt.Errorf("TRANSFER_MAX_RETRIES must be at least 1, got %d", c.TransferMaxRetries)
	case c.NodeID < 0 || c.NodeID > 1023:
		return fmt.Errorf("NODE_ID must be between 0 and 1023, got %d", c.NodeID)
	case c.OutboxBatchSize < 1:
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be at least 1, got %d", c.OutboxBatchSize)
	case c.OutboxPollInterval <= 0 || c.ReconcileInterval <= 0:
		return errors.New("OUTBOX_POLL_INTERVAL and RECONCILE_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return strings.Split(c.KafkaBrokerURL, ",")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// envReader parses typed variables and collects an error for every value that
// is set but malformed. Empty values count as unset.
type envReader struct {
	errs []error
}

func (r *envReader) getEnvAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be an integer, got %q", key, valueStr))
		return defaultValue
	}
	return value
}

func (r *envReader) getEnvAsBool(key string, defaultValue bool) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a boolean, got %q", key, valueStr))
		return defaultValue
	}
	return value
}

func (r *envReader) getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a duration, got %q", key, valueStr))
		return defaultValue
	}
	return value
}
