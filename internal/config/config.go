package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	HTTPPort       int
	StorageBackend string
	LogLevel       string

	DBConfig struct {
		Host            string
		Port            int
		User            string
		Password        string
		Name            string
		SSLMode         string
		MaxOpenConns    int
		ConnMaxLifetime time.Duration
	}
	MigrationsPath string

	KafkaEnabled           bool
	KafkaBrokerURL         string
	KafkaLedgerEventsTopic string
	KafkaTopicPartitions   int

	OutboxPollInterval time.Duration
	OutboxPollTimeout  time.Duration
	OutboxBatchSize    int

	LedgerMaxRetries     int
	LedgerRetryBackoff   time.Duration
	LedgerRecordRejected bool

	JWTSecret string
	JWTTTL    time.Duration

	CORSAllowedOrigins []string
}

// LoadConfig reads the configuration from the environment. A .env file in the
// working directory is loaded first when present and never overrides variables
// that are already set.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}

	cfg.HTTPPort = getEnvAsInt("HTTP_PORT", 8080)
	cfg.StorageBackend = strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", BackendPostgres))
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DBConfig.Host = getEnvOrDefault("BANKING_DB_HOST", "localhost")
	cfg.DBConfig.Port = getEnvAsInt("BANKING_DB_PORT", 5432)
	cfg.DBConfig.User = getEnvOrDefault("BANKING_DB_USER", "user")
	cfg.DBConfig.Password = getEnvOrDefault("BANKING_DB_PASSWORD", "password")
	cfg.DBConfig.Name = getEnvOrDefault("BANKING_DB_NAME", "banking_db")
	cfg.DBConfig.SSLMode = getEnvOrDefault("BANKING_DB_SSLMODE", "disable")
	cfg.DBConfig.MaxOpenConns = getEnvAsInt("BANKING_DB_MAX_OPEN_CONNS", 20)
	cfg.DBConfig.ConnMaxLifetime = getEnvAsDuration("BANKING_DB_CONN_MAX_LIFETIME", 30*time.Minute)
	cfg.MigrationsPath = getEnvOrDefault("MIGRATIONS_PATH", "file:///app/migrations")

	cfg.KafkaEnabled = getEnvAsBool("KAFKA_ENABLED", false)
	cfg.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaLedgerEventsTopic = getEnvOrDefault("KAFKA_LEDGER_EVENTS_TOPIC", "ledger_transactions")
	cfg.KafkaTopicPartitions = getEnvAsInt("KAFKA_TOPIC_PARTITIONS", 3)

	cfg.OutboxPollInterval = getEnvAsDuration("OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.OutboxPollTimeout = getEnvAsDuration("OUTBOX_POLL_TIMEOUT", 500*time.Millisecond)
	cfg.OutboxBatchSize = getEnvAsInt("OUTBOX_BATCH_SIZE", 10)

	cfg.LedgerMaxRetries = getEnvAsInt("LEDGER_MAX_RETRIES", 5)
	cfg.LedgerRetryBackoff = getEnvAsDuration("LEDGER_RETRY_BACKOFF", 2*time.Millisecond)
	cfg.LedgerRecordRejected = getEnvAsBool("LEDGER_RECORD_REJECTED", true)

	cfg.JWTSecret = getEnvOrDefault("JWT_SECRET", "")
	cfg.JWTTTL = getEnvAsDuration("JWT_TTL", 1*time.Hour)

	cfg.CORSAllowedOrigins = getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"})

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendPostgres:
		if c.JWTSecret == "" {
			return errors.New("JWT_SECRET must be set when STORAGE_BACKEND is postgres")
		}
	case BackendMemory:
		if c.JWTSecret == "" {
			c.JWTSecret = "insecure-development-secret"
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q, expected %q or %q", c.StorageBackend, BackendPostgres, BackendMemory)
	}
	if c.KafkaEnabled && c.KafkaLedgerEventsTopic == "" {
		return errors.New("KAFKA_LEDGER_EVENTS_TOPIC must be set when KAFKA_ENABLED is true")
	}
	if c.LedgerMaxRetries < 0 {
		return fmt.Errorf("LEDGER_MAX_RETRIES must not be negative, got %d", c.LedgerMaxRetries)
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

// LedgerEventsTopic is the outbox topic, empty when Kafka is disabled.
func (c *Config) LedgerEventsTopic() string {
	if !c.KafkaEnabled {
		return ""
	}
	return c.KafkaLedgerEventsTopic
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnvOrDefault(key, strconv.FormatBool(defaultValue))
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
