package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	// Database
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	// Security
	JWTSecret string

	// Application
	AppEnv   string
	AppPort  string
	LogLevel string

	// Rules
	RulesFile  string
	RulesWatch bool

	// Worker
	WorkerID           string
	WorkerPollInterval time.Duration
	WorkerBatchSize    int
	WorkerConcurrency  int

	// Queue
	QueueStaleLockAge time.Duration
	QueueMaxAttempts  int
	QueueRetryBackoff time.Duration

	// Engine
	RecallGracePeriod   time.Duration
	ServerSpeed         float64
	WorldSize           int
	WaveDefaultJitterMs int64
	WaveMaxMembers      int

	// Rate Limiting
	RateLimitPerAccount int

	// Notifications
	TelegramBotToken string
	TelegramChatID   int64
}

func LoadConfig() (*Config, error) {
	hostname, _ := os.Hostname()

	cfg := &Config{
		DBDriver:   getEnv("DB_DRIVER", DriverPostgres),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "rallypoint"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "rallypoint"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		SQLitePath: getEnv("SQLITE_PATH", "rallypoint.db"),

		JWTSecret: getEnv("JWT_SECRET_KEY", ""),

		AppEnv:   getEnv("APP_ENV", "development"),
		AppPort:  getEnv("APP_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RulesFile:  getEnv("RULES_FILE", ""),
		RulesWatch: getEnvBool("RULES_WATCH", false),

		WorkerID:           getEnv("WORKER_ID", fmt.Sprintf("%s-%d", hostname, os.Getpid())),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", time.Second),
		WorkerBatchSize:    getEnvInt("WORKER_BATCH_SIZE", 50),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),

		QueueStaleLockAge: getEnvDuration("QUEUE_STALE_LOCK_AGE", 5*time.Minute),
		QueueMaxAttempts:  getEnvInt("QUEUE_MAX_ATTEMPTS", 5),
		QueueRetryBackoff: getEnvDuration("QUEUE_RETRY_BACKOFF", 10*time.Second),

		RecallGracePeriod:   getEnvDuration("RECALL_GRACE_PERIOD", 5*time.Minute),
		ServerSpeed:         getEnvFloat("SERVER_SPEED", 1),
		WorldSize:           getEnvInt("WORLD_SIZE", 0),
		WaveDefaultJitterMs: getEnvInt64("WAVE_DEFAULT_JITTER_MS", 1000),
		WaveMaxMembers:      getEnvInt("WAVE_MAX_MEMBERS", 20),

		RateLimitPerAccount: getEnvInt("RATE_LIMIT_PER_ACCOUNT", 30),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
	}

	chatStr := getEnv("TELEGRAM_CHAT_ID", "")
	if chatStr != "" {
		id, err := strconv.ParseInt(chatStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q", DriverPostgres, DriverSQLite)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters")
	}
	if c.WorkerBatchSize < 1 || c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_BATCH_SIZE and WORKER_CONCURRENCY must be positive")
	}
	if c.QueueMaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be positive")
	}
	if c.ServerSpeed <= 0 {
		return fmt.Errorf("SERVER_SPEED must be positive")
	}
	if c.WaveMaxMembers < 1 {
		return fmt.Errorf("WAVE_MAX_MEMBERS must be positive")
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

func (c *Config) ValidateProductionSecurity() error {
	if c.AppEnv != "production" {
		return nil
	}

	if c.DBDriver != DriverPostgres {
		return fmt.Errorf("DB_DRIVER must be 'postgres' in production")
	}
	if c.DBSSLMode != "require" {
		return fmt.Errorf("DB_SSLMODE must be 'require' in production")
	}
	if c.JWTSecret == "your_jwt_secret_minimum_32_chars_here_change_this" {
		return fmt.Errorf("JWT_SECRET_KEY must be changed from default in production")
	}

	return nil
}

func (c *Config) GetDSN() string {
	if c.DBDriver == DriverSQLite {
		return c.SQLitePath
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("30s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
