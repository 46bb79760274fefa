// Package config loads PromptHub's process configuration from environment
// variables (optionally seeded from a .env file via godotenv), grounded in
// tarsy's pkg/database/config.go getEnvOrDefault pattern and
// cmd/tarsy/main.go's godotenv.Load bootstrap.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig holds pgstore's connection settings.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LLMConfig holds the outbound LLM collaborator's settings.
type LLMConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HealthAddr string
	BatchSize  int
}

// Config is PromptHub's full process configuration.
type Config struct {
	HTTPPort        string
	GinMode         string
	APIPrefix       string
	AuthToken       string // bearer token required on every API-prefix request when non-empty
	CORSOrigins     []string
	DefaultPageSize int
	Database        DatabaseConfig
	LLM             LLMConfig
}

// Load reads every setting from the environment, falling back to a
// sensible default (API prefix "/api/v1", default pagination, etc.) where
// one exists.
func Load() (Config, error) {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	maxOpen, _ := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	maxIdle, _ := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "10"))
	connMaxLifetime, err := time.ParseDuration(getEnv("DB_CONN_MAX_LIFETIME", "1h"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}
	connMaxIdleTime, err := time.ParseDuration(getEnv("DB_CONN_MAX_IDLE_TIME", "15m"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_CONN_MAX_IDLE_TIME: %w", err)
	}

	llmTimeout, err := time.ParseDuration(getEnv("LLM_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid LLM_TIMEOUT: %w", err)
	}
	batchSize, _ := strconv.Atoi(getEnv("LLM_BATCH_SIZE", "3"))
	defaultPageSize, _ := strconv.Atoi(getEnv("DEFAULT_PAGE_SIZE", "20"))

	cfg := Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		GinMode:         getEnv("GIN_MODE", "debug"),
		APIPrefix:       getEnv("API_PREFIX", "/api/v1"),
		AuthToken:       os.Getenv("AUTH_TOKEN"),
		CORSOrigins:     splitCSV(getEnv("CORS_ORIGINS", "*")),
		DefaultPageSize: defaultPageSize,
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            dbPort,
			User:            getEnv("DB_USER", "prompthub"),
			Password:        os.Getenv("DB_PASSWORD"),
			Database:        getEnv("DB_NAME", "prompthub"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    maxOpen,
			MaxIdleConns:    maxIdle,
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
		},
		LLM: LLMConfig{
			BaseURL:    getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:     os.Getenv("LLM_API_KEY"),
			Model:      getEnv("LLM_MODEL", "gpt-4o-mini"),
			Timeout:    llmTimeout,
			HealthAddr: os.Getenv("LLM_HEALTH_ADDR"),
			BatchSize:  batchSize,
		},
	}

	if err := cfg.Database.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c DatabaseConfig) validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("DB_MAX_IDLE_CONNS (%d) cannot exceed DB_MAX_OPEN_CONNS (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be at least 1")
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("DB_MAX_IDLE_CONNS cannot be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
