// Package config содержит логику чтения конфигурации портала поставщика.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры процесса. Учётные данные магазинов сюда не входят:
// они хранятся в профилях пользователей.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	JWTSecret   string `env:"JWT_SECRET"`

	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"3m"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"20s"`
	StoreRateLimit    float64       `env:"STORE_RATE_LIMIT" envDefault:"5"`
	StoreRateBurst    int           `env:"STORE_RATE_BURST" envDefault:"10"`
	LowStockThreshold int           `env:"LOW_STOCK_THRESHOLD" envDefault:"5"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	TrackingAPIURL string `env:"TRACKING_API_URL"`
	TrackingAPIKey string `env:"TRACKING_API_KEY"`

	S3Bucket   string `env:"S3_BUCKET"`
	S3Region   string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint string `env:"S3_ENDPOINT"`
	S3Prefix   string `env:"S3_PREFIX" envDefault:"documents"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envJWTSecret := cfg.JWTSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.JWTSecret, "s", "", "secret for verifying auth tokens")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envJWTSecret != "" {
		cfg.JWTSecret = envJWTSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive, got %s", cfg.PollInterval)
	}
	if cfg.StoreRateLimit <= 0 {
		return nil, fmt.Errorf("STORE_RATE_LIMIT must be positive, got %v", cfg.StoreRateLimit)
	}

	return cfg, nil
}
