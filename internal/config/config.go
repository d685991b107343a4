// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":50051"`

	MySQLDSN      string `env:"MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/storefront?parseTime=true"`
	MySQLMaxOpen  int    `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"50"`
	MySQLMaxIdle  int    `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"25"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"100"`

	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"storefront.events"`

	WorkerCount int `env:"WORKER_COUNT" envDefault:"10"`
	QueueSize   int `env:"QUEUE_SIZE" envDefault:"10000"`

	AdminToken string `env:"ADMIN_TOKEN"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"10"`

	PendingRegistrationTTL time.Duration `env:"PENDING_REGISTRATION_TTL" envDefault:"30m"`
	SweepSchedule          string        `env:"SWEEP_SCHEDULE" envDefault:"@every 1m"`
	BoardCacheTTL          time.Duration `env:"BOARD_CACHE_TTL" envDefault:"30s"`

	Currency string `env:"CURRENCY" envDefault:"USD"`
}

// Load reads an optional .env file and then parses the environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be positive, got %d", c.WorkerCount)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("QUEUE_SIZE must be positive, got %d", c.QueueSize)
	}
	if c.PendingRegistrationTTL <= 0 {
		return fmt.Errorf("PENDING_REGISTRATION_TTL must be positive")
	}
	return nil
}
