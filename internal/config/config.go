// internal/config/config.go
// Loads process configuration from the environment (and an optional .env file).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/erilali/liveactivity/internal/logger"
	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	BrokerAMQP = "amqp"
	BrokerNATS = "nats"
)

type Config struct {
	Broker               string        `env:"BROKER" default:"amqp"`
	RabbitHost           string        `env:"RABBIT_HOST" default:"rabbitmq"`
	RabbitPort           int           `env:"RABBIT_PORT" default:"5672"`
	NatsURL              string        `env:"NATS_URL" default:"nats://127.0.0.1:4222"`
	BrokerReconnectDelay time.Duration `env:"BROKER_RECONNECT_DELAY" default:"0s"`

	ListenAddr    string `env:"LISTEN_ADDR" default:"0.0.0.0:8080"`
	MaxFrameSize  int64  `env:"WS_MAX_FRAME_SIZE" default:"1000"`
	SendQueueSize int    `env:"WS_SEND_QUEUE_SIZE" default:"256"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"console"`
	LogFile   string `env:"LOG_FILE"`
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Broker {
	case BrokerAMQP, BrokerNATS:
	default:
		return fmt.Errorf("BROKER must be %q or %q, got %q", BrokerAMQP, BrokerNATS, cfg.Broker)
	}
	if cfg.RabbitPort < 1 || cfg.RabbitPort > 65535 {
		return fmt.Errorf("RABBIT_PORT must be between 1 and 65535, got %d", cfg.RabbitPort)
	}
	if cfg.BrokerReconnectDelay < 0 {
		return fmt.Errorf("BROKER_RECONNECT_DELAY must not be negative, got %s", cfg.BrokerReconnectDelay)
	}
	if cfg.MaxFrameSize <= 0 {
		return fmt.Errorf("WS_MAX_FRAME_SIZE must be positive, got %d", cfg.MaxFrameSize)
	}
	if cfg.SendQueueSize <= 0 {
		return fmt.Errorf("WS_SEND_QUEUE_SIZE must be positive, got %d", cfg.SendQueueSize)
	}
	switch cfg.LogFormat {
	case logger.FormatConsole, logger.FormatJSON:
	default:
		return fmt.Errorf("LOG_FORMAT must be %q or %q, got %q", logger.FormatConsole, logger.FormatJSON, cfg.LogFormat)
	}
	return nil
}

// AMQPURL is the broker address on the default vhost.
func (c *Config) AMQPURL() string {
	return fmt.Sprintf("amqp://%s:%d/%%2f", c.RabbitHost, c.RabbitPort)
}

// LogConfig derives the logger settings, keeping rotation defaults.
func (c *Config) LogConfig() logger.LogConfig {
	lc := logger.DefaultLogConfig()
	lc.Level = c.LogLevel
	lc.Format = c.LogFormat
	lc.FilePath = c.LogFile
	return lc
}
