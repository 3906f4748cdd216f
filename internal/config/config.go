// Package config loads process environment into a typed struct, the way every
// creditcore entrypoint bootstraps itself.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every connection string and tunable read from the process environment.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"creditcore"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL string `env:"DATABASE_URL,required"`

	BrokerURL      string `env:"BROKER_URL"`
	BrokerHostname string `env:"BROKER_HOSTNAME"`
	BrokerUsername string `env:"BROKER_USERNAME"`
	BrokerPassword string `env:"BROKER_PASSWORD"`
	BrokerPort     string `env:"BROKER_PORT" envDefault:"5672"`
	BrokerProtocol string `env:"BROKER_PROTOCOL" envDefault:"amqp"`

	RedisURL string `env:"REDIS_URL"`

	FrontendURL string `env:"FRONTEND_URL"`

	ExpirySchedulerInterval   time.Duration `env:"EXPIRY_SCHEDULER_INTERVAL_SECONDS" envDefault:"60s"`
	ConsumerIdempotencyWindow int           `env:"CONSUMER_IDEMPOTENCY_WINDOW_SIZE" envDefault:"10000"`
	PublishConfirmTimeout     time.Duration `env:"PUBLISH_CONFIRM_TIMEOUT_SECONDS" envDefault:"10s"`
	UnitOfWorkTimeout         time.Duration `env:"UNIT_TIMEOUT_SECONDS" envDefault:"30s"`
}

// Load reads .env (if present, ignored if not found) and then the process environment into Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// AMQPAddress builds the broker dial string from either BrokerURL directly or the
// discrete host/user/pass/port/protocol fields, matching the broker's connection contract.
func (c *Config) AMQPAddress() string {
	if c.BrokerURL != "" {
		return c.BrokerURL
	}

	return c.BrokerProtocol + "://" + c.BrokerUsername + ":" + c.BrokerPassword + "@" + c.BrokerHostname + ":" + c.BrokerPort + "/"
}
