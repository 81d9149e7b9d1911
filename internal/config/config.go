package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the configuration for the application
type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"exchange.db"`

	Kafka    KafkaConfig    `envPrefix:"KAFKA_"`
	Outbox   OutboxConfig   `envPrefix:"OUTBOX_"`
	Matching MatchingConfig `envPrefix:"MATCHING_"`
}

// KafkaConfig holds the configuration for the order-events topic.
type KafkaConfig struct {
	Brokers []string `env:"BROKERS" envDefault:"localhost:9092"`
	Topic   string   `env:"TOPIC" envDefault:"order-events"`
	GroupID string   `env:"GROUP_ID" envDefault:"order-consumer-group"`
}

// OutboxConfig controls the outbox relay.
type OutboxConfig struct {
	RelayInterval time.Duration `env:"RELAY_INTERVAL" envDefault:"500ms"`
	BatchSize     int           `env:"BATCH_SIZE" envDefault:"100"`
}

// MatchingConfig controls settlement behaviour.
type MatchingConfig struct {
	// RemainderPolicy decides what happens to the unmatched part of a
	// sell event: "refund" credits it back to the seller, "discard"
	// reproduces the legacy drop behaviour.
	RemainderPolicy string `env:"REMAINDER_POLICY" envDefault:"refund"`
}

// Load reads configuration from the environment, with an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
