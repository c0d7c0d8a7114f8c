// Package settings loads the process-wide, env-sourced configuration for
// ambient concerns: listen addresses, log level/format, ingestion
// toggles, and resource-guard thresholds. It is distinct from the
// per-graph configuration text format that graphconfig.Loader parses.
package settings

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Settings holds all process configuration.
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Settings struct {
	// Server basics
	HTTPAddr    string `env:"GRAPHSERVER_HTTP_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"GRAPHSERVER_METRICS_ADDR" envDefault:":9090"`
	ConfigDir   string `env:"GRAPHSERVER_CONFIG_DIR" envDefault:"./data"`
	ConfigPath  string `env:"GRAPHSERVER_CONFIG_PATH" envDefault:""`

	// Agent capacity
	MinAgentCapacity int `env:"GRAPHSERVER_MIN_AGENT_CAPACITY" envDefault:"10"`

	// Resource thresholds (informational only; see SPEC_FULL.md)
	CPULimit    float64 `env:"GRAPHSERVER_CPU_LIMIT" envDefault:"1.0"`
	MemoryLimit int64   `env:"GRAPHSERVER_MEMORY_LIMIT" envDefault:"536870912"` // 512MB

	// HTTP publish-rate guard
	MaxPublishRate int `env:"GRAPHSERVER_MAX_PUBLISH_RATE" envDefault:"200"`

	// Kafka ingestion bridge
	KafkaEnabled       bool   `env:"GRAPHSERVER_KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers       string `env:"GRAPHSERVER_KAFKA_BROKERS" envDefault:"localhost:19092"`
	KafkaConsumerGroup string `env:"GRAPHSERVER_KAFKA_CONSUMER_GROUP" envDefault:"graphserver-group"`
	KafkaTopics        string `env:"GRAPHSERVER_KAFKA_TOPICS" envDefault:""`
	KafkaMaxRate       int    `env:"GRAPHSERVER_KAFKA_MAX_RATE" envDefault:"1000"`

	// NATS ingestion bridge
	NatsEnabled    bool   `env:"GRAPHSERVER_NATS_ENABLED" envDefault:"false"`
	NatsURL        string `env:"GRAPHSERVER_NATS_URL" envDefault:"nats://localhost:4222"`
	NatsSubject    string `env:"GRAPHSERVER_NATS_SUBJECT" envDefault:"graph.input.>"`
	NatsMaxRate    int    `env:"GRAPHSERVER_NATS_MAX_RATE" envDefault:"1000"`

	// Monitoring
	MetricsInterval time.Duration `env:"GRAPHSERVER_METRICS_INTERVAL" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from an optional .env file and environment
// variables (ENV vars take priority over the .env file, which takes
// priority over defaults), then validates the result.
func Load(logger *zerolog.Logger) (*Settings, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	s := &Settings{}
	if err := env.Parse(s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings validation failed: %w", err)
	}
	return s, nil
}

// Validate checks settings for internal consistency.
func (s *Settings) Validate() error {
	if s.HTTPAddr == "" {
		return fmt.Errorf("GRAPHSERVER_HTTP_ADDR is required")
	}
	if s.MinAgentCapacity < 1 {
		return fmt.Errorf("GRAPHSERVER_MIN_AGENT_CAPACITY must be > 0, got %d", s.MinAgentCapacity)
	}
	if s.MaxPublishRate < 1 {
		return fmt.Errorf("GRAPHSERVER_MAX_PUBLISH_RATE must be > 0, got %d", s.MaxPublishRate)
	}
	if s.KafkaMaxRate < 0 {
		return fmt.Errorf("GRAPHSERVER_KAFKA_MAX_RATE must be >= 0, got %d", s.KafkaMaxRate)
	}
	if s.NatsMaxRate < 0 {
		return fmt.Errorf("GRAPHSERVER_NATS_MAX_RATE must be >= 0, got %d", s.NatsMaxRate)
	}
	if s.KafkaEnabled && s.KafkaTopics == "" {
		return fmt.Errorf("GRAPHSERVER_KAFKA_TOPICS is required when GRAPHSERVER_KAFKA_ENABLED=true")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[s.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", s.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "text": true, "pretty": true}
	if !validLogFormats[s.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, text, pretty (got: %s)", s.LogFormat)
	}
	return nil
}

// LogFields logs the loaded settings using structured logging.
func (s *Settings) LogFields(logger zerolog.Logger) {
	logger.Info().
		Str("environment", s.Environment).
		Str("http_addr", s.HTTPAddr).
		Str("metrics_addr", s.MetricsAddr).
		Str("config_dir", s.ConfigDir).
		Int("min_agent_capacity", s.MinAgentCapacity).
		Float64("cpu_limit", s.CPULimit).
		Int64("memory_limit_mb", s.MemoryLimit/(1024*1024)).
		Int("max_publish_rate", s.MaxPublishRate).
		Bool("kafka_enabled", s.KafkaEnabled).
		Bool("nats_enabled", s.NatsEnabled).
		Dur("metrics_interval", s.MetricsInterval).
		Str("log_level", s.LogLevel).
		Str("log_format", s.LogFormat).
		Msg("settings loaded")
}
