// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/absmach/loadflux/ratelimit"
)

// Config holds all configuration for the load-balancing pipeline.
type Config struct {
	Producer  ProducerConfig   `yaml:"producer"`
	Consumers ConsumersConfig  `yaml:"consumers"`
	Routing   RoutingConfig    `yaml:"routing"`
	RateLimit ratelimit.Config `yaml:"rate_limit"`
	Breaker   BreakerConfig    `yaml:"breaker"`
	Server    ServerConfig     `yaml:"server"`
	Log       LogConfig        `yaml:"log"`
}

// ProducerConfig holds the payload source settings.
type ProducerConfig struct {
	// InitialDelay before the first emission.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// Interval between emissions.
	Interval time.Duration `yaml:"interval"`

	// PayloadSize in bytes.
	PayloadSize int `yaml:"payload_size"`

	// Count limits total emissions. 0 means run until stopped.
	Count uint64 `yaml:"count"`
}

// ConsumersConfig holds the consumer fleet settings.
type ConsumersConfig struct {
	// Count of consumer instances.
	Count int `yaml:"count"`

	// ProcessingTime simulated per payload.
	ProcessingTime time.Duration `yaml:"processing_time"`

	// MaxPending bounds each consumer's backlog. 0 means unbounded.
	MaxPending int `yaml:"max_pending"`
}

// RoutingConfig holds routing policy settings.
type RoutingConfig struct {
	// Policy is one of: round_robin, random, adaptive.
	Policy string `yaml:"policy"`

	// RefreshInterval between capacity weight refreshes (adaptive only).
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// FloorWeight for endpoints missing from the weight snapshot.
	FloorWeight float64 `yaml:"floor_weight"`
}

// BreakerConfig holds per-endpoint delivery circuit breaker settings.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// ServerConfig holds the health server and telemetry settings.
type ServerConfig struct {
	HealthAddr      string        `yaml:"health_addr"`
	HealthEnabled   bool          `yaml:"health_enabled"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MetricsAddr     string        `yaml:"metrics_addr"` // OTLP endpoint
	MetricsEnabled  bool          `yaml:"metrics_enabled"`

	// OpenTelemetry configuration
	OtelServiceName     string  `yaml:"otel_service_name"`
	OtelServiceVersion  string  `yaml:"otel_service_version"`
	OtelMetricsEnabled  bool    `yaml:"otel_metrics_enabled"`
	OtelTracesEnabled   bool    `yaml:"otel_traces_enabled"`
	OtelTraceSampleRate float64 `yaml:"otel_trace_sample_rate"` // 0.0 to 1.0
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns a configuration with sensible defaults: a producer
// outpacing a small fleet, so naive policies visibly grow backlogs.
func Default() *Config {
	return &Config{
		Producer: ProducerConfig{
			InitialDelay: time.Second,
			Interval:     100 * time.Millisecond,
			PayloadSize:  1024,
			Count:        0,
		},
		Consumers: ConsumersConfig{
			Count:          3,
			ProcessingTime: time.Second,
			MaxPending:     0,
		},
		Routing: RoutingConfig{
			Policy:          "round_robin",
			RefreshInterval: time.Second,
			FloorWeight:     0.05,
		},
		RateLimit: ratelimit.DefaultConfig(),
		Breaker: BreakerConfig{
			Enabled:          false,
			FailureThreshold: 5,
			ResetTimeout:     60 * time.Second,
		},
		Server: ServerConfig{
			HealthAddr:      ":8081",
			HealthEnabled:   true,
			ShutdownTimeout: 30 * time.Second,
			MetricsAddr:     "localhost:4317",
			MetricsEnabled:  false,

			OtelServiceName:     "loadflux",
			OtelServiceVersion:  "1.0.0",
			OtelMetricsEnabled:  true,
			OtelTracesEnabled:   false,
			OtelTraceSampleRate: 0.1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
// If the file doesn't exist, returns default configuration.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Producer.Interval <= 0 {
		return fmt.Errorf("producer.interval must be positive")
	}
	if c.Producer.InitialDelay < 0 {
		return fmt.Errorf("producer.initial_delay cannot be negative")
	}
	if c.Producer.PayloadSize < 0 {
		return fmt.Errorf("producer.payload_size cannot be negative")
	}

	if c.Consumers.Count < 1 {
		return fmt.Errorf("consumers.count must be at least 1")
	}
	if c.Consumers.ProcessingTime <= 0 {
		return fmt.Errorf("consumers.processing_time must be positive")
	}
	if c.Consumers.MaxPending < 0 {
		return fmt.Errorf("consumers.max_pending cannot be negative")
	}

	validPolicies := map[string]bool{"round_robin": true, "random": true, "adaptive": true}
	if !validPolicies[c.Routing.Policy] {
		return fmt.Errorf("routing.policy must be one of: round_robin, random, adaptive")
	}
	if c.Routing.Policy == "adaptive" {
		if c.Routing.RefreshInterval <= 0 {
			return fmt.Errorf("routing.refresh_interval must be positive for adaptive routing")
		}
		if c.Routing.FloorWeight <= 0 {
			return fmt.Errorf("routing.floor_weight must be positive for adaptive routing")
		}
	}

	if c.Breaker.Enabled {
		if c.Breaker.FailureThreshold < 1 {
			return fmt.Errorf("breaker.failure_threshold must be at least 1")
		}
		if c.Breaker.ResetTimeout < time.Second {
			return fmt.Errorf("breaker.reset_timeout must be at least 1 second")
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.Delivery.Enabled {
		if c.RateLimit.Delivery.Rate <= 0 {
			return fmt.Errorf("rate_limit.delivery.rate must be positive")
		}
		if c.RateLimit.Delivery.Burst < 1 {
			return fmt.Errorf("rate_limit.delivery.burst must be at least 1")
		}
	}

	if c.Server.HealthEnabled && c.Server.HealthAddr == "" {
		return fmt.Errorf("server.health_addr required when health server is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json")
	}

	// OpenTelemetry validation (only if metrics enabled)
	if c.Server.MetricsEnabled {
		if c.Server.OtelServiceName == "" {
			return fmt.Errorf("server.otel_service_name cannot be empty when metrics enabled")
		}
		if c.Server.OtelTraceSampleRate < 0.0 || c.Server.OtelTraceSampleRate > 1.0 {
			return fmt.Errorf("server.otel_trace_sample_rate must be between 0.0 and 1.0")
		}
	}

	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
