// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit caps the delivery rate per consumer endpoint.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// EndpointRateLimiter manages per-endpoint token buckets for payload
// delivery.
type EndpointRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewEndpointRateLimiter creates a per-endpoint limiter.
// r is deliveries per second per endpoint, burst is the burst allowance.
func NewEndpointRateLimiter(r float64, burst int) *EndpointRateLimiter {
	return &EndpointRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(r),
		burst:    burst,
	}
}

// Allow checks whether one more delivery to the endpoint is allowed.
func (l *EndpointRateLimiter) Allow(endpointID string) bool {
	l.mu.Lock()
	limiter, exists := l.limiters[endpointID]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[endpointID] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}

// RemoveEndpoint drops the limiter for a deregistered endpoint.
func (l *EndpointRateLimiter) RemoveEndpoint(endpointID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, endpointID)
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled bool `yaml:"enabled"`

	Delivery DeliveryConfig `yaml:"delivery"`
}

// DeliveryConfig holds per-endpoint delivery rate limiting settings.
type DeliveryConfig struct {
	Enabled bool    `yaml:"enabled"`
	Rate    float64 `yaml:"rate"`  // deliveries per second per endpoint
	Burst   int     `yaml:"burst"` // burst allowance
}

// DefaultConfig returns a sensible default configuration. Disabled by
// default: unconstrained delivery is what demonstrates backlog growth
// under naive routing.
func DefaultConfig() Config {
	return Config{
		Enabled: false,
		Delivery: DeliveryConfig{
			Enabled: true,
			Rate:    100,
			Burst:   10,
		},
	}
}

// Manager coordinates the delivery limiter behind enabled flags.
type Manager struct {
	config   Config
	delivery *EndpointRateLimiter
	disabled bool
}

// NewManager creates a rate limit manager.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return &Manager{disabled: true, config: cfg}
	}

	var delivery *EndpointRateLimiter
	if cfg.Delivery.Enabled {
		delivery = NewEndpointRateLimiter(cfg.Delivery.Rate, cfg.Delivery.Burst)
	}

	return &Manager{
		config:   cfg,
		delivery: delivery,
	}
}

// AllowDelivery checks whether a delivery to the given endpoint is
// allowed.
func (m *Manager) AllowDelivery(endpointID string) bool {
	if m.disabled || m.delivery == nil || !m.config.Delivery.Enabled {
		return true
	}
	return m.delivery.Allow(endpointID)
}

// OnEndpointRemoved cleans up limiter state for a removed endpoint.
func (m *Manager) OnEndpointRemoved(endpointID string) {
	if m.disabled || m.delivery == nil {
		return
	}
	m.delivery.RemoveEndpoint(endpointID)
}
