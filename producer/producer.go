// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package producer implements the timer-driven payload source.
package producer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/absmach/loadflux/payload"
)

// Dispatch routes and delivers one payload. Implemented by the pipeline
// as route-then-deliver; errors mean the payload was dropped.
type Dispatch func(ctx context.Context, p *payload.Payload) error

// Config holds producer settings.
type Config struct {
	// InitialDelay before the first emission.
	InitialDelay time.Duration

	// Interval between emissions.
	Interval time.Duration

	// PayloadSize in bytes for each emitted payload.
	PayloadSize int

	// Count limits total emissions. 0 means run until stopped.
	Count uint64
}

// Producer emits one fixed-size payload per tick, fire-and-forget.
// It never blocks waiting for a consumer and has no feedback channel:
// a dispatch failure is counted and logged, never retried.
type Producer struct {
	cfg      Config
	dispatch Dispatch
	logger   *slog.Logger

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// New creates a producer.
func New(cfg Config, dispatch Dispatch, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Producer{
		cfg:      cfg,
		dispatch: dispatch,
		logger:   logger,
	}
}

// Run emits payloads until the context is cancelled or the configured
// count is reached.
func (p *Producer) Run(ctx context.Context) {
	if p.cfg.InitialDelay > 0 {
		delay := time.NewTimer(p.cfg.InitialDelay)
		select {
		case <-ctx.Done():
			delay.Stop()
			return
		case <-delay.C:
		}
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// First emission fires right after the initial delay, not one
	// interval later.
	p.tick(ctx)
	if p.done() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
			if p.done() {
				return
			}
		}
	}
}

// tick constructs one payload and dispatches it.
func (p *Producer) tick(ctx context.Context) {
	pl := payload.New(p.cfg.PayloadSize)

	if err := p.dispatch(ctx, pl); err != nil {
		p.dropped.Add(1)
		p.logger.Warn("payload dropped", "payload", pl.ID, "error", err)
		return
	}
	p.sent.Add(1)
}

func (p *Producer) done() bool {
	return p.cfg.Count > 0 && p.sent.Load()+p.dropped.Load() >= p.cfg.Count
}

// Sent returns the number of successfully dispatched payloads.
func (p *Producer) Sent() uint64 {
	return p.sent.Load()
}

// Dropped returns the number of payloads whose dispatch failed.
func (p *Producer) Dropped() uint64 {
	return p.dropped.Load()
}
