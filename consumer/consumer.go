// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package consumer implements the per-endpoint processing state machine:
// one payload in flight at a time, a FIFO backlog for arrivals while busy,
// and a single completion timer marking the end of each processing step.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/loadflux/payload"
)

// ErrStopped is returned by Deliver after the consumer has been stopped.
var ErrStopped = errors.New("consumer stopped")

// State is the processing state of a consumer.
type State int32

const (
	// Idle means no payload is in flight and the pending queue is empty.
	Idle State = iota
	// Busy means exactly one payload is in flight.
	Busy
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	default:
		return "unknown"
	}
}

// Config holds per-consumer settings.
type Config struct {
	// ProcessingTime is the simulated duration of one processing step.
	ProcessingTime time.Duration

	// MaxPending bounds the pending queue. 0 means unbounded.
	MaxPending int
}

// OnProcessed is invoked after each completed processing step, outside
// the consumer lock. Used by the pipeline for metrics.
type OnProcessed func(consumerID string, p *payload.Payload, elapsed time.Duration)

// Consumer processes one payload at a time. Arrivals while busy are
// appended to the pending queue and drained strictly in arrival order.
// Processing is simulated by a single scheduled timer, never by blocking:
// at most one completion timer is outstanding at any instant.
type Consumer struct {
	id     string
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	current   *payload.Payload
	startedAt time.Time
	timer     *time.Timer
	stopped   bool

	pending *pendingQueue

	accepted  uint64
	processed uint64

	onProcessed OnProcessed
}

// New creates a consumer with the given endpoint identity.
func New(id string, cfg Config, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProcessingTime <= 0 {
		cfg.ProcessingTime = time.Second
	}

	return &Consumer{
		id:      id,
		cfg:     cfg,
		logger:  logger.With("consumer", id),
		state:   Idle,
		pending: newPendingQueue(cfg.MaxPending),
	}
}

// ID returns the consumer's endpoint identity.
func (c *Consumer) ID() string {
	return c.id
}

// SetOnProcessed registers a completion callback.
func (c *Consumer) SetOnProcessed(fn OnProcessed) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProcessed = fn
}

// Deliver hands a payload to the consumer. If the consumer is idle the
// payload begins processing immediately and a completion timer is
// started; if busy, the payload joins the tail of the pending queue.
// Deliver never blocks on processing.
func (c *Consumer) Deliver(ctx context.Context, p *payload.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrStopped
	}

	if c.state == Busy {
		if err := c.pending.enqueue(p); err != nil {
			return err
		}
		c.accepted++
		return nil
	}

	c.accepted++
	c.begin(p)
	return nil
}

// begin starts a processing step for p. Caller must hold c.mu.
func (c *Consumer) begin(p *payload.Payload) {
	c.state = Busy
	c.current = p
	c.startedAt = time.Now()
	c.timer = time.AfterFunc(c.cfg.ProcessingTime, c.complete)
}

// complete handles completion timer expiry: the current payload is
// considered processed and discarded. If the backlog is non-empty the
// head begins processing with a fresh timer; otherwise the consumer
// returns to idle.
func (c *Consumer) complete() {
	c.mu.Lock()

	if c.stopped || c.current == nil {
		c.mu.Unlock()
		return
	}

	done := c.current
	elapsed := time.Since(c.startedAt)
	c.processed++

	// One outstanding timer at most: clear the expired one before any
	// new step arms its own.
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	if next := c.pending.dequeue(); next != nil {
		c.begin(next)
	} else {
		c.state = Idle
		c.current = nil
		c.timer = nil
	}

	fn := c.onProcessed
	c.mu.Unlock()

	if fn != nil {
		fn(c.id, done, elapsed)
	}
}

// Stop halts the consumer. The in-flight payload and the drained
// backlog are abandoned; further deliveries fail with ErrStopped.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.current = nil
	c.state = Idle

	abandoned := c.pending.drain()

	c.logger.Debug("consumer stopped",
		slog.Uint64("accepted", c.accepted),
		slog.Uint64("processed", c.processed),
		slog.Int("abandoned", len(abandoned)))
}

// State returns the current processing state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// QueueLen returns the current pending queue depth.
func (c *Consumer) QueueLen() int {
	return c.pending.len()
}

// Accepted returns the total number of payloads accepted.
func (c *Consumer) Accepted() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accepted
}

// Processed returns the total number of payloads fully processed.
func (c *Consumer) Processed() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processed
}
