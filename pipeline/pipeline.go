// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package pipeline wires the producer, router, and consumer fleet into
// one runnable load-balancing pipeline.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/trace"

	"github.com/absmach/loadflux/capacity"
	"github.com/absmach/loadflux/config"
	"github.com/absmach/loadflux/consumer"
	"github.com/absmach/loadflux/payload"
	"github.com/absmach/loadflux/producer"
	"github.com/absmach/loadflux/ratelimit"
	"github.com/absmach/loadflux/router"
	otelsrv "github.com/absmach/loadflux/server/otel"
)

// ErrRateLimited is returned when a delivery exceeds the endpoint's
// configured rate.
var ErrRateLimited = errors.New("delivery rate limited")

// Drop reasons reported to metrics.
const (
	dropNoRoute     = "no_route"
	dropRateLimited = "rate_limited"
	dropBreakerOpen = "breaker_open"
	dropQueueFull   = "queue_full"
	dropDelivery    = "delivery_failed"
)

// Pipeline owns the producer, router, consumer fleet, and the optional
// guard rails (rate limiter, per-endpoint circuit breakers) between
// routing and delivery.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger

	consumers []*consumer.Consumer
	byID      map[string]*consumer.Consumer

	router   *router.Router
	adaptive *router.Adaptive // nil unless policy is adaptive
	monitor  *capacity.Monitor
	source   *producer.Producer

	limits   *ratelimit.Manager
	breakers map[string]*gobreaker.CircuitBreaker

	stats   *Stats
	metrics *otelsrv.Metrics
	tracer  trace.Tracer

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// New builds a pipeline from configuration. metrics and tracer may be
// nil when telemetry is disabled.
func New(cfg *config.Config, logger *slog.Logger, metrics *otelsrv.Metrics, tracer trace.Tracer) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		cfg:     cfg,
		logger:  logger,
		byID:    make(map[string]*consumer.Consumer, cfg.Consumers.Count),
		stats:   NewStats(),
		metrics: metrics,
		tracer:  tracer,
	}

	policy, err := p.buildPolicy()
	if err != nil {
		return nil, err
	}
	p.router = router.New(policy)

	// Build and register the fleet.
	consumerCfg := consumer.Config{
		ProcessingTime: cfg.Consumers.ProcessingTime,
		MaxPending:     cfg.Consumers.MaxPending,
	}
	for i := 0; i < cfg.Consumers.Count; i++ {
		id := fmt.Sprintf("consumer-%d", i+1)
		c := consumer.New(id, consumerCfg, logger)
		c.SetOnProcessed(p.onProcessed)
		p.consumers = append(p.consumers, c)
		p.byID[id] = c
		p.router.Register(id)
	}
	p.monitor = capacity.NewMonitor(p.consumers)

	p.limits = ratelimit.NewManager(cfg.RateLimit)

	if cfg.Breaker.Enabled {
		p.breakers = make(map[string]*gobreaker.CircuitBreaker, len(p.consumers))
		for _, c := range p.consumers {
			p.breakers[c.ID()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        c.ID(),
				MaxRequests: 1,
				Interval:    0,
				Timeout:     cfg.Breaker.ResetTimeout,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= uint32(cfg.Breaker.FailureThreshold)
				},
				OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
					logger.Warn("delivery circuit breaker state changed",
						slog.String("consumer", name),
						slog.String("from", from.String()),
						slog.String("to", to.String()))
				},
			})
		}
	}

	p.source = producer.New(producer.Config{
		InitialDelay: cfg.Producer.InitialDelay,
		Interval:     cfg.Producer.Interval,
		PayloadSize:  cfg.Producer.PayloadSize,
		Count:        cfg.Producer.Count,
	}, p.dispatch, logger)

	if metrics != nil {
		if err := metrics.RegisterBacklog(p.sampleBacklog); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *Pipeline) buildPolicy() (router.Policy, error) {
	switch p.cfg.Routing.Policy {
	case "round_robin":
		return router.NewRoundRobin(), nil
	case "random":
		return router.NewRandom(), nil
	case "adaptive":
		p.adaptive = router.NewAdaptive(p.cfg.Routing.FloorWeight)
		return p.adaptive, nil
	default:
		return nil, fmt.Errorf("unknown routing policy %q", p.cfg.Routing.Policy)
	}
}

// Start launches the producer and, for adaptive routing, the weight
// refresher. It returns immediately; the pipeline runs until Stop.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)

	if p.adaptive != nil {
		refresher := router.NewRefresher(p.monitor, p.adaptive, p.cfg.Routing.RefreshInterval, p.logger)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			refresher.Run(ctx)
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.source.Run(ctx)
	}()

	p.logger.Info("pipeline started",
		slog.String("policy", p.router.Policy().Name()),
		slog.Int("consumers", len(p.consumers)),
		slog.Duration("interval", p.cfg.Producer.Interval),
		slog.Duration("processing_time", p.cfg.Consumers.ProcessingTime))
}

// Stop halts the producer, refresher, and consumers. Queued payloads
// are abandoned.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()

	for _, c := range p.consumers {
		c.Stop()
	}

	p.logger.Info("pipeline stopped",
		slog.Uint64("produced", p.stats.GetProduced()),
		slog.Uint64("delivered", p.stats.GetDelivered()),
		slog.Uint64("processed", p.stats.GetProcessed()),
		slog.Uint64("dropped", p.stats.GetDropped()))
}

// RemoveConsumer takes an endpoint out of rotation: the router stops
// selecting it, its rate limiter state is released, and the consumer
// is stopped. Its breaker entry is left in place so concurrent
// dispatches never observe a mutated map. Returns false if the
// endpoint is unknown or already removed.
func (p *Pipeline) RemoveConsumer(id string) bool {
	c, ok := p.byID[id]
	if !ok {
		return false
	}
	if !p.router.Deregister(id) {
		return false
	}
	p.limits.OnEndpointRemoved(id)
	c.Stop()

	p.logger.Info("consumer removed from rotation",
		slog.String("consumer", id),
		slog.Int("remaining", len(p.router.Endpoints())))
	return true
}

// dispatch routes one payload and delivers it to the selected consumer:
// route, rate limit, breaker, deliver. Any failure drops the payload.
func (p *Pipeline) dispatch(ctx context.Context, pl *payload.Payload) error {
	if p.tracer != nil {
		var span trace.Span
		ctx, span = p.tracer.Start(ctx, "pipeline.dispatch")
		defer span.End()
	}

	p.stats.IncrementProduced()
	if p.metrics != nil {
		p.metrics.RecordProduced(ctx)
	}

	routeStart := time.Now()
	id, err := p.router.Route(pl)
	if err != nil {
		p.drop(ctx, dropNoRoute)
		return err
	}
	p.stats.IncrementRouted()
	if p.metrics != nil {
		p.metrics.RecordRouted(ctx, id, time.Since(routeStart).Seconds())
	}

	if !p.limits.AllowDelivery(id) {
		p.drop(ctx, dropRateLimited)
		return fmt.Errorf("deliver payload %s to %s: %w", pl.ID, id, ErrRateLimited)
	}

	if err := p.deliver(ctx, id, pl); err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
			p.drop(ctx, dropBreakerOpen)
		case errors.Is(err, consumer.ErrQueueFull):
			p.drop(ctx, dropQueueFull)
		default:
			p.drop(ctx, dropDelivery)
		}
		return err
	}

	p.stats.IncrementDelivered()
	if p.metrics != nil {
		p.metrics.RecordDelivered(ctx, id)
	}
	return nil
}

func (p *Pipeline) deliver(ctx context.Context, id string, pl *payload.Payload) error {
	c, ok := p.byID[id]
	if !ok {
		return fmt.Errorf("deliver payload %s: unknown endpoint %s", pl.ID, id)
	}

	if cb, ok := p.breakers[id]; ok {
		_, err := cb.Execute(func() (any, error) {
			return nil, c.Deliver(ctx, pl)
		})
		return err
	}
	return c.Deliver(ctx, pl)
}

func (p *Pipeline) drop(ctx context.Context, reason string) {
	switch reason {
	case dropNoRoute:
		p.stats.IncrementDroppedNoRoute()
	case dropRateLimited:
		p.stats.IncrementDroppedRateLimited()
	case dropBreakerOpen:
		p.stats.IncrementDroppedBreaker()
	case dropQueueFull:
		p.stats.IncrementDroppedQueueFull()
	case dropDelivery:
		p.stats.IncrementDroppedDelivery()
	}
	if p.metrics != nil {
		p.metrics.RecordDropped(ctx, reason)
	}
}

// onProcessed is the consumer completion callback.
func (p *Pipeline) onProcessed(consumerID string, pl *payload.Payload, elapsed time.Duration) {
	p.stats.IncrementProcessed()
	if p.metrics != nil {
		p.metrics.RecordProcessed(context.Background(), consumerID, elapsed.Seconds())
	}
}

// sampleBacklog reports pending queue depth per consumer for the
// observable gauge.
func (p *Pipeline) sampleBacklog(ctx context.Context) map[string]int64 {
	out := make(map[string]int64, len(p.consumers))
	for _, c := range p.consumers {
		out[c.ID()] = int64(c.QueueLen())
	}
	return out
}

// Stats returns the aggregate counters.
func (p *Pipeline) Stats() *Stats {
	return p.stats
}

// Consumers returns the fleet.
func (p *Pipeline) Consumers() []*consumer.Consumer {
	return p.consumers
}

// Router returns the pipeline's router.
func (p *Pipeline) Router() *router.Router {
	return p.router
}

// Producer returns the payload source.
func (p *Pipeline) Producer() *producer.Producer {
	return p.source
}

// ConsumerStatus describes one consumer for status reporting.
type ConsumerStatus struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	QueueLen  int    `json:"queue_len"`
	Accepted  uint64 `json:"accepted"`
	Processed uint64 `json:"processed"`
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	Policy    string           `json:"policy"`
	Produced  uint64           `json:"produced"`
	Routed    uint64           `json:"routed"`
	Delivered uint64           `json:"delivered"`
	Processed uint64           `json:"processed"`
	Dropped   uint64           `json:"dropped"`
	Uptime    string           `json:"uptime"`
	Consumers []ConsumerStatus `json:"consumers"`
}

// Status reports current pipeline state.
func (p *Pipeline) Status() Status {
	st := Status{
		Policy:    p.router.Policy().Name(),
		Produced:  p.stats.GetProduced(),
		Routed:    p.stats.GetRouted(),
		Delivered: p.stats.GetDelivered(),
		Processed: p.stats.GetProcessed(),
		Dropped:   p.stats.GetDropped(),
		Uptime:    p.stats.GetUptime().String(),
	}
	for _, c := range p.consumers {
		st.Consumers = append(st.Consumers, ConsumerStatus{
			ID:        c.ID(),
			State:     c.State().String(),
			QueueLen:  c.QueueLen(),
			Accepted:  c.Accepted(),
			Processed: c.Processed(),
		})
	}
	return st
}
