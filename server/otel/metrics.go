// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OpenTelemetry metric instruments for the pipeline.
type Metrics struct {
	meter metric.Meter

	// Counters
	payloadsProduced  metric.Int64Counter
	payloadsRouted    metric.Int64Counter
	payloadsDelivered metric.Int64Counter
	payloadsProcessed metric.Int64Counter
	payloadsDropped   metric.Int64Counter

	// Histograms
	processingDuration metric.Float64Histogram
	routingDuration    metric.Float64Histogram

	// Observables
	queueDepth metric.Int64ObservableGauge
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		meter: otel.Meter("loadflux"),
	}

	var err error

	m.payloadsProduced, err = m.meter.Int64Counter(
		"pipeline.payloads.produced.total",
		metric.WithDescription("Total payloads emitted by the producer"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create payloadsProduced counter: %w", err)
	}

	m.payloadsRouted, err = m.meter.Int64Counter(
		"pipeline.payloads.routed.total",
		metric.WithDescription("Total payloads assigned an endpoint by the router"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create payloadsRouted counter: %w", err)
	}

	m.payloadsDelivered, err = m.meter.Int64Counter(
		"pipeline.payloads.delivered.total",
		metric.WithDescription("Total payloads accepted by a consumer"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create payloadsDelivered counter: %w", err)
	}

	m.payloadsProcessed, err = m.meter.Int64Counter(
		"pipeline.payloads.processed.total",
		metric.WithDescription("Total payloads fully processed by consumers"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create payloadsProcessed counter: %w", err)
	}

	m.payloadsDropped, err = m.meter.Int64Counter(
		"pipeline.payloads.dropped.total",
		metric.WithDescription("Total payloads dropped, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create payloadsDropped counter: %w", err)
	}

	m.processingDuration, err = m.meter.Float64Histogram(
		"pipeline.processing.duration",
		metric.WithDescription("Duration of one consumer processing step in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create processingDuration histogram: %w", err)
	}

	m.routingDuration, err = m.meter.Float64Histogram(
		"pipeline.routing.duration",
		metric.WithDescription("Duration of route selection in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create routingDuration histogram: %w", err)
	}

	return m, nil
}

// RegisterBacklog registers an observable gauge fed by the given
// sampler, which reports current pending-queue depth per consumer.
func (m *Metrics) RegisterBacklog(sample func(ctx context.Context) map[string]int64) error {
	var err error
	m.queueDepth, err = m.meter.Int64ObservableGauge(
		"pipeline.queue.depth",
		metric.WithDescription("Current pending queue depth per consumer"),
	)
	if err != nil {
		return fmt.Errorf("failed to create queueDepth gauge: %w", err)
	}

	_, err = m.meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			for id, depth := range sample(ctx) {
				o.ObserveInt64(m.queueDepth, depth,
					metric.WithAttributes(attribute.String("consumer", id)))
			}
			return nil
		},
		m.queueDepth,
	)
	if err != nil {
		return fmt.Errorf("failed to register backlog callback: %w", err)
	}
	return nil
}

// RecordProduced increments the produced counter.
func (m *Metrics) RecordProduced(ctx context.Context) {
	m.payloadsProduced.Add(ctx, 1)
}

// RecordRouted increments the routed counter for an endpoint and
// records how long route selection took.
func (m *Metrics) RecordRouted(ctx context.Context, endpoint string, seconds float64) {
	m.payloadsRouted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("consumer", endpoint)))
	m.routingDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("consumer", endpoint)))
}

// RecordDelivered increments the delivered counter for an endpoint.
func (m *Metrics) RecordDelivered(ctx context.Context, endpoint string) {
	m.payloadsDelivered.Add(ctx, 1,
		metric.WithAttributes(attribute.String("consumer", endpoint)))
}

// RecordProcessed records a completed processing step and its duration.
func (m *Metrics) RecordProcessed(ctx context.Context, endpoint string, seconds float64) {
	m.payloadsProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("consumer", endpoint)))
	m.processingDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("consumer", endpoint)))
}

// RecordDropped increments the dropped counter with a reason attribute.
func (m *Metrics) RecordDropped(ctx context.Context, reason string) {
	m.payloadsDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}
