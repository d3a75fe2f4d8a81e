// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"log/slog"
	"time"
)

// WeightSource supplies the current capacity weight per endpoint.
// In the demo pipeline this is the capacity monitor; in a real cluster
// it would be the metrics feed.
type WeightSource interface {
	Weights(ctx context.Context) (map[string]float64, error)
}

// WeightSink receives refreshed weight snapshots.
type WeightSink interface {
	UpdateWeights(weights map[string]float64)
}

// Refresher periodically polls a weight source and publishes the result
// to a sink. It runs independently of route selection: a slow or failing
// poll leaves the previous snapshot in place.
type Refresher struct {
	source   WeightSource
	sink     WeightSink
	interval time.Duration
	logger   *slog.Logger
}

// NewRefresher creates a weight refresher.
func NewRefresher(source WeightSource, sink WeightSink, interval time.Duration, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Refresher{
		source:   source,
		sink:     sink,
		interval: interval,
		logger:   logger,
	}
}

// Run refreshes once immediately, then on every tick until the context
// is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	r.refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	weights, err := r.source.Weights(ctx)
	if err != nil {
		r.logger.Warn("weight refresh failed, keeping previous snapshot", "error", err)
		return
	}
	r.sink.UpdateWeights(weights)
}
