// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"math/rand/v2"
	"sync"
)

// DefaultFloorWeight is assigned to endpoints missing from the current
// weight snapshot so a stale feed never starves a live endpoint.
const DefaultFloorWeight = 0.05

// Adaptive selects endpoints by weighted-random pick over an externally
// published capacity signal: endpoints with more remaining capacity
// receive proportionally more payloads. The weighting function itself
// belongs to the capacity feed; this policy only consumes the latest
// snapshot.
type Adaptive struct {
	mu      sync.RWMutex
	weights map[string]float64
	floor   float64
}

// NewAdaptive creates an adaptive policy. floor is the weight used for
// endpoints absent from the snapshot; values <= 0 fall back to
// DefaultFloorWeight.
func NewAdaptive(floor float64) *Adaptive {
	if floor <= 0 {
		floor = DefaultFloorWeight
	}
	return &Adaptive{
		weights: map[string]float64{},
		floor:   floor,
	}
}

func (p *Adaptive) Name() string {
	return "adaptive"
}

// UpdateWeights replaces the published snapshot. Called by the weight
// refresher; selection reads never block on an update in progress.
func (p *Adaptive) UpdateWeights(weights map[string]float64) {
	snapshot := make(map[string]float64, len(weights))
	for id, w := range weights {
		if w > 0 {
			snapshot[id] = w
		}
	}

	p.mu.Lock()
	p.weights = snapshot
	p.mu.Unlock()
}

// Weights returns a copy of the current snapshot.
func (p *Adaptive) Weights() map[string]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]float64, len(p.weights))
	for id, w := range p.weights {
		out[id] = w
	}
	return out
}

// Select performs a weighted-random pick over the candidate endpoints
// using the most recently published weights.
func (p *Adaptive) Select(endpoints []string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var total float64
	for _, e := range endpoints {
		total += p.weight(e)
	}

	r := rand.Float64() * total
	for _, e := range endpoints {
		r -= p.weight(e)
		if r < 0 {
			return e, nil
		}
	}

	// Floating-point remainder lands on the last endpoint.
	return endpoints[len(endpoints)-1], nil
}

// weight returns the published weight for an endpoint, or the floor
// weight when the snapshot has none. Caller must hold p.mu.
func (p *Adaptive) weight(id string) float64 {
	if w, ok := p.weights[id]; ok {
		return w
	}
	return p.floor
}
