// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package router selects a destination consumer endpoint per payload
// under a pluggable policy: round_robin, random, or adaptive.
package router

import (
	"errors"
	"fmt"
	"sync"

	"github.com/absmach/loadflux/payload"
)

// ErrNoRoute is returned when routing is attempted with no registered
// endpoints. The caller does not retry; the payload is dropped.
var ErrNoRoute = errors.New("no route available")

// Policy picks one endpoint from a non-empty candidate list.
type Policy interface {
	// Select returns the chosen endpoint ID. endpoints is never empty.
	Select(endpoints []string) (string, error)

	// Name identifies the policy in logs and status output.
	Name() string
}

// Router tracks the live endpoint set and applies the configured policy.
// Endpoint registration is managed by the pipeline; the router itself
// performs no liveness detection.
type Router struct {
	mu        sync.RWMutex
	endpoints []string
	policy    Policy
}

// New creates a router with the given selection policy.
func New(policy Policy) *Router {
	return &Router{
		endpoints: []string{},
		policy:    policy,
	}
}

// Register adds an endpoint to the live set.
// Returns false if the endpoint was already registered.
func (r *Router) Register(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.endpoints {
		if e == id {
			return false
		}
	}
	r.endpoints = append(r.endpoints, id)
	return true
}

// Deregister removes an endpoint from the live set.
// Returns false if the endpoint was not registered.
func (r *Router) Deregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.endpoints {
		if e == id {
			r.endpoints = append(r.endpoints[:i], r.endpoints[i+1:]...)
			return true
		}
	}
	return false
}

// Endpoints returns a copy of the live endpoint set.
func (r *Router) Endpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

// Policy returns the router's selection policy.
func (r *Router) Policy() Policy {
	return r.policy
}

// Route selects one endpoint for the payload. Returns ErrNoRoute when
// the endpoint set is empty.
func (r *Router) Route(p *payload.Payload) (string, error) {
	// Copy under the read lock: Deregister shifts the backing array
	// in place, so the policy must never see the live slice.
	r.mu.RLock()
	endpoints := make([]string, len(r.endpoints))
	copy(endpoints, r.endpoints)
	r.mu.RUnlock()

	if len(endpoints) == 0 {
		return "", fmt.Errorf("route payload %s: %w", p.ID, ErrNoRoute)
	}

	return r.policy.Select(endpoints)
}
