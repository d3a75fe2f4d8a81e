// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package router

import "sync"

// RoundRobin cycles through endpoints in a fixed rotation, wrapping at
// the end of the list.
type RoundRobin struct {
	mu   sync.Mutex
	next int
}

// NewRoundRobin creates a round-robin policy.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (p *RoundRobin) Name() string {
	return "round_robin"
}

// Select returns the next endpoint in rotation.
func (p *RoundRobin) Select(endpoints []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := endpoints[p.next%len(endpoints)]
	p.next = (p.next + 1) % len(endpoints)
	return e, nil
}
