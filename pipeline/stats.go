// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"sync/atomic"
	"time"
)

// Stats tracks aggregate pipeline counters.
type Stats struct {
	startTime time.Time

	// Flow stats
	produced  atomic.Uint64
	routed    atomic.Uint64
	delivered atomic.Uint64
	processed atomic.Uint64

	// Drop stats
	droppedNoRoute     atomic.Uint64
	droppedRateLimited atomic.Uint64
	droppedBreaker     atomic.Uint64
	droppedQueueFull   atomic.Uint64
	droppedDelivery    atomic.Uint64
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{
		startTime: time.Now(),
	}
}

// Flow tracking.
func (s *Stats) IncrementProduced() {
	s.produced.Add(1)
}

func (s *Stats) IncrementRouted() {
	s.routed.Add(1)
}

func (s *Stats) IncrementDelivered() {
	s.delivered.Add(1)
}

func (s *Stats) IncrementProcessed() {
	s.processed.Add(1)
}

func (s *Stats) GetProduced() uint64 {
	return s.produced.Load()
}

func (s *Stats) GetRouted() uint64 {
	return s.routed.Load()
}

func (s *Stats) GetDelivered() uint64 {
	return s.delivered.Load()
}

func (s *Stats) GetProcessed() uint64 {
	return s.processed.Load()
}

// Drop tracking.
func (s *Stats) IncrementDroppedNoRoute() {
	s.droppedNoRoute.Add(1)
}

func (s *Stats) IncrementDroppedRateLimited() {
	s.droppedRateLimited.Add(1)
}

func (s *Stats) IncrementDroppedBreaker() {
	s.droppedBreaker.Add(1)
}

func (s *Stats) IncrementDroppedQueueFull() {
	s.droppedQueueFull.Add(1)
}

func (s *Stats) GetDroppedNoRoute() uint64 {
	return s.droppedNoRoute.Load()
}

func (s *Stats) GetDroppedRateLimited() uint64 {
	return s.droppedRateLimited.Load()
}

func (s *Stats) GetDroppedBreaker() uint64 {
	return s.droppedBreaker.Load()
}

func (s *Stats) IncrementDroppedDelivery() {
	s.droppedDelivery.Add(1)
}

func (s *Stats) GetDroppedQueueFull() uint64 {
	return s.droppedQueueFull.Load()
}

func (s *Stats) GetDroppedDelivery() uint64 {
	return s.droppedDelivery.Load()
}

// GetDropped returns the total drops across all reasons.
func (s *Stats) GetDropped() uint64 {
	return s.droppedNoRoute.Load() +
		s.droppedRateLimited.Load() +
		s.droppedBreaker.Load() +
		s.droppedQueueFull.Load() +
		s.droppedDelivery.Load()
}

// Uptime.
func (s *Stats) GetUptime() time.Duration {
	return time.Since(s.startTime)
}
