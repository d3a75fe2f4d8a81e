// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/absmach/loadflux/payload"
)

// ErrQueueFull is returned when a bounded pending queue is at capacity.
var ErrQueueFull = errors.New("pending queue full")

// pendingQueue is a FIFO backlog of payloads that arrived while the
// consumer was busy. maxSize of 0 means unbounded.
type pendingQueue struct {
	mu       sync.Mutex
	payloads []*payload.Payload
	maxSize  int
}

func newPendingQueue(maxSize int) *pendingQueue {
	if maxSize < 0 {
		maxSize = 0
	}
	return &pendingQueue{
		payloads: make([]*payload.Payload, 0),
		maxSize:  maxSize,
	}
}

// enqueue appends a payload to the tail.
// Returns ErrQueueFull if the queue is bounded and at capacity.
func (q *pendingQueue) enqueue(p *payload.Payload) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxSize > 0 && len(q.payloads) >= q.maxSize {
		return fmt.Errorf("enqueue payload %s (current: %d, max: %d): %w",
			p.ID, len(q.payloads), q.maxSize, ErrQueueFull)
	}

	q.payloads = append(q.payloads, p)
	return nil
}

// dequeue removes and returns the head of the queue.
// Returns nil if the queue is empty.
func (q *pendingQueue) dequeue() *payload.Payload {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.payloads) == 0 {
		return nil
	}

	p := q.payloads[0]
	q.payloads = q.payloads[1:]
	return p
}

// len returns the number of queued payloads.
func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.payloads)
}

// drain removes and returns all queued payloads.
func (q *pendingQueue) drain() []*payload.Payload {
	q.mu.Lock()
	defer q.mu.Unlock()

	ps := q.payloads
	q.payloads = make([]*payload.Payload, 0)
	return ps
}
