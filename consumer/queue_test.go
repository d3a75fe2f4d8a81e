// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"errors"
	"testing"

	"github.com/absmach/loadflux/payload"
)

func TestPendingQueueFIFO(t *testing.T) {
	q := newPendingQueue(0)

	ps := make([]*payload.Payload, 5)
	for i := range ps {
		ps[i] = payload.New(8)
		if err := q.enqueue(ps[i]); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	if q.len() != 5 {
		t.Errorf("len = %d, want 5", q.len())
	}

	// The Nth enqueued item must be the Nth dequeued item.
	for i := range ps {
		got := q.dequeue()
		if got == nil {
			t.Fatalf("dequeue %d: got nil", i)
		}
		if got.ID != ps[i].ID {
			t.Errorf("dequeue %d: got %s, want %s", i, got.ID, ps[i].ID)
		}
	}

	if got := q.dequeue(); got != nil {
		t.Errorf("dequeue on empty queue: got %v, want nil", got)
	}
}

func TestPendingQueueBounded(t *testing.T) {
	q := newPendingQueue(2)

	if err := q.enqueue(payload.New(1)); err != nil {
		t.Fatalf("enqueue 1: %v", err)
	}
	if err := q.enqueue(payload.New(1)); err != nil {
		t.Fatalf("enqueue 2: %v", err)
	}

	err := q.enqueue(payload.New(1))
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("enqueue over capacity: got %v, want ErrQueueFull", err)
	}

	// Dequeue frees a slot.
	q.dequeue()
	if err := q.enqueue(payload.New(1)); err != nil {
		t.Errorf("enqueue after dequeue: %v", err)
	}
}

func TestPendingQueueDrain(t *testing.T) {
	q := newPendingQueue(0)
	for i := 0; i < 3; i++ {
		if err := q.enqueue(payload.New(1)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	drained := q.drain()
	if len(drained) != 3 {
		t.Errorf("drain returned %d payloads, want 3", len(drained))
	}
	if q.len() != 0 {
		t.Errorf("len after drain = %d, want 0", q.len())
	}
}
