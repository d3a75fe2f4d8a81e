// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package payload defines the unit of work flowing from producer to consumer.
package payload

import (
	"time"

	"github.com/google/uuid"
)

// Payload is an opaque, fixed-size block of work. It is immutable once
// created: the producer builds it, the router picks a destination, and
// exactly one consumer processes and discards it.
type Payload struct {
	ID        string
	Data      []byte
	CreatedAt time.Time
}

// New creates a payload with a data block of the given size.
// Size must be non-negative; a zero size yields an empty block.
func New(size int) *Payload {
	if size < 0 {
		size = 0
	}

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}

	return &Payload{
		ID:        uuid.NewString(),
		Data:      data,
		CreatedAt: time.Now(),
	}
}

// Size returns the length of the data block.
func (p *Payload) Size() int {
	return len(p.Data)
}
