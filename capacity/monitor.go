// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package capacity derives routing weights from consumer backlog.
// It is the in-process stand-in for an external cluster metrics feed:
// the router only ever sees the resulting endpoint→weight table.
package capacity

import (
	"context"

	"github.com/absmach/loadflux/consumer"
)

// Monitor samples the consumer fleet and reports inverse-pressure
// weights: an idle consumer with an empty backlog gets weight 1, and
// weight decays as the backlog grows, so loaded endpoints receive
// proportionally fewer payloads.
type Monitor struct {
	consumers []*consumer.Consumer
}

// NewMonitor creates a monitor over the given fleet.
func NewMonitor(consumers []*consumer.Consumer) *Monitor {
	return &Monitor{consumers: consumers}
}

// Weights implements router.WeightSource.
func (m *Monitor) Weights(ctx context.Context) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	weights := make(map[string]float64, len(m.consumers))
	for _, c := range m.consumers {
		pressure := c.QueueLen()
		if c.State() == consumer.Busy {
			pressure++
		}
		weights[c.ID()] = 1 / float64(1+pressure)
	}
	return weights, nil
}
