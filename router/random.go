// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package router

import "math/rand/v2"

// Random selects uniformly at random among endpoints per payload.
type Random struct{}

// NewRandom creates a uniform random policy.
func NewRandom() *Random {
	return &Random{}
}

func (p *Random) Name() string {
	return "random"
}

func (p *Random) Select(endpoints []string) (string, error) {
	return endpoints[rand.IntN(len(endpoints))], nil
}
