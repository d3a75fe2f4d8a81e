// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAdaptiveProportionalSelection(t *testing.T) {
	p := NewAdaptive(0)
	p.UpdateWeights(map[string]float64{"A": 4, "B": 2, "C": 1})

	endpoints := []string{"A", "B", "C"}
	const n = 70000

	seen := map[string]int{}
	for i := 0; i < n; i++ {
		got, err := p.Select(endpoints)
		if err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
		seen[got]++
	}

	// Expected shares 4:2:1 -> 40000, 20000, 10000 with generous
	// statistical tolerance.
	checks := []struct {
		id   string
		want int
	}{
		{"A", 40000},
		{"B", 20000},
		{"C", 10000},
	}
	for _, c := range checks {
		tolerance := c.want / 10
		if seen[c.id] < c.want-tolerance || seen[c.id] > c.want+tolerance {
			t.Errorf("endpoint %s selected %d times, want %d±%d",
				c.id, seen[c.id], c.want, tolerance)
		}
	}
}

func TestAdaptiveFloorWeight(t *testing.T) {
	p := NewAdaptive(0.5)
	// D is missing from the snapshot and must still be selectable.
	p.UpdateWeights(map[string]float64{"A": 0.5})

	endpoints := []string{"A", "D"}
	seen := map[string]int{}
	for i := 0; i < 5000; i++ {
		got, err := p.Select(endpoints)
		if err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
		seen[got]++
	}

	if seen["D"] == 0 {
		t.Error("endpoint without published weight was never selected")
	}
	// Equal effective weights: roughly even split.
	if seen["D"] < 2000 || seen["D"] > 3000 {
		t.Errorf("endpoint D selected %d times, want ~2500", seen["D"])
	}
}

func TestAdaptiveIgnoresNonPositiveWeights(t *testing.T) {
	p := NewAdaptive(0)
	p.UpdateWeights(map[string]float64{"A": 1, "B": 0, "C": -3})

	got := p.Weights()
	if len(got) != 1 {
		t.Errorf("snapshot size = %d, want 1", len(got))
	}
	if got["A"] != 1 {
		t.Errorf("weight A = %v, want 1", got["A"])
	}
}

func TestAdaptiveEmptySnapshotFallsBackToUniform(t *testing.T) {
	p := NewAdaptive(0)

	endpoints := []string{"A", "B"}
	seen := map[string]int{}
	for i := 0; i < 2000; i++ {
		got, err := p.Select(endpoints)
		if err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
		seen[got]++
	}

	if seen["A"] == 0 || seen["B"] == 0 {
		t.Errorf("selections = %v, want both endpoints covered", seen)
	}
}

type stubSource struct {
	mu      sync.Mutex
	weights map[string]float64
	err     error
	calls   int
}

func (s *stubSource) Weights(ctx context.Context) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.weights, nil
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestRefresherPublishesSnapshot(t *testing.T) {
	src := &stubSource{weights: map[string]float64{"A": 3}}
	sink := NewAdaptive(0)
	r := NewRefresher(src, sink, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for sink.Weights()["A"] != 3 {
		select {
		case <-deadline:
			t.Fatal("refresher never published the snapshot")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestRefresherKeepsSnapshotOnError(t *testing.T) {
	src := &stubSource{err: errors.New("feed down")}
	sink := NewAdaptive(0)
	sink.UpdateWeights(map[string]float64{"A": 7})

	r := NewRefresher(src, sink, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.refresh(ctx)

	if src.callCount() == 0 {
		t.Fatal("source was never polled")
	}
	if sink.Weights()["A"] != 7 {
		t.Errorf("previous snapshot was discarded on refresh error")
	}
}
