// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/absmach/loadflux/config"
	"github.com/absmach/loadflux/pipeline"
)

func newTestPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()

	cfg := config.Default()
	cfg.Consumers.Count = 2
	cfg.Consumers.ProcessingTime = time.Hour
	cfg.Server.HealthEnabled = false

	p, err := pipeline.New(cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	t.Cleanup(p.Stop)
	return p
}

func TestHandleHealth(t *testing.T) {
	s := New(Config{Address: ":0"}, newTestPipeline(t), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %s, want healthy", resp.Status)
	}
}

func TestHandleHealthMethodNotAllowed(t *testing.T) {
	s := New(Config{Address: ":0"}, newTestPipeline(t), nil)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleReady(t *testing.T) {
	p := newTestPipeline(t)
	s := New(Config{Address: ":0"}, p, nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	s.handleReady(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHandleReadyNoPipeline(t *testing.T) {
	s := New(Config{Address: ":0"}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	s.handleReady(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleReadyNoEndpoints(t *testing.T) {
	p := newTestPipeline(t)
	p.Router().Deregister("consumer-1")
	p.Router().Deregister("consumer-2")

	s := New(Config{Address: ":0"}, p, nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	s.handleReady(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	var resp ReadyResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "not_ready" {
		t.Errorf("status = %s, want not_ready", resp.Status)
	}
}

func TestHandleStatus(t *testing.T) {
	p := newTestPipeline(t)
	s := New(Config{Address: ":0"}, p, nil)

	req := httptest.NewRequest(http.MethodGet, "/pipeline/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	var st pipeline.Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Policy != "round_robin" {
		t.Errorf("policy = %s, want round_robin", st.Policy)
	}
	if len(st.Consumers) != 2 {
		t.Errorf("consumers = %d, want 2", len(st.Consumers))
	}
	for _, c := range st.Consumers {
		if c.State != "idle" {
			t.Errorf("consumer %s state = %s, want idle", c.ID, c.State)
		}
	}
}

func TestListenAndShutdown(t *testing.T) {
	s := New(Config{Address: "127.0.0.1:0", ShutdownTimeout: 5 * time.Second},
		newTestPipeline(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Listen(ctx)
	}()

	// Wait for the listener to come up.
	deadline := time.After(5 * time.Second)
	for s.Addr() == "" {
		select {
		case <-deadline:
			t.Fatal("server never started listening")
		case <-time.After(5 * time.Millisecond):
		}
	}

	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Listen returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
