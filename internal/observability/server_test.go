// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func startServer(t *testing.T, checker ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", checker)
	if _, err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, server *Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + server.Addr() + path)
	if err != nil {
		t.Fatalf("failed to GET %s: %v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestServer_MetricsExposesApplicationCounters(t *testing.T) {
	server := startServer(t, nil)

	m := server.Metrics()
	m.RecordAuth("login", "ok")
	m.RecordAuth("login", "ok")
	m.RecordEmailChange("confirm", "invalid_code")
	m.RecordNotification("sent")
	m.RecordHTTPRequest("POST /login", http.StatusOK)

	status, body := get(t, server, "/metrics")
	if status != http.StatusOK {
		t.Fatalf("expected status 200, got %d", status)
	}

	for _, want := range []string{
		"go_",
		"process_",
		`plantlogger_auth_operations_total{operation="login",outcome="ok"} 2`,
		`plantlogger_email_change_operations_total{operation="confirm",outcome="invalid_code"} 1`,
		`plantlogger_notifications_total{outcome="sent"} 1`,
		`plantlogger_http_requests_total{route="POST /login",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}

func TestServer_LivenessReturns200(t *testing.T) {
	server := startServer(t, nil)

	status, body := get(t, server, "/healthz/liveness")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if strings.TrimSpace(body) != `{"status":"ok"}` {
		t.Errorf("unexpected liveness body %q", body)
	}
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		checker    ReadinessChecker
		wantStatus int
		wantBody   string
	}{
		{"nil checker", nil, http.StatusOK, `{"status":"ok"}`},
		{"ready", func(context.Context) error { return nil }, http.StatusOK, `{"status":"ok"}`},
		{"not ready", func(context.Context) error { return errors.New("db down") }, http.StatusServiceUnavailable, `{"status":"unavailable"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, tt.checker)

			status, body := get(t, server, "/healthz/readiness")
			if status != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, status)
			}
			if strings.TrimSpace(body) != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, body)
			}
		})
	}
}

func TestServer_ReadinessCheckerGetsDeadline(t *testing.T) {
	var hadDeadline bool
	server := startServer(t, func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	})

	get(t, server, "/healthz/readiness")
	if !hadDeadline {
		t.Error("expected readiness context to carry a deadline")
	}
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t, nil)

	if _, err := server.Start(); err == nil {
		t.Error("expected error on double start, got nil")
	}
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Errorf("stop without start should not error: %v", err)
	}
}

func TestServer_ErrorChannelClosesOnNormalShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	errCh, err := server.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Fatalf("failed to stop server: %v", err)
	}

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			t.Errorf("unexpected error on normal shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error channel to close")
	}
}

func TestServer_ProbesRejectNonGET(t *testing.T) {
	server := startServer(t, nil)

	resp, err := http.Post("http://"+server.Addr()+"/healthz/liveness", "text/plain", nil)
	if err != nil {
		t.Fatalf("failed to POST: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", resp.StatusCode)
	}
}

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordEmailChange("request", "ok")

	if got := testutil.ToFloat64(m.EmailChangeOperations.WithLabelValues("request", "ok")); got != 1 {
		t.Errorf("expected counter value 1, got %v", got)
	}
	if count, err := testutil.GatherAndCount(reg, "plantlogger_email_change_operations_total"); err != nil || count != 1 {
		t.Errorf("expected one gathered series, got %d (err %v)", count, err)
	}
}
