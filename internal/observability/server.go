// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plantlogger/plantlogger/internal/httpserver"
)

// readinessTimeout bounds a single readiness check.
const readinessTimeout = 2 * time.Second

// ReadinessChecker reports why the service cannot take traffic, or nil.
type ReadinessChecker func(ctx context.Context) error

// Server exposes /metrics and the /healthz probes on its own listener.
type Server struct {
	*httpserver.Server
	metrics *Metrics
}

// NewServer creates the observability server for addr ("host:port").
// A nil checker reports ready unconditionally.
func NewServer(addr string, checker ReadinessChecker) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Server{
		Server:  httpserver.New("observability", addr, routes(registry, checker)),
		metrics: NewMetrics(registry),
	}
}

// Metrics returns the application metrics served by this server.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func routes(registry *prometheus.Registry, checker ReadinessChecker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("GET /healthz/liveness", func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("GET /healthz/readiness", readiness(checker))
	return mux
}

func readiness(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			writeProbe(w, http.StatusOK, "ok")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := checker(ctx); err != nil {
			slog.WarnContext(ctx, "readiness check failed", "error", err)
			writeProbe(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeProbe(w, http.StatusOK, "ok")
	}
}

type probeBody struct {
	Status string `json:"status"`
}

func writeProbe(w http.ResponseWriter, status int, state string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(probeBody{Status: state})
}
