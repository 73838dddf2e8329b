// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package web

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/plantlogger/plantlogger/internal/auth"
)

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(status int) {
	if !s.wroteHeader {
		s.status = status
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(b) //nolint:wrapcheck // passthrough
}

// instrument traces, logs, and counts each request and turns handler
// panics into a 500 response.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		ctx, span := h.tracer.Start(r.Context(), "HTTP "+r.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		r = r.WithContext(ctx)

		defer func() {
			if p := recover(); p != nil {
				h.logger.ErrorContext(r.Context(), "panic serving request", "panic", p, "path", r.URL.Path)
				if !rec.wroteHeader {
					writeJSON(rec, http.StatusInternalServerError, errorBody{Error: errorDetail{Kind: auth.KindStore, Message: genericFailure}})
				}
			}

			// The mux fills in Pattern on the request it was handed.
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			} else {
				span.SetName(route)
			}
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", rec.status),
			)
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}
			h.metrics.RecordHTTPRequest(route, rec.status)
			h.logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"route", route,
				"status", rec.status,
				"duration", time.Since(start),
			)
		}()

		next.ServeHTTP(rec, r)
	})
}
