// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the Plant Logger application counters.
type Metrics struct {
	AuthOperations        *prometheus.CounterVec
	EmailChangeOperations *prometheus.CounterVec
	Notifications         *prometheus.CounterVec
	HTTPRequests          *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantlogger_auth_operations_total",
				Help: "Total number of auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		EmailChangeOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantlogger_email_change_operations_total",
				Help: "Total number of email change operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantlogger_notifications_total",
				Help: "Total number of notification deliveries by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantlogger_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
	}

	reg.MustRegister(m.AuthOperations, m.EmailChangeOperations, m.Notifications, m.HTTPRequests)
	return m
}

// RecordAuth counts an auth operation. outcome is "ok" or an error kind.
func (m *Metrics) RecordAuth(operation, outcome string) {
	m.AuthOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordEmailChange counts an email change operation.
func (m *Metrics) RecordEmailChange(operation, outcome string) {
	m.EmailChangeOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordNotification counts a notification delivery.
func (m *Metrics) RecordNotification(outcome string) {
	m.Notifications.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest counts a served request.
func (m *Metrics) RecordHTTPRequest(route string, status int) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
