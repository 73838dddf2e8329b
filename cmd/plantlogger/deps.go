// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package main

import (
	"context"
	"io"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/plantlogger/plantlogger/internal/auth"
	"github.com/plantlogger/plantlogger/internal/auth/postgres"
	"github.com/plantlogger/plantlogger/internal/config"
	"github.com/plantlogger/plantlogger/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// DatabaseFactory connects to PostgreSQL.
	// Default: connectDatabase (pgxpool with retried ping)
	DatabaseFactory func(ctx context.Context, cfg config.DatabaseConfig) (Database, error)

	// RedisFactory creates the client for the redis session backend.
	// Default: redis.NewClient
	RedisFactory func(cfg config.RedisConfig) RedisClient

	// NotifierFactory builds the outbound mail transport.
	// Default: newNotifier
	NotifierFactory func(cfg *config.Config) (auth.Notifier, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readiness observability.ReadinessChecker) ObservabilityServer

	// WebServerFactory creates the HTTP server for the web handler.
	// Default: web.NewServer
	WebServerFactory func(addr string, handler http.Handler) WebServer

	// LogOutput receives log records.
	// Default: os.Stderr
	LogOutput io.Writer
}

// Database is the subset of *pgxpool.Pool used by serve.
type Database interface {
	postgres.Pool
	Ping(ctx context.Context) error
	Close()
}

// RedisClient is the subset of *redis.Client used by serve.
type RedisClient interface {
	redis.Cmdable
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// WebServer interface wraps the methods used from httpserver.Server.
type WebServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
