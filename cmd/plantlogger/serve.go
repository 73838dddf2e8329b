// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"github.com/plantlogger/plantlogger/internal/auth"
	"github.com/plantlogger/plantlogger/internal/auth/postgres"
	"github.com/plantlogger/plantlogger/internal/config"
	"github.com/plantlogger/plantlogger/internal/logging"
	"github.com/plantlogger/plantlogger/internal/notify"
	"github.com/plantlogger/plantlogger/internal/observability"
	"github.com/plantlogger/plantlogger/internal/session"
	"github.com/plantlogger/plantlogger/internal/web"
)

const connectRetryBase = 500 * time.Millisecond

// serveFlagKeys maps serve flags to config keys.
var serveFlagKeys = map[string]string{
	"addr":            "http.addr",
	"metrics-addr":    "http.metrics_addr",
	"log-format":      "log.format",
	"log-level":       "log.level",
	"database-url":    "database.url",
	"session-backend": "session.backend",
	"notifier":        "notifier.kind",
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Plant Logger HTTP server",
		Long: `Start the web server for registration, login, and email change,
plus the metrics and health server when http.metrics_addr is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), serveFlagKeys)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	defaults := config.Default()
	cmd.Flags().String("addr", defaults.HTTP.Addr, "web listen address")
	cmd.Flags().String("metrics-addr", defaults.HTTP.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaults.Log.Format, "log format (json or text)")
	cmd.Flags().String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	cmd.Flags().String("session-backend", defaults.Session.Backend, "session storage (memory, redis, postgres)")
	cmd.Flags().String("notifier", defaults.Notifier.Kind, "mail transport (smtp or log)")

	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.DatabaseFactory == nil {
		deps.DatabaseFactory = connectDatabase
	}
	if deps.RedisFactory == nil {
		deps.RedisFactory = func(rc config.RedisConfig) RedisClient {
			return redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		}
	}
	if deps.NotifierFactory == nil {
		deps.NotifierFactory = newNotifier
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readiness observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readiness)
		}
	}
	if deps.WebServerFactory == nil {
		deps.WebServerFactory = func(addr string, handler http.Handler) WebServer {
			return web.NewServer(addr, handler)
		}
	}
	if deps.LogOutput == nil {
		deps.LogOutput = os.Stderr
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.SetDefault(logging.Options{
		Service: "plantlogger",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
	}, deps.LogOutput)

	logger.Info("starting plantlogger",
		"addr", cfg.HTTP.Addr,
		"session_backend", cfg.Session.Backend,
		"notifier", cfg.Notifier.Kind,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	db, err := deps.DatabaseFactory(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	logger.Info("connected to database")

	sessions, sessionReady, closeSessions, err := openSessionStore(ctx, cfg, db, deps, logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer closeSessions()

	readiness := func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			return oops.Code("NOT_READY").Wrapf(err, "database")
		}
		if sessionReady != nil {
			if err := sessionReady(ctx); err != nil {
				return oops.Code("NOT_READY").Wrapf(err, "session store")
			}
		}
		return nil
	}

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.HTTP.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.HTTP.MetricsAddr, readiness)
		metrics = obsServer.Metrics()
	}

	notifier, err := deps.NotifierFactory(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up notifier: %w", err)
	}
	var webMetrics web.Recorder
	if metrics != nil {
		notifier = notify.Instrument(notifier, metrics)
		webMetrics = metrics
	}

	users := postgres.NewUserRepository(db)
	policy := auth.ComplexityPolicy{MinLength: cfg.Password.MinLength, Symbols: cfg.Password.Symbols}
	authSvc, err := auth.NewAuthServiceWithLogger(users, sessions, auth.NewArgon2idHasher(), policy, logger)
	if err != nil {
		return fmt.Errorf("failed to create auth service: %w", err)
	}
	emailSvc, err := auth.NewEmailChangeService(authSvc, users, sessions, notifier,
		auth.WithCodeTTL(cfg.EmailChange.CodeTTL),
		auth.WithRollbackOnNotifyFailure(cfg.EmailChange.RollbackOnNotifyFailure),
		auth.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create email change service: %w", err)
	}

	handler, err := web.NewHandler(authSvc, emailSvc,
		web.CookieConfig{Name: cfg.Session.CookieName, Secure: cfg.Session.CookieSecure},
		webMetrics, logger)
	if err != nil {
		return fmt.Errorf("failed to create web handler: %w", err)
	}

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	webServer := deps.WebServerFactory(cfg.HTTP.Addr, handler)
	webErrChan, err := webServer.Start()
	if err != nil {
		stopServer(obsServer, cfg.HTTP.ShutdownTimeout, "observability")
		return fmt.Errorf("failed to start web server: %w", err)
	}
	go monitorServerErrors(ctx, cancel, webErrChan, "web")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Plant Logger started")
	logger.Info("plantlogger ready", "addr", webServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	stopServer(webServer, cfg.HTTP.ShutdownTimeout, "web")
	stopServer(obsServer, cfg.HTTP.ShutdownTimeout, "observability")
	cancel()

	logger.Info("shutdown complete")
	return nil
}

type stoppable interface {
	Stop(ctx context.Context) error
}

func stopServer(s stoppable, timeout time.Duration, name string) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("error stopping server", "server", name, "error", err)
	}
}

// openSessionStore builds the configured backend and starts its expiry
// sweeper. ready is nil when the backend has nothing to probe.
func openSessionStore(ctx context.Context, cfg *config.Config, db Database, deps *ServeDeps, logger *slog.Logger) (store auth.SessionStore, ready func(context.Context) error, closeFn func(), err error) {
	switch cfg.Session.Backend {
	case config.SessionBackendMemory:
		mem := session.NewMemoryStore(cfg.Session.TTL)
		go mem.RunJanitor(ctx, cfg.Session.SweepInterval, logger)
		return mem, nil, func() {}, nil

	case config.SessionBackendPostgres:
		pg := postgres.NewSessionStore(db, cfg.Session.TTL)
		go runSweeper(ctx, cfg.Session.SweepInterval, pg.DeleteExpired, logger)
		return pg, nil, func() {}, nil

	case config.SessionBackendRedis:
		client := deps.RedisFactory(cfg.Redis)
		rs := session.NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.Session.TTL)
		if err := rs.Ping(ctx); err != nil {
			_ = client.Close() //nolint:errcheck // already failing
			return nil, nil, nil, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("error closing redis client", "error", err)
			}
		}
		return rs, rs.Ping, closeFn, nil

	default:
		return nil, nil, nil, oops.Code("CONFIG_INVALID").Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

// runSweeper calls sweep every interval until ctx is cancelled.
func runSweeper(ctx context.Context, interval time.Duration, sweep func(context.Context) (int64, error), logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sweep(ctx)
			if err != nil {
				logger.Warn("expired session sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Debug("expired sessions swept", "removed", removed)
			}
		}
	}
}

// connectDatabase opens a pgx pool and pings it, retrying with
// exponential backoff while the database comes up.
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (Database, error) {
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrapf(err, "parse database url")
	}

	backoff := retry.WithMaxRetries(cfg.ConnectRetries, retry.NewExponential(connectRetryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			slog.Warn("database not reachable, retrying", "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("retries", cfg.ConnectRetries).
			Wrapf(err, "ping database")
	}
	return pool, nil
}

// newNotifier builds the transport named by notifier.kind.
func newNotifier(cfg *config.Config) (auth.Notifier, error) {
	logger := slog.Default()
	switch cfg.Notifier.Kind {
	case config.NotifierSMTP:
		n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Timeout:  cfg.SMTP.Timeout,
			Retries:  cfg.SMTP.Retries,
		}, logger)
		if err != nil {
			return nil, err //nolint:wrapcheck // notifier errors carry their own codes
		}
		return n, nil
	case config.NotifierLog:
		return notify.NewLogNotifier(logger), nil
	default:
		return nil, oops.Code("CONFIG_INVALID").Errorf("unknown notifier kind %q", cfg.Notifier.Kind)
	}
}

// monitorServerErrors cancels ctx when a server reports a failure.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
