// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

// Package config loads Plant Logger settings from defaults, a YAML file,
// the environment, and command-line flags.
package config

import (
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/samber/oops"
)

// Session backends.
const (
	SessionBackendMemory   = "memory"
	SessionBackendRedis    = "redis"
	SessionBackendPostgres = "postgres"
)

// Notifier kinds.
const (
	NotifierSMTP = "smtp"
	NotifierLog  = "log"
)

// Config is the full runtime configuration.
type Config struct {
	HTTP        HTTPConfig        `koanf:"http" yaml:"http"`
	Log         LogConfig         `koanf:"log" yaml:"log"`
	Database    DatabaseConfig    `koanf:"database" yaml:"database"`
	Session     SessionConfig     `koanf:"session" yaml:"session"`
	Redis       RedisConfig       `koanf:"redis" yaml:"redis"`
	Notifier    NotifierConfig    `koanf:"notifier" yaml:"notifier"`
	SMTP        SMTPConfig        `koanf:"smtp" yaml:"smtp"`
	EmailChange EmailChangeConfig `koanf:"email_change" yaml:"email_change"`
	Password    PasswordConfig    `koanf:"password" yaml:"password"`
}

// HTTPConfig configures the web and observability listeners.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr" jsonschema_description:"Web listen address"`
	MetricsAddr     string        `koanf:"metrics_addr" yaml:"metrics_addr" jsonschema_description:"Metrics and health listen address. Empty disables it"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL            string `koanf:"url" yaml:"url" jsonschema_description:"PostgreSQL connection URL"`
	ConnectRetries uint64 `koanf:"connect_retries" yaml:"connect_retries"`
}

// SessionConfig configures session storage and the session cookie.
type SessionConfig struct {
	Backend       string        `koanf:"backend" yaml:"backend" jsonschema:"enum=memory,enum=redis,enum=postgres"`
	TTL           time.Duration `koanf:"ttl" yaml:"ttl"`
	CookieName    string        `koanf:"cookie_name" yaml:"cookie_name"`
	CookieSecure  bool          `koanf:"cookie_secure" yaml:"cookie_secure"`
	SweepInterval time.Duration `koanf:"sweep_interval" yaml:"sweep_interval" jsonschema_description:"How often expired sessions are purged (memory and postgres backends)"`
}

// RedisConfig configures the redis session backend.
type RedisConfig struct {
	Addr      string `koanf:"addr" yaml:"addr"`
	Password  string `koanf:"password" yaml:"password"`
	DB        int    `koanf:"db" yaml:"db"`
	KeyPrefix string `koanf:"key_prefix" yaml:"key_prefix"`
}

// NotifierConfig selects the outbound mail transport.
type NotifierConfig struct {
	Kind string `koanf:"kind" yaml:"kind" jsonschema:"enum=smtp,enum=log"`
}

// SMTPConfig configures the SMTP notifier.
type SMTPConfig struct {
	Host     string        `koanf:"host" yaml:"host"`
	Port     int           `koanf:"port" yaml:"port"`
	Username string        `koanf:"username" yaml:"username"`
	Password string        `koanf:"password" yaml:"password"`
	From     string        `koanf:"from" yaml:"from"`
	Timeout  time.Duration `koanf:"timeout" yaml:"timeout"`
	Retries  uint64        `koanf:"retries" yaml:"retries"`
}

// EmailChangeConfig tunes the email-change flow.
type EmailChangeConfig struct {
	CodeTTL                 time.Duration `koanf:"code_ttl" yaml:"code_ttl"`
	RollbackOnNotifyFailure bool          `koanf:"rollback_on_notify_failure" yaml:"rollback_on_notify_failure"`
}

// PasswordConfig tunes the registration password policy.
type PasswordConfig struct {
	MinLength int    `koanf:"min_length" yaml:"min_length"`
	Symbols   string `koanf:"symbols" yaml:"symbols"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":3000",
			MetricsAddr:     "127.0.0.1:9100",
			ShutdownTimeout: 5 * time.Second,
		},
		Log:      LogConfig{Format: "json", Level: "info"},
		Database: DatabaseConfig{ConnectRetries: 5},
		Session: SessionConfig{
			Backend:       SessionBackendMemory,
			TTL:           24 * time.Hour,
			CookieName:    "plantlogger_session",
			SweepInterval: time.Minute,
		},
		Redis:    RedisConfig{Addr: "localhost:6379", KeyPrefix: "plantlogger:session:"},
		Notifier: NotifierConfig{Kind: NotifierLog},
		SMTP: SMTPConfig{
			Port:    587,
			Timeout: 10 * time.Second,
			Retries: 2,
		},
		EmailChange: EmailChangeConfig{CodeTTL: 10 * time.Minute},
		Password:    PasswordConfig{MinLength: 10, Symbols: "!@#$%"},
	}
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	checks := []struct {
		section string
		err     error
	}{
		{"http", validation.ValidateStruct(&c.HTTP,
			validation.Field(&c.HTTP.Addr, validation.Required),
			validation.Field(&c.HTTP.ShutdownTimeout, validation.Required, validation.Min(time.Duration(1)).Error("must be positive")),
		)},
		{"log", validation.ValidateStruct(&c.Log,
			validation.Field(&c.Log.Format, validation.In("json", "text")),
			validation.Field(&c.Log.Level, validation.In("debug", "info", "warn", "error")),
		)},
		{"database", validation.ValidateStruct(&c.Database,
			validation.Field(&c.Database.URL, validation.Required.Error("is required"), validation.By(isDatabaseURL)),
		)},
		{"session", validation.ValidateStruct(&c.Session,
			validation.Field(&c.Session.Backend, validation.In(SessionBackendMemory, SessionBackendRedis, SessionBackendPostgres)),
			validation.Field(&c.Session.TTL, validation.Required, validation.Min(time.Second).Error("must be at least 1s")),
			validation.Field(&c.Session.CookieName, validation.Required),
			validation.Field(&c.Session.SweepInterval, validation.Required, validation.Min(time.Second).Error("must be at least 1s")),
		)},
		{"redis", validation.ValidateStruct(&c.Redis,
			validation.Field(&c.Redis.Addr, requiredIf(c.Session.Backend == SessionBackendRedis)),
			validation.Field(&c.Redis.DB, validation.Min(0)),
		)},
		{"notifier", validation.ValidateStruct(&c.Notifier,
			validation.Field(&c.Notifier.Kind, validation.In(NotifierSMTP, NotifierLog)),
		)},
		{"smtp", validation.ValidateStruct(&c.SMTP,
			validation.Field(&c.SMTP.Host, requiredIf(c.Notifier.Kind == NotifierSMTP)),
			validation.Field(&c.SMTP.From, requiredIf(c.Notifier.Kind == NotifierSMTP)),
			validation.Field(&c.SMTP.Port, validation.Required, validation.Min(1), validation.Max(65535)),
			validation.Field(&c.SMTP.Timeout, validation.Required, validation.Min(time.Duration(1)).Error("must be positive")),
		)},
		{"email_change", validation.ValidateStruct(&c.EmailChange,
			validation.Field(&c.EmailChange.CodeTTL, validation.Required, validation.Min(time.Second).Error("must be at least 1s")),
		)},
		{"password", validation.ValidateStruct(&c.Password,
			validation.Field(&c.Password.MinLength, validation.Required, validation.Min(1)),
		)},
	}
	for _, check := range checks {
		if check.err != nil {
			return oops.Code("CONFIG_INVALID").
				With("section", check.section).
				Errorf("%s: %s", check.section, check.err.Error())
		}
	}
	return nil
}

// requiredIf applies validation.Required only when cond holds.
func requiredIf(cond bool) validation.Rule {
	if cond {
		return validation.Required
	}
	return validation.By(func(any) error { return nil })
}

func isDatabaseURL(value any) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return oops.Errorf("must be a valid URL")
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return oops.Errorf("must use the postgres scheme")
	}
	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	const mask = "REDACTED"
	out := c
	if out.Redis.Password != "" {
		out.Redis.Password = mask
	}
	if out.SMTP.Password != "" {
		out.SMTP.Password = mask
	}
	if u, err := url.Parse(out.Database.URL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), mask)
			out.Database.URL = u.String()
		}
	}
	return out
}
