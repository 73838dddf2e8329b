// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package config

import (
	"net"
	"net/url"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/samber/oops"
)

// legacyEnv holds the variable names of the original Node deployment.
type legacyEnv struct {
	PGHost     string `env:"PGHOST"`
	PGPort     string `env:"PGPORT"`
	PGDatabase string `env:"POSTGRES_DB"`
	PGUser     string `env:"POSTGRES_USER"`
	PGPassword string `env:"POSTGRES_PASSWORD"`

	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort string `env:"SMTP_PORT"`
	SMTPUser string `env:"SMTP_USER"`
	SMTPPass string `env:"SMTP_PASS"`
	From     string `env:"FROM_EMAIL"`

	Port string `env:"PORT"`
}

// parseLegacyEnv reads legacy variables from environ, or from the process
// environment when environ is nil.
func parseLegacyEnv(environ map[string]string) (legacyEnv, error) {
	var out legacyEnv
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&out, opts); err != nil {
		return legacyEnv{}, oops.Code("CONFIG_LEGACY_ENV").Wrapf(err, "parse legacy environment")
	}
	return out, nil
}

// keys flattens the set legacy variables into koanf keys. Unset
// variables contribute nothing so lower layers keep their values.
func (l legacyEnv) keys() (map[string]any, error) {
	out := map[string]any{}

	if l.PGDatabase != "" {
		host := l.PGHost
		if host == "" {
			host = "localhost"
		}
		port := l.PGPort
		if port == "" {
			port = "5432"
		}
		u := url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(host, port),
			Path:   "/" + l.PGDatabase,
		}
		switch {
		case l.PGUser != "" && l.PGPassword != "":
			u.User = url.UserPassword(l.PGUser, l.PGPassword)
		case l.PGUser != "":
			u.User = url.User(l.PGUser)
		}
		out["database.url"] = u.String()
	}

	if l.SMTPHost != "" {
		out["notifier.kind"] = NotifierSMTP
		out["smtp.host"] = l.SMTPHost
		from := l.From
		if from == "" {
			from = l.SMTPUser
		}
		if from != "" {
			out["smtp.from"] = from
		}
	}
	if l.SMTPPort != "" {
		port, err := strconv.Atoi(l.SMTPPort)
		if err != nil {
			return nil, oops.Code("CONFIG_LEGACY_ENV").With("variable", "SMTP_PORT").Errorf("SMTP_PORT must be a number, got %q", l.SMTPPort)
		}
		out["smtp.port"] = port
	}
	if l.SMTPUser != "" {
		out["smtp.username"] = l.SMTPUser
	}
	if l.SMTPPass != "" {
		out["smtp.password"] = l.SMTPPass
	}

	if l.Port != "" {
		out["http.addr"] = ":" + l.Port
	}
	return out, nil
}
