// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

// Package notify delivers auth notifications by SMTP or to the log.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/wneessen/go-mail"

	"github.com/plantlogger/plantlogger/internal/auth"
)

// SMTP defaults.
const (
	DefaultSMTPPort    = 587
	DefaultSMTPTimeout = 10 * time.Second
	defaultRetryBase   = 250 * time.Millisecond
	implicitTLSPort    = 465
)

// SMTPConfig describes the outgoing mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
	Retries  uint64
}

// mailClient is the part of *mail.Client used for delivery.
type mailClient interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPNotifier sends plain-text mail, retrying transient failures with
// exponential backoff.
type SMTPNotifier struct {
	client    mailClient
	from      string
	retries   uint64
	retryBase time.Duration
	logger    *slog.Logger
}

// NewSMTPNotifier creates a notifier for cfg. Port 465 uses implicit TLS;
// other ports upgrade with STARTTLS when the server offers it.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, oops.Code("SMTP_INVALID_CONFIG").Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("SMTP_INVALID_CONFIG").Errorf("from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultSMTPPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSMTPTimeout
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Port == implicitTLSPort {
		opts = append(opts, mail.WithSSL())
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("SMTP_CLIENT_FAILED").With("host", cfg.Host).Wrap(err)
	}
	return newSMTPNotifier(client, cfg.From, cfg.Retries, logger), nil
}

func newSMTPNotifier(client mailClient, from string, retries uint64, logger *slog.Logger) *SMTPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPNotifier{
		client:    client,
		from:      from,
		retries:   retries,
		retryBase: defaultRetryBase,
		logger:    logger,
	}
}

// Send implements auth.Notifier.
func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return oops.Code("SMTP_INVALID_SENDER").With("from", n.from).Wrap(err)
	}
	if err := msg.To(to); err != nil {
		return oops.Code("SMTP_INVALID_RECIPIENT").Wrap(err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	attempt := 0
	backoff := retry.WithMaxRetries(n.retries, retry.NewExponential(n.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
			n.logger.WarnContext(ctx, "smtp send attempt failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("SMTP_SEND_FAILED").
			With("attempts", attempt).
			With("subject", subject).
			Wrap(err)
	}
	return nil
}

var _ auth.Notifier = (*SMTPNotifier)(nil)
