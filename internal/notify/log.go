// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/plantlogger/plantlogger/internal/auth"
)

// LogNotifier writes messages to the log instead of sending them. Meant
// for local development, where codes are read from the server output.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Send implements auth.Notifier.
func (n *LogNotifier) Send(ctx context.Context, to, subject, body string) error {
	n.logger.InfoContext(ctx, "notification", "to", to, "subject", subject, "body", body)
	return nil
}

var _ auth.Notifier = (*LogNotifier)(nil)
