// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package notify

import (
	"context"

	"github.com/plantlogger/plantlogger/internal/auth"
)

// Outcome labels passed to a Recorder.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// Recorder receives one call per delivery attempt.
type Recorder interface {
	RecordNotification(outcome string)
}

type instrumented struct {
	next     auth.Notifier
	recorder Recorder
}

// Instrument wraps n so every Send is reported to recorder.
func Instrument(n auth.Notifier, recorder Recorder) auth.Notifier {
	if recorder == nil {
		return n
	}
	return &instrumented{next: n, recorder: recorder}
}

func (i *instrumented) Send(ctx context.Context, to, subject, body string) error {
	err := i.next.Send(ctx, to, subject, body)
	if err != nil {
		i.recorder.RecordNotification(OutcomeFailed)
		return err //nolint:wrapcheck // passthrough decorator
	}
	i.recorder.RecordNotification(OutcomeSent)
	return nil
}
