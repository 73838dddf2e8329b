// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package auth

import (
	"context"
	"fmt"
	"time"
)

// Notifier delivers a plain-text message to an email address.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
}

// VerificationMessage is sent to the current address when a change is requested.
func VerificationMessage(code string, ttl time.Duration) Message {
	return Message{
		Subject: "Plant Logger: Email change verification code",
		Body: fmt.Sprintf("You requested to change your Plant Logger email.\n\n"+
			"Verification code: %s\nThis code expires in %s.\n\n"+
			"If you did not request this, you can ignore this email.", code, humanDuration(ttl)),
	}
}

// ChangeNoticeMessage is sent to the previous address after a confirmed change.
func ChangeNoticeMessage(oldEmail, newEmail string) Message {
	return Message{
		Subject: "Plant Logger: Email address changed",
		Body: fmt.Sprintf("Your Plant Logger account email has been changed from %s to %s.\n\n"+
			"If you did not make this change, please contact support immediately.", oldEmail, newEmail),
	}
}

func humanDuration(d time.Duration) string {
	minutes := int(d.Round(time.Minute) / time.Minute)
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
