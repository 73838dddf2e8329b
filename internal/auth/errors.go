// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Repository-level sentinels.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned by a UserRepository when an insert or
	// update would violate email uniqueness. Services surface it unchanged
	// from Register and as ErrEmailInUse from ConfirmChange.
	ErrDuplicateEmail = errors.New("email already registered")
)

// Service-level error kinds. Every error returned by AuthService and
// EmailChangeService wraps exactly one of these.
var (
	ErrValidation         = errors.New("validation failed")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrSameEmail          = errors.New("new email matches current email")
	ErrEmailInUse         = errors.New("email in use")
	ErrNoPendingChange    = errors.New("no pending email change")
	ErrExpired            = errors.New("verification code expired")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrNotification       = errors.New("notification failed")
	ErrStore              = errors.New("store failure")
)

// Kind names an error category for callers that need to branch on it,
// such as the HTTP layer choosing a status code.
type Kind string

// Error kinds.
const (
	KindValidation         Kind = "validation_error"
	KindDuplicateEmail     Kind = "duplicate_email"
	KindUserNotFound       Kind = "user_not_found"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthenticated    Kind = "unauthenticated"
	KindSameEmail          Kind = "same_email"
	KindEmailInUse         Kind = "email_in_use"
	KindNoPendingChange    Kind = "no_pending_change"
	KindExpired            Kind = "expired"
	KindInvalidCode        Kind = "invalid_code"
	KindNotification       Kind = "notification_error"
	KindStore              Kind = "store_error"
	KindUnknown            Kind = "unknown"
)

var kindTable = []struct {
	err  error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrDuplicateEmail, KindDuplicateEmail},
	{ErrUserNotFound, KindUserNotFound},
	{ErrInvalidCredentials, KindInvalidCredentials},
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrSameEmail, KindSameEmail},
	{ErrEmailInUse, KindEmailInUse},
	{ErrNoPendingChange, KindNoPendingChange},
	{ErrExpired, KindExpired},
	{ErrInvalidCode, KindInvalidCode},
	{ErrNotification, KindNotification},
	{ErrStore, KindStore},
}

// KindOf classifies err. Store failures are checked last so a wrapped
// repository sentinel never masks the service-level kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, entry := range kindTable {
		if entry.err == ErrStore {
			continue
		}
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	if errors.Is(err, ErrStore) {
		return KindStore
	}
	return KindUnknown
}

// storeError wraps a collaborator failure so it classifies as ErrStore
// while keeping the original error in the chain.
func storeError(code, operation string, err error) error {
	return oops.Code(code).
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrStore, err))
}
