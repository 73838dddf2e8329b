// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/plantlogger/plantlogger/pkg/errutil"
)

// Authenticator is the session gate the email-change flow runs behind.
type Authenticator interface {
	RequireAuth(ctx context.Context, sessionID string) (*Session, error)
}

// EmailChangeService runs the request/confirm/cancel protocol, using the
// session's pending slot as verification state.
type EmailChangeService struct {
	auth     Authenticator
	users    UserRepository
	sessions SessionStore
	notifier Notifier

	now                     func() time.Time
	generateCode            CodeGenerator
	codeTTL                 time.Duration
	rollbackOnNotifyFailure bool
	logger                  *slog.Logger
}

// EmailChangeOption configures an EmailChangeService.
type EmailChangeOption func(*EmailChangeService)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) EmailChangeOption {
	return func(s *EmailChangeService) { s.now = now }
}

// WithCodeGenerator overrides verification code generation.
func WithCodeGenerator(gen CodeGenerator) EmailChangeOption {
	return func(s *EmailChangeService) { s.generateCode = gen }
}

// WithCodeTTL overrides the verification code lifetime.
func WithCodeTTL(ttl time.Duration) EmailChangeOption {
	return func(s *EmailChangeService) { s.codeTTL = ttl }
}

// WithRollbackOnNotifyFailure clears the pending slot when the
// verification mail cannot be sent.
func WithRollbackOnNotifyFailure(rollback bool) EmailChangeOption {
	return func(s *EmailChangeService) { s.rollbackOnNotifyFailure = rollback }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) EmailChangeOption {
	return func(s *EmailChangeService) { s.logger = logger }
}

// NewEmailChangeService creates a new EmailChangeService.
func NewEmailChangeService(authn Authenticator, users UserRepository, sessions SessionStore, notifier Notifier, opts ...EmailChangeOption) (*EmailChangeService, error) {
	if authn == nil {
		return nil, oops.Code("EMAIL_CHANGE_INVALID_SERVICE").Errorf("authenticator is required")
	}
	if users == nil {
		return nil, oops.Code("EMAIL_CHANGE_INVALID_SERVICE").Errorf("user repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("EMAIL_CHANGE_INVALID_SERVICE").Errorf("session store is required")
	}
	if notifier == nil {
		return nil, oops.Code("EMAIL_CHANGE_INVALID_SERVICE").Errorf("notifier is required")
	}

	s := &EmailChangeService{
		auth:         authn,
		users:        users,
		sessions:     sessions,
		notifier:     notifier,
		now:          time.Now,
		generateCode: GenerateVerificationCode,
		codeTTL:      EmailChangeCodeTTL,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codeTTL <= 0 {
		return nil, oops.Code("EMAIL_CHANGE_INVALID_SERVICE").Errorf("code ttl must be positive, got %s", s.codeTTL)
	}
	return s, nil
}

// RequestChange stores a pending change and mails the code to the current
// address. The pending state is committed before the mail is sent.
func (s *EmailChangeService) RequestChange(ctx context.Context, sessionID, newEmail string) (*EmailChangeRequest, error) {
	session, err := s.auth.RequireAuth(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	identity := session.Identity

	newEmail = NormalizeEmail(newEmail)
	if newEmail == "" {
		return nil, oops.Code("EMAIL_CHANGE_VALIDATION").Wrapf(ErrValidation, "new email is required")
	}
	if newEmail == identity.Email {
		return nil, oops.Code("EMAIL_CHANGE_SAME_EMAIL").
			With("user_id", identity.ID.String()).
			Wrapf(ErrSameEmail, "request change")
	}

	taken, err := s.users.ExistsEmailOtherThan(ctx, newEmail, identity.ID)
	if err != nil {
		return nil, s.storeFailure(ctx, "EMAIL_CHANGE_REQUEST_FAILED", "check email availability", err)
	}
	if taken {
		return nil, oops.Code("EMAIL_CHANGE_EMAIL_IN_USE").
			With("user_id", identity.ID.String()).
			Wrapf(ErrEmailInUse, "request change")
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, s.storeFailure(ctx, "EMAIL_CHANGE_REQUEST_FAILED", "generate code", err)
	}
	req, err := NewEmailChangeRequest(code, newEmail, identity.Email, s.now().Add(s.codeTTL))
	if err != nil {
		return nil, s.storeFailure(ctx, "EMAIL_CHANGE_REQUEST_FAILED", "build request", err)
	}
	if err := session.SetPendingEmailChange(req); err != nil {
		return nil, s.storeFailure(ctx, "EMAIL_CHANGE_REQUEST_FAILED", "set pending change", err)
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, s.storeFailure(ctx, "EMAIL_CHANGE_REQUEST_FAILED", "save session", err)
	}

	msg := VerificationMessage(code, s.codeTTL)
	if err := s.notifier.Send(ctx, identity.Email, msg.Subject, msg.Body); err != nil {
		if s.rollbackOnNotifyFailure {
			session.ClearPendingEmailChange()
			if saveErr := s.sessions.Save(ctx, session); saveErr != nil {
				s.logger.WarnContext(ctx, "pending email change rollback not saved",
					"user_id", identity.ID.String(), "error", saveErr)
			}
		}
		wrapped := oops.Code("EMAIL_CHANGE_NOTIFY_FAILED").
			With("user_id", identity.ID.String()).
			With("rolled_back", s.rollbackOnNotifyFailure).
			Wrap(fmt.Errorf("%w: %w", ErrNotification, err))
		errutil.LogErrorContext(ctx, s.logger, "verification email not sent", wrapped)
		return nil, wrapped
	}

	s.logger.InfoContext(ctx, "email change requested", "user_id", identity.ID.String(), "expires_at", req.ExpiresAt)
	return req, nil
}

// ConfirmChange applies the pending change when code matches before expiry
// and the new address is still free. Returns the updated identity.
func (s *EmailChangeService) ConfirmChange(ctx context.Context, sessionID, code string) (*Identity, error) {
	session, err := s.auth.RequireAuth(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	identity := session.Identity

	pending := session.PendingEmailChange
	if pending == nil {
		return nil, oops.Code("EMAIL_CHANGE_NONE_PENDING").
			With("user_id", identity.ID.String()).
			Wrapf(ErrNoPendingChange, "confirm change")
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, oops.Code("EMAIL_CHANGE_VALIDATION").Wrapf(ErrValidation, "verification code is required")
	}

	if pending.IsExpiredAt(s.now()) {
		session.ClearPendingEmailChange()
		if err := s.sessions.Save(ctx, session); err != nil {
			return nil, s.storeFailure(ctx, "EMAIL_CHANGE_CONFIRM_FAILED", "clear expired change", err)
		}
		return nil, oops.Code("EMAIL_CHANGE_EXPIRED").
			With("user_id", identity.ID.String()).
			With("expired_at", pending.ExpiresAt).
			Wrapf(ErrExpired, "confirm change")
	}

	if !pending.Matches(code) {
		return nil, oops.Code("EMAIL_CHANGE_INVALID_CODE").
			With("user_id", identity.ID.String()).
			Wrapf(ErrInvalidCode, "confirm change")
	}

	taken, err := s.users.ExistsEmailOtherThan(ctx, pending.NewEmail, identity.ID)
	if err != nil {
		return nil, s.storeFailure(ctx, "EMAIL_CHANGE_CONFIRM_FAILED", "recheck email availability", err)
	}
	if taken {
		return nil, s.emailInUse(identity)
	}

	if err := s.users.UpdateEmail(ctx, identity.ID, pending.NewEmail); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, s.emailInUse(identity)
		}
		return nil, s.storeFailure(ctx, "EMAIL_CHANGE_CONFIRM_FAILED", "update email", err)
	}

	oldEmail, newEmail := pending.OldEmail, pending.NewEmail
	identity.Email = newEmail
	session.ClearPendingEmailChange()
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, s.storeFailure(ctx, "EMAIL_CHANGE_CONFIRM_FAILED", "save session", err)
	}

	s.logger.InfoContext(ctx, "email changed", "user_id", identity.ID.String())

	notice := ChangeNoticeMessage(oldEmail, newEmail)
	if err := s.notifier.Send(ctx, oldEmail, notice.Subject, notice.Body); err != nil {
		s.logger.WarnContext(ctx, "email change notice not sent",
			"user_id", identity.ID.String(), "error", err)
	}

	updated := *identity
	return &updated, nil
}

// CancelChange clears any pending change. Idempotent.
func (s *EmailChangeService) CancelChange(ctx context.Context, sessionID string) error {
	session, err := s.auth.RequireAuth(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.PendingEmailChange == nil {
		return nil
	}
	session.ClearPendingEmailChange()
	if err := s.sessions.Save(ctx, session); err != nil {
		return s.storeFailure(ctx, "EMAIL_CHANGE_CANCEL_FAILED", "save session", err)
	}
	return nil
}

// Pending returns the session's live pending change, or nil when there is
// none or it has expired. Expired state is left for ConfirmChange to clear.
func (s *EmailChangeService) Pending(ctx context.Context, sessionID string) (*EmailChangeRequest, error) {
	session, err := s.auth.RequireAuth(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	pending := session.PendingEmailChange
	if pending == nil || pending.IsExpiredAt(s.now()) {
		return nil, nil
	}
	return pending, nil
}

func (s *EmailChangeService) emailInUse(identity *Identity) error {
	return oops.Code("EMAIL_CHANGE_EMAIL_IN_USE").
		With("user_id", identity.ID.String()).
		Wrapf(ErrEmailInUse, "confirm change")
}

func (s *EmailChangeService) storeFailure(ctx context.Context, code, operation string, err error) error {
	wrapped := storeError(code, operation, err)
	errutil.LogErrorContext(ctx, s.logger, "email change store failure", wrapped)
	return wrapped
}
