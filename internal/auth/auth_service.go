// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/plantlogger/plantlogger/pkg/errutil"
)

// AuthService provides registration, login, logout, and the session gate.
type AuthService struct {
	users    UserRepository
	sessions SessionStore
	hasher   PasswordHasher
	policy   PasswordPolicy
	logger   *slog.Logger
}

// NewAuthService creates a new AuthService. A nil policy selects
// DefaultPasswordPolicy.
func NewAuthService(users UserRepository, sessions SessionStore, hasher PasswordHasher, policy PasswordPolicy) (*AuthService, error) {
	return NewAuthServiceWithLogger(users, sessions, hasher, policy, slog.Default())
}

// NewAuthServiceWithLogger creates a new AuthService that logs to logger.
func NewAuthServiceWithLogger(users UserRepository, sessions SessionStore, hasher PasswordHasher, policy PasswordPolicy, logger *slog.Logger) (*AuthService, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("user repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("session store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	}
	if policy == nil {
		policy = DefaultPasswordPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		policy:   policy,
		logger:   logger,
	}, nil
}

// dummyPasswordHash is verified when the email is unknown so both login
// branches cost one hash computation. It matches no password.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Register creates a user and returns a new authenticated session.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.normalize()
	if err := in.validate(s.policy); err != nil {
		return nil, oops.Code("AUTH_VALIDATION").
			With("operation", "register").
			Wrapf(ErrValidation, "%s", err.Error())
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.storeFailure(ctx, "AUTH_REGISTER_FAILED", "hash password", err)
	}

	user, err := NewUser(in.FirstName, in.LastName, in.Email, hash)
	if err != nil {
		return nil, oops.Code("AUTH_VALIDATION").
			With("operation", "register").
			Wrapf(ErrValidation, "%s", err.Error())
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, oops.Code("AUTH_DUPLICATE_EMAIL").
				With("email", user.Email).
				Wrapf(ErrDuplicateEmail, "register")
		}
		return nil, s.storeFailure(ctx, "AUTH_REGISTER_FAILED", "insert user", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return s.startSession(ctx, user.Identity())
}

// Login verifies credentials and returns a new authenticated session.
// An unknown email yields ErrUserNotFound; a wrong password yields
// ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	in := loginInput{Email: NormalizeEmail(email), Password: password}
	if err := in.validate(); err != nil {
		return nil, oops.Code("AUTH_VALIDATION").
			With("operation", "login").
			Wrapf(ErrValidation, "%s", err.Error())
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_, _ = s.hasher.Verify(in.Password, dummyPasswordHash) //nolint:errcheck // timing only
			return nil, oops.Code("AUTH_USER_NOT_FOUND").Wrapf(ErrUserNotFound, "login")
		}
		return nil, s.storeFailure(ctx, "AUTH_LOGIN_FAILED", "get user by email", err)
	}

	valid, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return nil, s.storeFailure(ctx, "AUTH_LOGIN_FAILED", "verify password", err)
	}
	if !valid {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").
			With("user_id", user.ID.String()).
			Wrapf(ErrInvalidCredentials, "login")
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, in.Password)
	}

	return s.startSession(ctx, user.Identity())
}

// Logout destroys the session. Empty and unknown ids succeed.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Destroy(ctx, sessionID); err != nil {
		return s.storeFailure(ctx, "AUTH_LOGOUT_FAILED", "destroy session", err)
	}
	return nil
}

// RequireAuth returns the session when it carries an identity.
func (s *AuthService) RequireAuth(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, oops.Code("AUTH_UNAUTHENTICATED").Wrapf(ErrUnauthenticated, "no session")
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_UNAUTHENTICATED").Wrapf(ErrUnauthenticated, "unknown session")
		}
		return nil, s.storeFailure(ctx, "AUTH_SESSION_LOOKUP_FAILED", "get session", err)
	}
	if !session.IsAuthenticated() {
		return nil, oops.Code("AUTH_UNAUTHENTICATED").Wrapf(ErrUnauthenticated, "anonymous session")
	}
	return session, nil
}

func (s *AuthService) startSession(ctx context.Context, identity *Identity) (*Session, error) {
	session, err := s.sessions.Create(ctx)
	if err != nil {
		return nil, s.storeFailure(ctx, "AUTH_SESSION_CREATE_FAILED", "create session", err)
	}
	session.SetIdentity(identity)
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, s.storeFailure(ctx, "AUTH_SESSION_CREATE_FAILED", "save session", err)
	}
	return session, nil
}

// upgradeHash re-hashes legacy passwords. Login succeeds either way.
func (s *AuthService) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash failed", "user_id", user.ID.String(), "error", err)
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade not persisted", "user_id", user.ID.String(), "error", err)
		return
	}
	user.PasswordHash = newHash
}

func (s *AuthService) storeFailure(ctx context.Context, code, operation string, err error) error {
	wrapped := storeError(code, operation, err)
	errutil.LogErrorContext(ctx, s.logger, "auth store failure", wrapped)
	return wrapped
}
