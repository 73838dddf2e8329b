// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

// Package auth implements Plant Logger's session-based authentication and
// the two-step email-change verification flow.
//
// # Domain Types
//
//   - User - a registered account, created through NewUser
//   - Identity - the user summary a Session carries once authenticated
//   - Session - per-browser state, including at most one pending EmailChangeRequest
//   - EmailChangeRequest - a short-lived verification record, created through NewEmailChangeRequest
//
// # Services
//
//   - AuthService - register, login, logout, and the RequireAuth gate
//   - EmailChangeService - request, confirm, and cancel an email change
//
// Services are created with New*Service constructors that validate their
// dependencies. Persistence, hashing, and mail delivery are collaborators
// behind the UserRepository, SessionStore, PasswordHasher, and Notifier
// interfaces.
//
// # Errors
//
// Every service error wraps one sentinel (ErrValidation, ErrUserNotFound,
// ErrEmailInUse, ...). Use errors.Is or KindOf to classify.
package auth
