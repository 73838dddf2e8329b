// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// User represents a registered Plant Logger account.
type User struct {
	ID           ulid.ULID
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser creates a validated User with a fresh ID.
func NewUser(firstName, lastName, email, passwordHash string) (*User, error) {
	if strings.TrimSpace(firstName) == "" || strings.TrimSpace(lastName) == "" {
		return nil, oops.Code("USER_INVALID_NAME").Errorf("first and last name are required")
	}
	if NormalizeEmail(email) == "" {
		return nil, oops.Code("USER_INVALID_EMAIL").Errorf("email is required")
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Identity returns the summary carried by an authenticated session.
func (u *User) Identity() *Identity {
	return &Identity{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// Identity is the user summary held by an authenticated session.
type Identity struct {
	ID        ulid.ULID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

// NormalizeEmail trims surrounding whitespace. Case is preserved.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

// UserRepository manages user persistence.
type UserRepository interface {
	// GetByEmail returns ErrNotFound when no user has the email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Create inserts a user. Returns ErrDuplicateEmail on a uniqueness violation.
	Create(ctx context.Context, user *User) error

	// UpdateEmail changes a user's email. Returns ErrNotFound for an unknown
	// id and ErrDuplicateEmail when another user already owns the address.
	UpdateEmail(ctx context.Context, id ulid.ULID, email string) error

	// UpdatePasswordHash replaces the stored hash.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error

	// ExistsEmailOtherThan reports whether a user other than excludedID owns email.
	ExistsEmailOtherThan(ctx context.Context, email string, excludedID ulid.ULID) (bool, error)
}
