// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/plantlogger/plantlogger/internal/auth"
)

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool Pool
	now  func() time.Time
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool Pool) *UserRepository {
	return &UserRepository{pool: pool, now: time.Now}
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, email, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email)

	var (
		idStr string
		user  auth.User
	)
	err := row.Scan(&idStr, &user.FirstName, &user.LastName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	user.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}
	return &user, nil
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, first_name, last_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		user.ID.String(),
		user.FirstName,
		user.LastName,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("USER_EMAIL_TAKEN").
			With("email", user.Email).
			Wrap(auth.ErrDuplicateEmail)
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return nil
}

// UpdateEmail changes a user's email address.
func (r *UserRepository) UpdateEmail(ctx context.Context, id ulid.ULID, email string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET email = $2, updated_at = $3 WHERE id = $1
	`, id.String(), email, r.now())
	if isUniqueViolation(err) {
		return oops.Code("USER_EMAIL_TAKEN").
			With("user_id", id.String()).
			Wrap(auth.ErrDuplicateEmail)
	}
	if err != nil {
		return oops.Code("USER_UPDATE_EMAIL_FAILED").
			With("operation", "update email").
			With("user_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePasswordHash replaces a user's password hash.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1
	`, id.String(), hash, r.now())
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password hash").
			With("user_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// ExistsEmailOtherThan reports whether a user other than excludedID owns email.
func (r *UserRepository) ExistsEmailOtherThan(ctx context.Context, email string, excludedID ulid.ULID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND id <> $2)
	`, email, excludedID.String()).Scan(&exists)
	if err != nil {
		return false, oops.Code("USER_EXISTS_CHECK_FAILED").
			With("operation", "check email ownership").
			Wrap(err)
	}
	return exists, nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
