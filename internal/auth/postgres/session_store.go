// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/plantlogger/plantlogger/internal/auth"
)

// SessionStore implements auth.SessionStore using the web_sessions table.
// Rows are keyed by token hash; the session body is stored as JSONB.
type SessionStore struct {
	pool Pool
	ttl  time.Duration
	now  func() time.Time
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(pool Pool, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = auth.DefaultSessionTTL
	}
	return &SessionStore{pool: pool, ttl: ttl, now: time.Now}
}

// Create implements auth.SessionStore.
func (r *SessionStore) Create(ctx context.Context) (*auth.Session, error) {
	session, err := auth.NewSession(r.now(), r.ttl)
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").Wrap(err)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return nil, oops.Code("SESSION_ENCODE_FAILED").Wrap(err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO web_sessions (token_hash, user_id, data, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		auth.HashSessionToken(session.ID),
		nil,
		data,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert web_session").
			Wrap(err)
	}
	return session, nil
}

// Get implements auth.SessionStore.
func (r *SessionStore) Get(ctx context.Context, id string) (*auth.Session, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `
		SELECT data FROM web_sessions WHERE token_hash = $1 AND expires_at > $2
	`, auth.HashSessionToken(id), r.now()).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	var session auth.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").Wrap(err)
	}
	session.ID = id
	return &session, nil
}

// Save implements auth.SessionStore.
func (r *SessionStore) Save(ctx context.Context, session *auth.Session) error {
	if err := session.Validate(); err != nil {
		return oops.Code("SESSION_SAVE_FAILED").Wrap(err)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return oops.Code("SESSION_ENCODE_FAILED").Wrap(err)
	}

	var userID *string
	if session.Identity != nil {
		s := session.Identity.ID.String()
		userID = &s
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE web_sessions SET user_id = $2, data = $3
		WHERE token_hash = $1 AND expires_at > $4
	`, auth.HashSessionToken(session.ID), userID, data, r.now())
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").
			With("operation", "update web_session").
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// Destroy implements auth.SessionStore.
func (r *SessionStore) Destroy(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM web_sessions WHERE token_hash = $1`, auth.HashSessionToken(id))
	if err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "delete web_session").
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes expired sessions and returns the count.
func (r *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM web_sessions WHERE expires_at <= $1`, r.now())
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

var _ auth.SessionStore = (*SessionStore)(nil)
