// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes = 32 // 64 hex chars
	DefaultSessionTTL = 24 * time.Hour
)

// Session is the server-side state of one browser. ID is the opaque token
// held in the client's cookie; stores persist only its hash.
type Session struct {
	ID                 string              `json:"-"`
	Identity           *Identity           `json:"identity,omitempty"`
	PendingEmailChange *EmailChangeRequest `json:"pending_email_change,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	ExpiresAt          time.Time           `json:"expires_at"`
}

// NewSession creates an anonymous session with a fresh token.
func NewSession(now time.Time, ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		return nil, oops.Code("SESSION_INVALID_TTL").Errorf("session ttl must be positive, got %s", ttl)
	}
	token, err := GenerateSessionToken()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        token,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// IsAuthenticated reports whether an identity is attached.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.Identity != nil
}

// SetIdentity attaches an identity. Passing nil signs the session out and
// drops any pending email change with it.
func (s *Session) SetIdentity(identity *Identity) {
	s.Identity = identity
	if identity == nil {
		s.PendingEmailChange = nil
	}
}

// SetPendingEmailChange fills the single pending slot, replacing any
// earlier request.
func (s *Session) SetPendingEmailChange(req *EmailChangeRequest) error {
	if !s.IsAuthenticated() {
		return oops.Code("SESSION_NOT_AUTHENTICATED").Errorf("pending email change requires an authenticated session")
	}
	s.PendingEmailChange = req
	return nil
}

// ClearPendingEmailChange empties the pending slot.
func (s *Session) ClearPendingEmailChange() {
	s.PendingEmailChange = nil
}

// IsExpiredAt returns true if the session would be expired at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// Validate checks the structural invariants stores rely on.
func (s *Session) Validate() error {
	if s.ID == "" {
		return oops.Code("SESSION_INVALID_ID").Errorf("session id cannot be empty")
	}
	if s.ExpiresAt.IsZero() {
		return oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}
	if s.PendingEmailChange != nil && s.Identity == nil {
		return oops.Code("SESSION_ORPHAN_PENDING_CHANGE").Errorf("pending email change without identity")
	}
	return nil
}

// GenerateSessionToken creates a random hex token.
func GenerateSessionToken() (string, error) {
	b := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("SESSION_TOKEN_FAILED").Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// HashSessionToken returns the SHA-256 hex digest stores key sessions by.
func HashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// SessionStore persists sessions keyed by their token.
type SessionStore interface {
	// Create starts and persists a new anonymous session.
	Create(ctx context.Context) (*Session, error)

	// Get returns ErrNotFound for unknown or expired sessions.
	Get(ctx context.Context, id string) (*Session, error)

	// Save writes the session back. Returns ErrNotFound when the session
	// no longer exists.
	Save(ctx context.Context, session *Session) error

	// Destroy removes the session. Unknown ids are not an error.
	Destroy(ctx context.Context, id string) error
}
