// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

// Package session provides auth.SessionStore backends held in process
// memory or in Redis.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/plantlogger/plantlogger/internal/auth"
)

// MemoryStore keeps sessions in a map keyed by token hash. Sessions are
// copied in and out so callers only change stored state through Save.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*auth.Session
	ttl      time.Duration
	now      func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the time source.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an empty store whose sessions live for ttl.
func NewMemoryStore(ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	if ttl <= 0 {
		ttl = auth.DefaultSessionTTL
	}
	s := &MemoryStore{
		sessions: make(map[string]*auth.Session),
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create implements auth.SessionStore.
func (s *MemoryStore) Create(_ context.Context) (*auth.Session, error) {
	session, err := auth.NewSession(s.now(), s.ttl)
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").Wrap(err)
	}

	s.mu.Lock()
	s.sessions[auth.HashSessionToken(session.ID)] = cloneSession(session)
	s.mu.Unlock()

	return session, nil
}

// Get implements auth.SessionStore.
func (s *MemoryStore) Get(_ context.Context, id string) (*auth.Session, error) {
	key := auth.HashSessionToken(id)

	s.mu.RLock()
	stored, ok := s.sessions[key]
	s.mu.RUnlock()

	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if stored.IsExpiredAt(s.now()) {
		s.mu.Lock()
		delete(s.sessions, key)
		s.mu.Unlock()
		return nil, oops.Code("SESSION_NOT_FOUND").With("reason", "expired").Wrap(auth.ErrNotFound)
	}

	session := cloneSession(stored)
	session.ID = id
	return session, nil
}

// Save implements auth.SessionStore.
func (s *MemoryStore) Save(_ context.Context, session *auth.Session) error {
	if err := session.Validate(); err != nil {
		return oops.Code("SESSION_SAVE_FAILED").Wrap(err)
	}
	key := auth.HashSessionToken(session.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[key]
	if !ok || stored.IsExpiredAt(s.now()) {
		delete(s.sessions, key)
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	s.sessions[key] = cloneSession(session)
	return nil
}

// Destroy implements auth.SessionStore.
func (s *MemoryStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, auth.HashSessionToken(id))
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions expired at now and returns how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, session := range s.sessions {
		if session.IsExpiredAt(now) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is cancelled.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(s.now()); removed > 0 && logger != nil {
				logger.Debug("expired sessions swept", "removed", removed)
			}
		}
	}
}

func cloneSession(src *auth.Session) *auth.Session {
	dst := *src
	if src.Identity != nil {
		identity := *src.Identity
		dst.Identity = &identity
	}
	if src.PendingEmailChange != nil {
		pending := *src.PendingEmailChange
		dst.PendingEmailChange = &pending
	}
	return &dst
}

var _ auth.SessionStore = (*MemoryStore)(nil)
