// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package auth_test

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/plantlogger/plantlogger/internal/auth"
)

// fakeUsers is an in-memory UserRepository with a unique email index.
type fakeUsers struct {
	mu    sync.Mutex
	byID  map[ulid.ULID]*auth.User
	email map[string]ulid.ULID
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[ulid.ULID]*auth.User{}, email: map[string]ulid.ULID{}}
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.email[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	u := *f.byID[id]
	return &u, nil
}

func (f *fakeUsers) Create(_ context.Context, user *auth.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.email[user.Email]; taken {
		return auth.ErrDuplicateEmail
	}
	u := *user
	f.byID[u.ID] = &u
	f.email[u.Email] = u.ID
	return nil
}

func (f *fakeUsers) UpdateEmail(_ context.Context, id ulid.ULID, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	if owner, taken := f.email[email]; taken && owner != id {
		return auth.ErrDuplicateEmail
	}
	delete(f.email, u.Email)
	u.Email = email
	u.UpdatedAt = time.Now()
	f.email[email] = id
	return nil
}

func (f *fakeUsers) UpdatePasswordHash(_ context.Context, id ulid.ULID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeUsers) ExistsEmailOtherThan(_ context.Context, email string, excludedID ulid.ULID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.email[email]
	return ok && owner != excludedID, nil
}

// sentMail is one captured notification.
type sentMail struct {
	To, Subject, Body string
}

// recordingNotifier captures messages and can be told to fail.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (n *recordingNotifier) messages() []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMail(nil), n.sent...)
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
