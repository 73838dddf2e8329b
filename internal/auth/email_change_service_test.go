// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/plantlogger/plantlogger/internal/auth"
	"github.com/plantlogger/plantlogger/internal/auth/mocks"
	"github.com/plantlogger/plantlogger/internal/session"
	"github.com/plantlogger/plantlogger/pkg/errutil"
)

const fixedCode = "482913"

// flow wires real services over in-memory collaborators.
type flow struct {
	users    *fakeUsers
	sessions *session.MemoryStore
	notifier *recordingNotifier
	clock    *clock
	auth     *auth.AuthService
	svc      *auth.EmailChangeService
}

func newFlow(t *testing.T, opts ...auth.EmailChangeOption) *flow {
	t.Helper()
	f := &flow{
		users:    newFakeUsers(),
		notifier: &recordingNotifier{},
		clock:    &clock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.sessions = session.NewMemoryStore(auth.DefaultSessionTTL, session.WithMemoryClock(f.clock.Now))

	authSvc, err := auth.NewAuthService(f.users, f.sessions, fastHasher(), nil)
	require.NoError(t, err)
	f.auth = authSvc

	opts = append([]auth.EmailChangeOption{
		auth.WithClock(f.clock.Now),
		auth.WithCodeGenerator(func() (string, error) { return fixedCode, nil }),
	}, opts...)
	svc, err := auth.NewEmailChangeService(authSvc, f.users, f.sessions, f.notifier, opts...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *flow) register(t *testing.T, email string) *auth.Session {
	t.Helper()
	s, err := f.auth.Register(context.Background(), auth.RegisterInput{
		FirstName: "Ivy",
		LastName:  "Green",
		Email:     email,
		Password:  "Monstera#12",
	})
	require.NoError(t, err)
	return s
}

func (f *flow) reload(t *testing.T, id string) *auth.Session {
	t.Helper()
	s, err := f.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	return s
}

func TestNewEmailChangeService_NilDependencies(t *testing.T) {
	f := newFlow(t)
	n := &recordingNotifier{}

	tests := []struct {
		name    string
		build   func() (*auth.EmailChangeService, error)
		message string
	}{
		{"nil authenticator", func() (*auth.EmailChangeService, error) {
			return auth.NewEmailChangeService(nil, f.users, f.sessions, n)
		}, "authenticator is required"},
		{"nil users", func() (*auth.EmailChangeService, error) {
			return auth.NewEmailChangeService(f.auth, nil, f.sessions, n)
		}, "user repository is required"},
		{"nil sessions", func() (*auth.EmailChangeService, error) {
			return auth.NewEmailChangeService(f.auth, f.users, nil, n)
		}, "session store is required"},
		{"nil notifier", func() (*auth.EmailChangeService, error) {
			return auth.NewEmailChangeService(f.auth, f.users, f.sessions, nil)
		}, "notifier is required"},
		{"non-positive ttl", func() (*auth.EmailChangeService, error) {
			return auth.NewEmailChangeService(f.auth, f.users, f.sessions, n, auth.WithCodeTTL(0))
		}, "code ttl must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := tt.build()
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.message)
			errutil.AssertErrorCode(t, err, "EMAIL_CHANGE_INVALID_SERVICE")
		})
	}
}

func TestRegister_SecondAttemptIsDuplicate(t *testing.T) {
	f := newFlow(t)
	f.register(t, "ivy@example.com")

	_, err := f.auth.Register(context.Background(), auth.RegisterInput{
		FirstName: "Other", LastName: "Person", Email: "ivy@example.com", Password: "Monstera#12",
	})
	errutil.AssertErrorIs(t, err, auth.ErrDuplicateEmail, "AUTH_DUPLICATE_EMAIL")
}

func TestLogin_KindsNeverConflated(t *testing.T) {
	f := newFlow(t)
	f.register(t, "ivy@example.com")
	ctx := context.Background()

	s, err := f.auth.Login(ctx, "ivy@example.com", "Monstera#12")
	require.NoError(t, err)
	assert.Equal(t, "ivy@example.com", s.Identity.Email)

	_, err = f.auth.Login(ctx, "ivy@example.com", "Monstera#13")
	assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))

	_, err = f.auth.Login(ctx, "fern@example.com", "Monstera#12")
	assert.Equal(t, auth.KindUserNotFound, auth.KindOf(err))
}

func TestEmailChange_RequestAndConfirm(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	s := f.register(t, "ivy@example.com")

	req, err := f.svc.RequestChange(ctx, s.ID, "  ivy.new@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "ivy.new@example.com", req.NewEmail)
	assert.Equal(t, "ivy@example.com", req.OldEmail)
	assert.Equal(t, f.clock.Now().Add(auth.EmailChangeCodeTTL), req.ExpiresAt)

	mail := f.notifier.messages()
	require.Len(t, mail, 1)
	assert.Equal(t, "ivy@example.com", mail[0].To, "code goes to the current address")
	assert.Contains(t, mail[0].Body, fixedCode)

	identity, err := f.svc.ConfirmChange(ctx, s.ID, " "+fixedCode+" ")
	require.NoError(t, err)
	assert.Equal(t, "ivy.new@example.com", identity.Email)

	stored := f.reload(t, s.ID)
	assert.Equal(t, "ivy.new@example.com", stored.Identity.Email)
	assert.Nil(t, stored.PendingEmailChange)

	_, err = f.users.GetByEmail(ctx, "ivy.new@example.com")
	require.NoError(t, err)
	_, err = f.users.GetByEmail(ctx, "ivy@example.com")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	mail = f.notifier.messages()
	require.Len(t, mail, 2)
	assert.Equal(t, "ivy@example.com", mail[1].To, "notice goes to the old address")
	assert.Equal(t, "Plant Logger: Email address changed", mail[1].Subject)

	_, err = f.svc.ConfirmChange(ctx, s.ID, fixedCode)
	errutil.AssertErrorIs(t, err, auth.ErrNoPendingChange, "EMAIL_CHANGE_NONE_PENDING")

	// The new address now logs in.
	_, err = f.auth.Login(ctx, "ivy.new@example.com", "Monstera#12")
	require.NoError(t, err)
}

func TestEmailChange_ConfirmAfterExpiry(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	s := f.register(t, "ivy@example.com")

	_, err := f.svc.RequestChange(ctx, s.ID, "ivy.new@example.com")
	require.NoError(t, err)

	f.clock.Advance(auth.EmailChangeCodeTTL)
	pending, err := f.svc.Pending(ctx, s.ID)
	require.NoError(t, err)
	assert.NotNil(t, pending, "still valid at the expiry instant")

	f.clock.Advance(time.Second)
	pending, err = f.svc.Pending(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, pending, "expired requests are hidden")

	_, err = f.svc.ConfirmChange(ctx, s.ID, fixedCode)
	errutil.AssertErrorIs(t, err, auth.ErrExpired, "EMAIL_CHANGE_EXPIRED")
	assert.Nil(t, f.reload(t, s.ID).PendingEmailChange)

	_, err = f.svc.ConfirmChange(ctx, s.ID, fixedCode)
	errutil.AssertErrorIs(t, err, auth.ErrNoPendingChange, "EMAIL_CHANGE_NONE_PENDING")

	stored, err := f.users.GetByEmail(ctx, "ivy@example.com")
	require.NoError(t, err)
	assert.Equal(t, s.Identity.ID, stored.ID, "email unchanged")
}

func TestEmailChange_WrongCodeKeepsPending(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	s := f.register(t, "ivy@example.com")
	_, err := f.svc.RequestChange(ctx, s.ID, "ivy.new@example.com")
	require.NoError(t, err)

	for _, wrong := range []string{"482914", "4829 13", "48291", "4829130"} {
		_, err := f.svc.ConfirmChange(ctx, s.ID, wrong)
		errutil.AssertErrorIs(t, err, auth.ErrInvalidCode, "EMAIL_CHANGE_INVALID_CODE")
		require.NotNil(t, f.reload(t, s.ID).PendingEmailChange, "code %q", wrong)
	}

	_, err = f.svc.ConfirmChange(ctx, s.ID, "   ")
	errutil.AssertErrorIs(t, err, auth.ErrValidation, "EMAIL_CHANGE_VALIDATION")

	identity, err := f.svc.ConfirmChange(ctx, s.ID, fixedCode)
	require.NoError(t, err)
	assert.Equal(t, "ivy.new@example.com", identity.Email)
}

func TestEmailChange_CancelIsIdempotent(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	s := f.register(t, "ivy@example.com")
	_, err := f.svc.RequestChange(ctx, s.ID, "ivy.new@example.com")
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelChange(ctx, s.ID))
	require.NoError(t, f.svc.CancelChange(ctx, s.ID))
	assert.Nil(t, f.reload(t, s.ID).PendingEmailChange)

	_, err = f.svc.ConfirmChange(ctx, s.ID, fixedCode)
	errutil.AssertErrorIs(t, err, auth.ErrNoPendingChange, "EMAIL_CHANGE_NONE_PENDING")
}

func TestEmailChange_AddressTakenBeforeConfirm(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com")

	_, err := f.svc.RequestChange(ctx, a.ID, "new@example.com")
	require.NoError(t, err)

	f.register(t, "new@example.com")

	_, err = f.svc.ConfirmChange(ctx, a.ID, fixedCode)
	errutil.AssertErrorIs(t, err, auth.ErrEmailInUse, "EMAIL_CHANGE_EMAIL_IN_USE")

	stored, err := f.users.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.Identity.ID, stored.ID)
}

func TestEmailChange_RequestRejections(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	s := f.register(t, "ivy@example.com")
	f.register(t, "fern@example.com")

	_, err := f.svc.RequestChange(ctx, s.ID, "   ")
	errutil.AssertErrorIs(t, err, auth.ErrValidation, "EMAIL_CHANGE_VALIDATION")

	_, err = f.svc.RequestChange(ctx, s.ID, " ivy@example.com")
	errutil.AssertErrorIs(t, err, auth.ErrSameEmail, "EMAIL_CHANGE_SAME_EMAIL")

	_, err = f.svc.RequestChange(ctx, s.ID, "fern@example.com")
	errutil.AssertErrorIs(t, err, auth.ErrEmailInUse, "EMAIL_CHANGE_EMAIL_IN_USE")

	_, err = f.svc.RequestChange(ctx, "", "new@example.com")
	errutil.AssertErrorIs(t, err, auth.ErrUnauthenticated, "AUTH_UNAUTHENTICATED")

	assert.Nil(t, f.reload(t, s.ID).PendingEmailChange)
	assert.Empty(t, f.notifier.messages())
}

func TestEmailChange_SecondRequestReplacesFirst(t *testing.T) {
	codes := []string{"111111", "222222"}
	f := newFlow(t, auth.WithCodeGenerator(func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}))
	ctx := context.Background()
	s := f.register(t, "ivy@example.com")

	_, err := f.svc.RequestChange(ctx, s.ID, "first@example.com")
	require.NoError(t, err)
	_, err = f.svc.RequestChange(ctx, s.ID, "second@example.com")
	require.NoError(t, err)

	_, err = f.svc.ConfirmChange(ctx, s.ID, "111111")
	errutil.AssertErrorIs(t, err, auth.ErrInvalidCode, "EMAIL_CHANGE_INVALID_CODE")

	identity, err := f.svc.ConfirmChange(ctx, s.ID, "222222")
	require.NoError(t, err)
	assert.Equal(t, "second@example.com", identity.Email)
}

func TestEmailChange_NotificationFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("default keeps the pending state", func(t *testing.T) {
		f := newFlow(t)
		s := f.register(t, "ivy@example.com")
		f.notifier.err = errors.New("smtp unavailable")

		_, err := f.svc.RequestChange(ctx, s.ID, "ivy.new@example.com")
		errutil.AssertErrorIs(t, err, auth.ErrNotification, "EMAIL_CHANGE_NOTIFY_FAILED")
		assert.Equal(t, auth.KindNotification, auth.KindOf(err))
		assert.NotNil(t, f.reload(t, s.ID).PendingEmailChange)
	})

	t.Run("rollback clears the pending state", func(t *testing.T) {
		f := newFlow(t, auth.WithRollbackOnNotifyFailure(true))
		s := f.register(t, "ivy@example.com")
		f.notifier.err = errors.New("smtp unavailable")

		_, err := f.svc.RequestChange(ctx, s.ID, "ivy.new@example.com")
		errutil.AssertErrorIs(t, err, auth.ErrNotification, "EMAIL_CHANGE_NOTIFY_FAILED")
		assert.Nil(t, f.reload(t, s.ID).PendingEmailChange)
	})

	t.Run("notice failure after confirm keeps the change", func(t *testing.T) {
		f := newFlow(t)
		s := f.register(t, "ivy@example.com")
		_, err := f.svc.RequestChange(ctx, s.ID, "ivy.new@example.com")
		require.NoError(t, err)
		f.notifier.err = errors.New("smtp unavailable")

		identity, err := f.svc.ConfirmChange(ctx, s.ID, fixedCode)
		require.NoError(t, err)
		assert.Equal(t, "ivy.new@example.com", identity.Email)
	})
}

func TestEmailChange_LogoutDropsPending(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	s := f.register(t, "ivy@example.com")
	_, err := f.svc.RequestChange(ctx, s.ID, "ivy.new@example.com")
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, s.ID))

	_, err = f.svc.ConfirmChange(ctx, s.ID, fixedCode)
	errutil.AssertErrorIs(t, err, auth.ErrUnauthenticated, "AUTH_UNAUTHENTICATED")
}

func TestEmailChange_CollaboratorFailures(t *testing.T) {
	ctx := context.Background()
	identity := testIdentity()

	signedIn := func(t *testing.T) *auth.Session {
		t.Helper()
		s, err := auth.NewSession(time.Now(), time.Hour)
		require.NoError(t, err)
		s.SetIdentity(identity)
		return s
	}

	newService := func(t *testing.T, s *auth.Session) (*auth.EmailChangeService, *mocks.MockUserRepository, *mocks.MockSessionStore, *mocks.MockNotifier) {
		t.Helper()
		users := mocks.NewMockUserRepository(t)
		sessions := mocks.NewMockSessionStore(t)
		notifier := mocks.NewMockNotifier(t)
		sessions.On("Get", ctx, s.ID).Return(s, nil).Maybe()
		authSvc, err := auth.NewAuthService(users, sessions, mocks.NewMockPasswordHasher(t), nil)
		require.NoError(t, err)
		svc, err := auth.NewEmailChangeService(authSvc, users, sessions, notifier,
			auth.WithCodeGenerator(func() (string, error) { return fixedCode, nil }))
		require.NoError(t, err)
		return svc, users, sessions, notifier
	}

	t.Run("availability check failure", func(t *testing.T) {
		s := signedIn(t)
		svc, users, _, _ := newService(t, s)
		users.On("ExistsEmailOtherThan", ctx, "new@example.com", identity.ID).Return(false, errors.New("timeout"))

		_, err := svc.RequestChange(ctx, s.ID, "new@example.com")
		assert.Equal(t, auth.KindStore, auth.KindOf(err))
		errutil.AssertErrorCode(t, err, "EMAIL_CHANGE_REQUEST_FAILED")
	})

	t.Run("code generation failure", func(t *testing.T) {
		s := signedIn(t)
		users := mocks.NewMockUserRepository(t)
		sessions := mocks.NewMockSessionStore(t)
		sessions.On("Get", ctx, s.ID).Return(s, nil)
		users.On("ExistsEmailOtherThan", ctx, "new@example.com", identity.ID).Return(false, nil)
		authSvc, err := auth.NewAuthService(users, sessions, mocks.NewMockPasswordHasher(t), nil)
		require.NoError(t, err)
		svc, err := auth.NewEmailChangeService(authSvc, users, sessions, mocks.NewMockNotifier(t),
			auth.WithCodeGenerator(func() (string, error) { return "", errors.New("entropy") }))
		require.NoError(t, err)

		_, err = svc.RequestChange(ctx, s.ID, "new@example.com")
		assert.Equal(t, auth.KindStore, auth.KindOf(err))
	})

	t.Run("session save failure on request sends nothing", func(t *testing.T) {
		s := signedIn(t)
		svc, users, sessions, _ := newService(t, s)
		users.On("ExistsEmailOtherThan", ctx, "new@example.com", identity.ID).Return(false, nil)
		sessions.On("Save", ctx, s).Return(errors.New("down"))

		_, err := svc.RequestChange(ctx, s.ID, "new@example.com")
		assert.Equal(t, auth.KindStore, auth.KindOf(err))
	})

	t.Run("update racing a registration maps to email in use", func(t *testing.T) {
		s := signedIn(t)
		req, err := auth.NewEmailChangeRequest(fixedCode, "new@example.com", identity.Email, time.Now().Add(time.Minute))
		require.NoError(t, err)
		require.NoError(t, s.SetPendingEmailChange(req))

		svc, users, _, _ := newService(t, s)
		users.On("ExistsEmailOtherThan", ctx, "new@example.com", identity.ID).Return(false, nil)
		users.On("UpdateEmail", ctx, identity.ID, "new@example.com").Return(auth.ErrDuplicateEmail)

		_, err = svc.ConfirmChange(ctx, s.ID, fixedCode)
		errutil.AssertErrorIs(t, err, auth.ErrEmailInUse, "EMAIL_CHANGE_EMAIL_IN_USE")
		assert.NotNil(t, s.PendingEmailChange)
	})

	t.Run("update failure is a store error", func(t *testing.T) {
		s := signedIn(t)
		req, err := auth.NewEmailChangeRequest(fixedCode, "new@example.com", identity.Email, time.Now().Add(time.Minute))
		require.NoError(t, err)
		require.NoError(t, s.SetPendingEmailChange(req))

		svc, users, _, _ := newService(t, s)
		users.On("ExistsEmailOtherThan", ctx, "new@example.com", identity.ID).Return(false, nil)
		users.On("UpdateEmail", ctx, identity.ID, "new@example.com").Return(errors.New("timeout"))

		_, err = svc.ConfirmChange(ctx, s.ID, fixedCode)
		assert.Equal(t, auth.KindStore, auth.KindOf(err))
		errutil.AssertErrorCode(t, err, "EMAIL_CHANGE_CONFIRM_FAILED")
	})

	t.Run("verification mail goes to the current address", func(t *testing.T) {
		s := signedIn(t)
		svc, users, sessions, notifier := newService(t, s)
		users.On("ExistsEmailOtherThan", ctx, "new@example.com", identity.ID).Return(false, nil)
		sessions.On("Save", ctx, s).Return(nil)
		notifier.On("Send", ctx, identity.Email, "Plant Logger: Email change verification code", mock.MatchedBy(func(body string) bool {
			return strings.Contains(body, "Verification code: "+fixedCode)
		})).Return(nil)

		_, err := svc.RequestChange(ctx, s.ID, "new@example.com")
		require.NoError(t, err)
	})
}
