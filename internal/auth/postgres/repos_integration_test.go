// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

//go:build integration

package postgres_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/plantlogger/plantlogger/internal/auth"
	"github.com/plantlogger/plantlogger/internal/auth/postgres"
)

func newUser(email string) *auth.User {
	user, err := auth.NewUser("Ivy", "Green", email, "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA")
	Expect(err).NotTo(HaveOccurred())
	return user
}

var _ = Describe("UserRepository", func() {
	var (
		ctx   context.Context
		users *postgres.UserRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		users = postgres.NewUserRepository(testPool)
	})

	It("round-trips a user by email", func() {
		user := newUser("ivy@example.com")
		Expect(users.Create(ctx, user)).To(Succeed())

		got, err := users.GetByEmail(ctx, "ivy@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(user.ID))
		Expect(got.FirstName).To(Equal("Ivy"))
		Expect(got.PasswordHash).To(Equal(user.PasswordHash))
	})

	It("matches email exactly", func() {
		Expect(users.Create(ctx, newUser("Ivy@Example.com"))).To(Succeed())

		_, err := users.GetByEmail(ctx, "ivy@example.com")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("rejects a second user with the same email", func() {
		Expect(users.Create(ctx, newUser("ivy@example.com"))).To(Succeed())

		err := users.Create(ctx, newUser("ivy@example.com"))
		Expect(err).To(MatchError(auth.ErrDuplicateEmail))
	})

	It("changes email and enforces uniqueness on update", func() {
		ivy := newUser("ivy@example.com")
		fern := newUser("fern@example.com")
		Expect(users.Create(ctx, ivy)).To(Succeed())
		Expect(users.Create(ctx, fern)).To(Succeed())

		Expect(users.UpdateEmail(ctx, ivy.ID, "ivy.new@example.com")).To(Succeed())
		_, err := users.GetByEmail(ctx, "ivy.new@example.com")
		Expect(err).NotTo(HaveOccurred())

		err = users.UpdateEmail(ctx, ivy.ID, "fern@example.com")
		Expect(err).To(MatchError(auth.ErrDuplicateEmail))

		err = users.UpdateEmail(ctx, newUser("ghost@example.com").ID, "ghost2@example.com")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("checks ownership excluding the caller", func() {
		ivy := newUser("ivy@example.com")
		Expect(users.Create(ctx, ivy)).To(Succeed())

		taken, err := users.ExistsEmailOtherThan(ctx, "ivy@example.com", ivy.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(taken).To(BeFalse())

		taken, err = users.ExistsEmailOtherThan(ctx, "ivy@example.com", newUser("x@example.com").ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(taken).To(BeTrue())
	})

	It("replaces the password hash", func() {
		ivy := newUser("ivy@example.com")
		Expect(users.Create(ctx, ivy)).To(Succeed())
		Expect(users.UpdatePasswordHash(ctx, ivy.ID, "$argon2id$upgraded")).To(Succeed())

		got, err := users.GetByEmail(ctx, "ivy@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.PasswordHash).To(Equal("$argon2id$upgraded"))
	})
})

var _ = Describe("SessionStore", func() {
	var (
		ctx      context.Context
		sessions *postgres.SessionStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		sessions = postgres.NewSessionStore(testPool, time.Hour)
	})

	It("creates, saves, and reloads a session", func() {
		ivy := newUser("ivy@example.com")
		Expect(postgres.NewUserRepository(testPool).Create(ctx, ivy)).To(Succeed())

		s, err := sessions.Create(ctx)
		Expect(err).NotTo(HaveOccurred())

		s.SetIdentity(ivy.Identity())
		req, err := auth.NewEmailChangeRequest("482913", "ivy.new@example.com", "ivy@example.com", time.Now().Add(10*time.Minute))
		Expect(err).NotTo(HaveOccurred())
		Expect(s.SetPendingEmailChange(req)).To(Succeed())
		Expect(sessions.Save(ctx, s)).To(Succeed())

		got, err := sessions.Get(ctx, s.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Identity.ID).To(Equal(ivy.ID))
		Expect(got.PendingEmailChange).NotTo(BeNil())
		Expect(got.PendingEmailChange.Code).To(Equal("482913"))

		var stored int
		Expect(testPool.QueryRow(ctx, `SELECT count(*) FROM web_sessions WHERE token_hash = $1`, s.ID).Scan(&stored)).To(Succeed())
		Expect(stored).To(BeZero(), "raw token must never be stored")
	})

	It("destroys sessions idempotently", func() {
		s, err := sessions.Create(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(sessions.Destroy(ctx, s.ID)).To(Succeed())
		Expect(sessions.Destroy(ctx, s.ID)).To(Succeed())

		_, err = sessions.Get(ctx, s.ID)
		Expect(err).To(MatchError(auth.ErrNotFound))
		Expect(sessions.Save(ctx, s)).To(MatchError(auth.ErrNotFound))
	})

	It("hides and deletes expired sessions", func() {
		short := postgres.NewSessionStore(testPool, time.Millisecond)
		s, err := short.Create(ctx)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() error {
			_, err := short.Get(ctx, s.ID)
			return err
		}).Should(MatchError(auth.ErrNotFound))

		removed, err := short.DeleteExpired(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(BeNumerically(">=", 1))
	})
})
