// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package web

import (
	"net/http"
	"time"

	"github.com/plantlogger/plantlogger/internal/auth"
)

// DefaultCookieName names the session cookie when none is configured.
const DefaultCookieName = "plantlogger_session"

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return DefaultCookieName
	}
	return c.Name
}

// readSessionID returns the session token from the request, or "".
func (c CookieConfig) readSessionID(r *http.Request) string {
	cookie, err := r.Cookie(c.name())
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (c CookieConfig) write(w http.ResponseWriter, session *auth.Session, now time.Time) {
	maxAge := int(session.ExpiresAt.Sub(now).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieConfig) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
