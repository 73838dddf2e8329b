// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package web

import (
	"net/http"

	"github.com/plantlogger/plantlogger/internal/auth"
)

type identityResponse struct {
	User *auth.Identity `json:"user"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r, "first_name", "last_name", "email", "password")
	if err != nil {
		h.metrics.RecordAuth(opRegister, outcome(err))
		h.writeError(w, r, opRegister, err)
		return
	}

	session, err := h.auth.Register(r.Context(), auth.RegisterInput{
		FirstName: fields["first_name"],
		LastName:  fields["last_name"],
		Email:     fields["email"],
		Password:  fields["password"],
	})
	h.metrics.RecordAuth(opRegister, outcome(err))
	if err != nil {
		h.writeError(w, r, opRegister, err)
		return
	}

	h.establish(w, r, session)
	writeJSON(w, http.StatusCreated, identityResponse{User: session.Identity})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r, "email", "password")
	if err != nil {
		h.metrics.RecordAuth(opLogin, outcome(err))
		h.writeError(w, r, opLogin, err)
		return
	}

	session, err := h.auth.Login(r.Context(), fields["email"], fields["password"])
	h.metrics.RecordAuth(opLogin, outcome(err))
	if err != nil {
		h.writeError(w, r, opLogin, err)
		return
	}

	h.establish(w, r, session)
	writeJSON(w, http.StatusOK, identityResponse{User: session.Identity})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	err := h.auth.Logout(r.Context(), h.cookies.readSessionID(r))
	h.metrics.RecordAuth(opLogout, outcome(err))
	h.cookies.clear(w)
	if err != nil {
		h.writeError(w, r, opLogout, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out."})
}

// establish sets the cookie for a freshly authenticated session and
// destroys whatever session the browser held before.
func (h *Handler) establish(w http.ResponseWriter, r *http.Request, session *auth.Session) {
	if prior := h.cookies.readSessionID(r); prior != "" && prior != session.ID {
		if err := h.auth.Logout(r.Context(), prior); err != nil {
			h.logger.WarnContext(r.Context(), "prior session not destroyed", "error", err)
		}
	}
	h.cookies.write(w, session, h.now())
}
