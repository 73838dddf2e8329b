// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package web

import (
	"net/http"
	"time"

	"github.com/plantlogger/plantlogger/internal/auth"
)

type pendingChangeView struct {
	NewEmail  string    `json:"new_email"`
	SentTo    string    `json:"sent_to"`
	ExpiresAt time.Time `json:"expires_at"`
}

type profileResponse struct {
	User               *auth.Identity     `json:"user"`
	PendingEmailChange *pendingChangeView `json:"pending_email_change"`
}

type messageResponse struct {
	Message string         `json:"message"`
	User    *auth.Identity `json:"user,omitempty"`
}

func viewPending(req *auth.EmailChangeRequest) *pendingChangeView {
	if req == nil {
		return nil
	}
	return &pendingChangeView{NewEmail: req.NewEmail, SentTo: req.OldEmail, ExpiresAt: req.ExpiresAt}
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	sessionID := h.cookies.readSessionID(r)

	session, err := h.auth.RequireAuth(r.Context(), sessionID)
	if err != nil {
		h.metrics.RecordAuth(opProfile, outcome(err))
		h.writeError(w, r, opProfile, err)
		return
	}
	pending, err := h.emailChange.Pending(r.Context(), sessionID)
	h.metrics.RecordAuth(opProfile, outcome(err))
	if err != nil {
		h.writeError(w, r, opProfile, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{User: session.Identity, PendingEmailChange: viewPending(pending)})
}

func (h *Handler) handleRequestChange(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r, "new_email")
	if err != nil {
		h.metrics.RecordEmailChange(opRequestChange, outcome(err))
		h.writeError(w, r, opRequestChange, err)
		return
	}

	req, err := h.emailChange.RequestChange(r.Context(), h.cookies.readSessionID(r), fields["new_email"])
	h.metrics.RecordEmailChange(opRequestChange, outcome(err))
	if err != nil {
		h.writeError(w, r, opRequestChange, err)
		return
	}

	writeJSON(w, http.StatusAccepted, struct {
		Message string             `json:"message"`
		Pending *pendingChangeView `json:"pending_email_change"`
	}{
		Message: "We sent a verification code to your current email.",
		Pending: viewPending(req),
	})
}

func (h *Handler) handleConfirmChange(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r, "verification_code")
	if err != nil {
		h.metrics.RecordEmailChange(opConfirmChange, outcome(err))
		h.writeError(w, r, opConfirmChange, err)
		return
	}

	identity, err := h.emailChange.ConfirmChange(r.Context(), h.cookies.readSessionID(r), fields["verification_code"])
	h.metrics.RecordEmailChange(opConfirmChange, outcome(err))
	if err != nil {
		h.writeError(w, r, opConfirmChange, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Your email address has been updated.", User: identity})
}

func (h *Handler) handleCancelChange(w http.ResponseWriter, r *http.Request) {
	err := h.emailChange.CancelChange(r.Context(), h.cookies.readSessionID(r))
	h.metrics.RecordEmailChange(opCancelChange, outcome(err))
	if err != nil {
		h.writeError(w, r, opCancelChange, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Email change request cancelled."})
}
