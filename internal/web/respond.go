// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package web

import (
	"encoding/json"
	"net/http"

	"github.com/plantlogger/plantlogger/internal/auth"
	"github.com/plantlogger/plantlogger/pkg/errutil"
)

const genericFailure = "Something went wrong. Please try again."

var kindStatus = map[auth.Kind]int{
	auth.KindValidation:         http.StatusBadRequest,
	auth.KindDuplicateEmail:     http.StatusConflict,
	auth.KindUserNotFound:       http.StatusNotFound,
	auth.KindInvalidCredentials: http.StatusUnauthorized,
	auth.KindUnauthenticated:    http.StatusUnauthorized,
	auth.KindSameEmail:          http.StatusBadRequest,
	auth.KindEmailInUse:         http.StatusConflict,
	auth.KindNoPendingChange:    http.StatusConflict,
	auth.KindExpired:            http.StatusGone,
	auth.KindInvalidCode:        http.StatusBadRequest,
	auth.KindNotification:       http.StatusBadGateway,
}

// kindMessages holds the user-facing text per kind. Entries keyed by
// operation override the shared ones.
var kindMessages = map[auth.Kind]string{
	auth.KindDuplicateEmail:     "That email is already registered.",
	auth.KindUserNotFound:       "No account found for that email. Please register.",
	auth.KindInvalidCredentials: "Invalid password.",
	auth.KindUnauthenticated:    "Not logged in.",
	auth.KindSameEmail:          "New email cannot be the same as your current email.",
	auth.KindEmailInUse:         "That email is already in use.",
	auth.KindNoPendingChange:    "No email change is pending.",
	auth.KindExpired:            "Verification code has expired. Please request a new one.",
	auth.KindInvalidCode:        "Invalid verification code.",
	auth.KindNotification:       "Could not send verification email. Please try again.",
}

var operationMessages = map[string]map[auth.Kind]string{
	opLogin: {
		auth.KindValidation: "Please enter both email and password.",
		auth.KindStore:      "Login failed. Please try again.",
	},
	opRegister: {
		auth.KindValidation: "First name, last name, and email are required, and the password must be at least 10 characters with an uppercase letter, a lowercase letter, a number, and a special character.",
		auth.KindStore:      "Registration failed. Please try again.",
	},
	opRequestChange: {
		auth.KindValidation: "Please enter a new email address.",
	},
	opConfirmChange: {
		auth.KindValidation: "Please enter the verification code.",
		auth.KindStore:      "Could not confirm email change. Please try again.",
	},
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    auth.Kind `json:"kind"`
	Message string    `json:"message"`
}

func statusFor(kind auth.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func messageFor(operation string, kind auth.Kind) string {
	if msg, ok := operationMessages[operation][kind]; ok {
		return msg
	}
	if msg, ok := kindMessages[kind]; ok {
		return msg
	}
	return genericFailure
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	kind := auth.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), h.logger, "request failed", err)
		if kind == auth.KindUnknown {
			kind = auth.KindStore
		}
	} else {
		h.logger.DebugContext(r.Context(), "request rejected", "operation", operation, "kind", kind, "error", err)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: messageFor(operation, kind)}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(body)
}
