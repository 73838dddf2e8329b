// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

// Package web exposes the auth and email-change flows over HTTP. Session
// tokens travel in a cookie; responses are JSON.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/plantlogger/plantlogger/internal/auth"
)

// Operation names used for metrics and messages.
const (
	opRegister      = "register"
	opLogin         = "login"
	opLogout        = "logout"
	opProfile       = "profile"
	opRequestChange = "request"
	opConfirmChange = "confirm"
	opCancelChange  = "cancel"
)

// AuthService is the subset of auth.AuthService the handlers use.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Logout(ctx context.Context, sessionID string) error
	RequireAuth(ctx context.Context, sessionID string) (*auth.Session, error)
}

// EmailChangeService is the subset of auth.EmailChangeService the handlers use.
type EmailChangeService interface {
	RequestChange(ctx context.Context, sessionID, newEmail string) (*auth.EmailChangeRequest, error)
	ConfirmChange(ctx context.Context, sessionID, code string) (*auth.Identity, error)
	CancelChange(ctx context.Context, sessionID string) error
	Pending(ctx context.Context, sessionID string) (*auth.EmailChangeRequest, error)
}

// Recorder receives per-request metrics.
type Recorder interface {
	RecordAuth(operation, outcome string)
	RecordEmailChange(operation, outcome string)
	RecordHTTPRequest(route string, status int)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuth(string, string)        {}
func (nopRecorder) RecordEmailChange(string, string) {}
func (nopRecorder) RecordHTTPRequest(string, int)    {}

// Handler routes Plant Logger's HTTP API.
type Handler struct {
	auth        AuthService
	emailChange EmailChangeService
	cookies     CookieConfig
	metrics     Recorder
	logger      *slog.Logger
	now         func() time.Time
	tracer      trace.Tracer
	root        http.Handler
}

const tracerName = "github.com/plantlogger/plantlogger/internal/web"

// NewHandler creates a Handler. metrics and logger may be nil.
func NewHandler(authSvc AuthService, emailSvc EmailChangeService, cookies CookieConfig, metrics Recorder, logger *slog.Logger) (*Handler, error) {
	if authSvc == nil {
		return nil, oops.Code("WEB_INVALID_HANDLER").Errorf("auth service is required")
	}
	if emailSvc == nil {
		return nil, oops.Code("WEB_INVALID_HANDLER").Errorf("email change service is required")
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		auth:        authSvc,
		emailChange: emailSvc,
		cookies:     cookies,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
		tracer:      otel.Tracer(tracerName),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", h.handleRegister)
	mux.HandleFunc("POST /login", h.handleLogin)
	mux.HandleFunc("POST /logout", h.handleLogout)
	mux.HandleFunc("GET /logout", h.handleLogout)
	mux.HandleFunc("GET /profile", h.handleProfile)
	mux.HandleFunc("POST /profile/request-email-change", h.handleRequestChange)
	mux.HandleFunc("POST /profile/confirm-email-change", h.handleConfirmChange)
	mux.HandleFunc("POST /profile/cancel-email-change", h.handleCancelChange)
	mux.HandleFunc("GET /welcome", h.handleWelcome)
	mux.HandleFunc("GET /healthz", h.handleHealth)

	h.root = h.instrument(mux)
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(auth.KindOf(err))
}

func (h *Handler) handleWelcome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Welcome!"})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
