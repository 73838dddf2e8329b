// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package web

import (
	"net/http"
	"time"

	"github.com/plantlogger/plantlogger/internal/httpserver"
)

// Public endpoint timeouts.
const (
	readTimeout  = 30 * time.Second
	writeTimeout = 30 * time.Second
	idleTimeout  = 2 * time.Minute
)

// NewServer returns the public HTTP server for handler on addr.
func NewServer(addr string, handler http.Handler) *httpserver.Server {
	return httpserver.New("http", addr, handler, httpserver.WithTimeouts(readTimeout, writeTimeout, idleTimeout))
}
