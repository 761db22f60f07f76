// Package httpserver builds the process's http.Server. Per-request deadlines
// belong to the handler middleware chains; only the connection-level limits
// live here.
package httpserver

import (
	"net/http"
	"time"
)

const (
	// readHeaderTimeout caps how long a client may dribble request headers.
	readHeaderTimeout = 5 * time.Second
	// idleTimeout reclaims keep-alive connections abandoned by clients.
	idleTimeout = 60 * time.Second
)

// New wraps handler in a server hardened against slow clients.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
}
