package httpserver

import (
	"net/http"
	"time"

	"kycflow/internal/platform/config"
)

// New builds an HTTP server from the server config. Multipart uploads set the
// floor for the read timeout.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
}
