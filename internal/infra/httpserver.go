package infra

import (
	"context"
	"net/http"
	"time"
)

// headerReadTimeout caps how long a client may take to send request headers,
// independent of the body timeouts, which have to accommodate direct uploads.
const headerReadTimeout = 5 * time.Second

// HTTPServer is the API's http.Server with timeouts taken from configuration.
type HTTPServer struct {
	srv *http.Server
}

// NewHTTPServer builds the server for the given handler on cfg.Port.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	return &HTTPServer{srv: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: headerReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}}
}

// Start serves requests until Shutdown is called or the listener fails.
func (s *HTTPServer) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
