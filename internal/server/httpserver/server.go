package httpserver

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"
)

// defaultReadHeaderTimeout bounds header reads when no read timeout is set.
const defaultReadHeaderTimeout = 10 * time.Second

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// Option configures a Server.
type Option func(*http.Server)

// WithTimeouts sets the read and write timeouts. Zero leaves a timeout
// unset.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *http.Server) {
		s.ReadTimeout = read
		s.WriteTimeout = write
	}
}

// WithTLSConfig sets the TLS configuration used by ListenAndServeTLS.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *http.Server) {
		s.TLSConfig = cfg
	}
}

// New creates a new HTTP server.
func New(addr string, handler http.Handler, opts ...Option) *Server {
	hs := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	for _, opt := range opts {
		opt(hs)
	}
	return &Server{httpServer: hs, handler: handler}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// ListenAndServeTLS starts the HTTPS server. Both paths may be empty when
// WithTLSConfig supplies the certificate.
func (s *Server) ListenAndServeTLS(certFile, keyFile string) error {
	return s.httpServer.ListenAndServeTLS(certFile, keyFile)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
