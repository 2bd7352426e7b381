package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Start serves HTTP, or HTTPS when a certificate pair is configured, until
// Shutdown is called. It returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	s.logMetricsInitialization()

	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)
	log := s.logger.WithField("task_mode", s.taskService.Mode()).WithField("cache_backend", s.cacheStore.Backend().Kind())

	if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
		s.applyTimeouts(s.echo.TLSServer)
		log.Infof("Starting HTTPS server on %s", addr)
		return s.echo.StartTLS(addr, s.config.TLSCertFile, s.config.TLSKeyFile)
	}

	server := &http.Server{Addr: addr}
	s.applyTimeouts(server)
	log.Infof("Starting HTTP server on %s", addr)
	return s.echo.StartServer(server)
}

// applyTimeouts copies the configured timeouts. The write timeout is raised
// above MaxWait when it would end a wait request early.
func (s *Server) applyTimeouts(srv *http.Server) {
	srv.ReadTimeout = s.config.ReadTimeout
	srv.IdleTimeout = s.config.IdleTimeout
	srv.WriteTimeout = s.config.WriteTimeout
	if srv.WriteTimeout > 0 && srv.WriteTimeout <= s.config.MaxWait {
		srv.WriteTimeout = s.config.MaxWait + writeTimeoutSlack
	}
}

// Shutdown stops accepting requests and waits for in-flight ones, including
// long-polling waits, until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.logger != nil {
		s.logger.Info("Draining HTTP server")
	}
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
