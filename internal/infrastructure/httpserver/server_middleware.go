package httpserver

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/canner-app/canner/go/internal/infrastructure/httpserver/helpers"
)

// maxBodySize bounds task payloads.
const maxBodySize = "1M"

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, helpers.ClientIDHeader},
		ExposeHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", echo.HeaderXRequestID},
	}))
	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	s.echo.Use(middleware.BodyLimit(maxBodySize))

	s.echo.Use(s.middleware.Metrics.CollectHTTPMetrics())

	// Client identity must be resolved before logging and rate limiting.
	s.echo.Use(s.middleware.Client.ResolveClient())
	s.echo.Use(s.middleware.Logging.RequestLogging())
}
