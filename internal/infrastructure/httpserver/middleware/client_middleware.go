package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/canner-app/canner/go/internal/infrastructure/httpserver/helpers"
)

type ClientMiddleware struct {
	logger *logrus.Logger
}

func NewClientMiddleware(logger *logrus.Logger) *ClientMiddleware {
	return &ClientMiddleware{logger: logger}
}

// ResolveClient stores the caller identity on the context for the rate
// limiter and task scoping.
func (m *ClientMiddleware) ResolveClient() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			helpers.SetClientID(c, helpers.ResolveClientID(c))
			return next(c)
		}
	}
}
