package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/canner-app/canner/go/internal/core/ports"
	"github.com/canner-app/canner/go/internal/infrastructure/httpserver/helpers"
)

// DefaultOperation is the policy applied to every API request.
const DefaultOperation = "api"

type RateLimitMiddleware struct {
	rateLimiter ports.RateLimiter
	rejected    *prometheus.CounterVec
	logger      *logrus.Logger
}

func NewRateLimitMiddleware(rateLimiter ports.RateLimiter, logger *logrus.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{rateLimiter: rateLimiter, logger: logger}
}

// WithRejectionCounter counts rejected requests by operation.
func (r *RateLimitMiddleware) WithRejectionCounter(cv *prometheus.CounterVec) *RateLimitMiddleware {
	r.rejected = cv
	return r
}

// Handler applies the default "api" policy.
func (r *RateLimitMiddleware) Handler() echo.MiddlewareFunc {
	return r.Limit(DefaultOperation)
}

// Limit applies the policy configured for operation. Operations without a
// policy pass through untouched.
func (r *RateLimitMiddleware) Limit(operation string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if r.rateLimiter == nil {
				return next(c)
			}
			return r.check(c, operation, next)
		}
	}
}

// LimitParam resolves the operation from a path parameter, e.g. the task kind.
func (r *RateLimitMiddleware) LimitParam(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if r.rateLimiter == nil {
				return next(c)
			}
			return r.check(c, c.Param(param), next)
		}
	}
}

func (r *RateLimitMiddleware) check(c echo.Context, operation string, next echo.HandlerFunc) error {
	client := helpers.GetClientID(c)
	allowed, remaining, limit := r.rateLimiter.Allow(c.Request().Context(), operation, client)
	if limit == 0 {
		return next(c)
	}
	// Set standard rate limit headers
	c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

	if !allowed {
		if r.rejected != nil {
			r.rejected.WithLabelValues(operation).Inc()
		}
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"client_id": client, "operation": operation}).Info("rate limit exceeded")
		}
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded for "+operation)
	}
	return next(c)
}
