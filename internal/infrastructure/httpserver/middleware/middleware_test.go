package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canner-app/canner/go/internal/infrastructure/httpserver/helpers"
	"github.com/canner-app/canner/go/internal/infrastructure/httpserver/middleware"
	tmocks "github.com/canner-app/canner/go/test/mocks"
)

func ok(c echo.Context) error { return c.NoContent(http.StatusOK) }

func TestRateLimitMiddleware_RejectsWith429(t *testing.T) {
	e := echo.New()
	var gotOp, gotClient string
	limiter := &tmocks.RateLimiterMock{AllowFn: func(ctx context.Context, operation, client string) (bool, int, int) {
		gotOp, gotClient = operation, client
		return false, 0, 10
	}}
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "rejected_total"}, []string{"operation"})
	m := middleware.NewRateLimitMiddleware(limiter, logrus.New()).WithRejectionCounter(rejected)
	h := m.Limit("ai_generation")(ok)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(helpers.ClientIDHeader, "alice")
	rec := httptest.NewRecorder()
	err := h(e.NewContext(req, rec))
	require.Error(t, err)
	htErr, isHTTP := err.(*echo.HTTPError)
	require.True(t, isHTTP)
	assert.Equal(t, http.StatusTooManyRequests, htErr.Code)
	assert.Equal(t, "ai_generation", gotOp)
	assert.Equal(t, "alice", gotClient)
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var metric dto.Metric
	require.NoError(t, rejected.WithLabelValues("ai_generation").Write(&metric))
	assert.Equal(t, 1.0, metric.GetCounter().GetValue())
}

func TestRateLimitMiddleware_AllowsAndSetsHeaders(t *testing.T) {
	e := echo.New()
	limiter := &tmocks.RateLimiterMock{AllowFn: func(ctx context.Context, operation, client string) (bool, int, int) {
		return true, 4, 5
	}}
	h := middleware.NewRateLimitMiddleware(limiter, logrus.New()).Handler()(ok)

	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitMiddleware_UnconfiguredOperationPassesWithoutHeaders(t *testing.T) {
	e := echo.New()
	h := middleware.NewRateLimitMiddleware(&tmocks.RateLimiterMock{}, logrus.New()).Limit("other")(ok)
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)))
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitMiddleware_NilLimiterPasses(t *testing.T) {
	e := echo.New()
	h := middleware.NewRateLimitMiddleware(nil, nil).Handler()(ok)
	rec := httptest.NewRecorder()
	assert.NoError(t, h(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)))
}

func TestClientMiddleware_ResolvesIdentity(t *testing.T) {
	e := echo.New()
	m := middleware.NewClientMiddleware(logrus.New())
	var seen string
	h := m.ResolveClient()(func(c echo.Context) error {
		id, err := helpers.GetClientIDFromContext(c)
		require.NoError(t, err)
		seen = id
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(helpers.ClientIDHeader, "  mobile-7 ")
	require.NoError(t, h(e.NewContext(req, httptest.NewRecorder())))
	assert.Equal(t, "mobile-7", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4567"
	require.NoError(t, h(e.NewContext(req, httptest.NewRecorder())))
	assert.Equal(t, "203.0.113.9", seen)
}
