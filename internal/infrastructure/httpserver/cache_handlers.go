package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/canner-app/canner/go/internal/infrastructure/httpserver/helpers"
)

func (s *Server) cacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.cacheStore.Stats(c.Request().Context()))
}

func (s *Server) clearCache(c echo.Context) error {
	if !s.cacheStore.Clear(c.Request().Context()) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "failed to clear cache")
	}
	if s.logger != nil {
		s.logger.WithField("client_id", helpers.GetClientID(c)).Info("cache cleared")
	}
	return c.JSON(http.StatusOK, map[string]any{"cleared": true, "backend": s.cacheStore.Backend().Kind()})
}

func (s *Server) invalidateUserResponses(c echo.Context) error {
	if s.responseCache == nil {
		return echo.NewHTTPError(http.StatusNotFound, "response cache not configured")
	}
	user := c.Param("user")
	n := s.responseCache.InvalidateUserResponses(c.Request().Context(), user)
	return c.JSON(http.StatusOK, map[string]any{"user_id": user, "removed": n})
}
