package helpers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ClientIDHeader lets callers name themselves for quota and task scoping.
const ClientIDHeader = "X-Client-ID"

// ResolveClientID picks the caller identity: the X-Client-ID header when
// present, else the caller's IP address.
func ResolveClientID(c echo.Context) string {
	if id := strings.TrimSpace(c.Request().Header.Get(ClientIDHeader)); id != "" {
		return id
	}
	return c.RealIP()
}

func GetClientIDFromContext(c echo.Context) (string, error) {
	id, ok := GetClientIDRaw(c)
	if !ok {
		return "", echo.NewHTTPError(http.StatusBadRequest, "unable to identify client")
	}
	return id, nil
}

// GetClientID returns the client id set by the client middleware, resolving
// it from the request when the middleware did not run.
func GetClientID(c echo.Context) string {
	if id, ok := GetClientIDRaw(c); ok {
		return id
	}
	return ResolveClientID(c)
}
