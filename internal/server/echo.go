package server

import (
	"github.com/labstack/echo/v4"
	"github.com/loykin/tether/internal/locator"
)

// MountEcho serves the router's endpoints from an echo instance under basePath.
func MountEcho(e *echo.Echo, basePath string, loc *locator.Locator, src StatusSource, opts ...Option) *Router {
	r := NewRouter(loc, src, basePath, opts...)
	h := echo.WrapHandler(r.Handler())
	base := r.BasePath()
	if base == "" {
		e.Any("/*", h)
		return r
	}
	e.Any(base, h)
	e.Any(base+"/*", h)
	if r.metrics != nil {
		e.GET("/metrics", h)
	}
	return r
}
