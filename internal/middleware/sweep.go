package middleware

import (
	"context"

	"github.com/labstack/echo/v4"
)

// Sweeper runs a throttled purge of expired holds.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, bool)
}

// InlineSweep gives the sweeper a chance to run before each request.  The
// sweep is throttled and its failures never reach the caller.
func InlineSweep(s Sweeper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if s == nil {
			return next
		}
		return func(c echo.Context) error {
			s.Sweep(c.Request().Context())
			return next(c)
		}
	}
}
