package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/seat-hold-engine/internal/logging"
)

// HeaderCorrelationID is echoed back on every response.
const HeaderCorrelationID = "X-Correlation-ID"

// CorrelationID attaches a logrus entry with a correlation id to the
// request context.  The id is taken from X-Correlation-ID or generated.
// Each request is logged once it completes.
func CorrelationID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(HeaderCorrelationID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(HeaderCorrelationID, id)

			entry := logrus.WithFields(logrus.Fields{
				"correlation_id": id,
				"method":         req.Method,
				"path":           c.Path(),
			})
			c.SetRequest(req.WithContext(logging.ToContext(req.Context(), entry)))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			entry.WithFields(logrus.Fields{
				"status":      c.Response().Status,
				"duration_ms": time.Since(start).Milliseconds(),
			}).Debug("request handled")
			return nil
		}
	}
}
