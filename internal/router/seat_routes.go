package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-hold-engine/internal/handler"
	"github.com/iliyamo/seat-hold-engine/internal/middleware"
	"github.com/iliyamo/seat-hold-engine/internal/utils"
)

// showPath addresses one screening by its natural key.
const showPath = "/shows/:movie_id/:date/:time/:room"

// SeatRoutes bundles what RegisterSeats needs.  RateLimit and Cache may be
// nil; Sweeper may be nil to disable inline sweeps.
type SeatRoutes struct {
	Handler   *handler.SeatHandler
	Ops       *handler.OpsHandler
	Sweeper   middleware.Sweeper
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
	JWTSecret string
}

func orNoop(m echo.MiddlewareFunc) echo.MiddlewareFunc {
	if m == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return m
}

// RegisterSeats registers the shopper routes, the confirmation route for
// the payment service and the operator routes under /v1.
//
//	GET    /v1/layout                       cached seat grid
//	POST   /v1/hold-tokens                  new hold token
//	GET    /v1/shows/.../seats              occupancy for X-Hold-Token
//	POST   /v1/shows/.../hold               place or replace a hold (rate limited)
//	DELETE /v1/shows/.../hold               release a hold (rate limited)
//	POST   /v1/shows/.../confirm            PAYMENTS role
//	GET    /v1/shows/.../reservations       OPS role
//	POST   /v1/ops/purge                    OPS role
func RegisterSeats(e *echo.Echo, r SeatRoutes) {
	v1 := e.Group("/v1")
	v1.GET("/layout", r.Handler.Layout, orNoop(r.Cache))
	v1.POST("/hold-tokens", r.Handler.IssueHoldToken)

	shows := v1.Group(showPath, middleware.InlineSweep(r.Sweeper))
	limit := orNoop(r.RateLimit)
	shows.GET("/seats", r.Handler.ShowSeats)
	shows.POST("/hold", r.Handler.HoldSeats, limit)
	shows.DELETE("/hold", r.Handler.ReleaseHold, limit)

	auth := middleware.JWTAuth(r.JWTSecret)
	shows.POST("/confirm", r.Handler.ConfirmSeats, auth, middleware.RequireRole(utils.RolePayments))
	shows.GET("/reservations", r.Ops.Reservations, auth, middleware.RequireRole(utils.RoleOps))

	ops := v1.Group("/ops", auth, middleware.RequireRole(utils.RoleOps))
	ops.POST("/purge", r.Ops.Purge)
}
