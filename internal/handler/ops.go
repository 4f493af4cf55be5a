package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-hold-engine/internal/logging"
	"github.com/iliyamo/seat-hold-engine/internal/middleware"
)

// OpsHandler exposes operator endpoints guarded by the OPS role.
type OpsHandler struct {
	Seats SeatService
}

// NewOpsHandler constructs an OpsHandler.
func NewOpsHandler(seats SeatService) *OpsHandler {
	if seats == nil {
		panic("nil seat service passed to NewOpsHandler")
	}
	return &OpsHandler{Seats: seats}
}

// Reservations handles GET /v1/shows/:movie_id/:date/:time/:room/reservations.
func (h *OpsHandler) Reservations(c echo.Context) error {
	show := showFromPath(c)
	res, err := h.Seats.Reservations(c.Request().Context(), show)
	if err != nil {
		return respondLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"show": show, "reservations": res})
}

// Purge handles POST /v1/ops/purge.  It deletes every expired hold now,
// bypassing the sweeper's throttle.
func (h *OpsHandler) Purge(c echo.Context) error {
	ctx := c.Request().Context()
	n, err := h.Seats.PurgeExpired(ctx)
	if err != nil {
		return respondLedgerError(c, err)
	}
	logging.FromContext(ctx).WithField("purged", n).WithField("subject", middleware.Subject(c)).Info("manual purge")
	return c.JSON(http.StatusOK, echo.Map{"purged": n})
}
