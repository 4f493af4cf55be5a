package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-hold-engine/internal/ledger"
	"github.com/iliyamo/seat-hold-engine/internal/logging"
)

// respondLedgerError maps ledger errors onto HTTP responses: 409 for taken
// seats, 400 for caller mistakes and 500 for storage failures.
func respondLedgerError(c echo.Context, err error) error {
	var conflict *ledger.ConflictError
	var invalid *ledger.InvalidSeatError
	switch {
	case errors.As(err, &conflict):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":       "seats unavailable",
			"unavailable": conflict.Seats,
		})
	case errors.As(err, &invalid):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":   "invalid seat codes",
			"invalid": invalid.Seats,
		})
	case errors.Is(err, ledger.ErrEmptySelection),
		errors.Is(err, ledger.ErrInvalidTTL),
		errors.Is(err, ledger.ErrInvalidToken),
		errors.Is(err, ledger.ErrInvalidShow),
		errors.Is(err, ledger.ErrInvalidRef):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	default:
		logging.FromContext(c.Request().Context()).WithError(err).Error("seat ledger failure")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "seat ledger unavailable"})
	}
}
