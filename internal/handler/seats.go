package handler

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-hold-engine/internal/ledger"
	"github.com/iliyamo/seat-hold-engine/internal/logging"
	"github.com/iliyamo/seat-hold-engine/internal/middleware"
	"github.com/iliyamo/seat-hold-engine/internal/model"
	"github.com/iliyamo/seat-hold-engine/internal/queue"
	"github.com/iliyamo/seat-hold-engine/internal/utils"
)

// SeatService is the seat engine as seen by the HTTP layer.
// *ledger.Engine implements it.
type SeatService interface {
	ShowView(ctx context.Context, show model.ShowKey, token string) (ledger.ShowView, error)
	PlaceHold(ctx context.Context, token string, show model.ShowKey, seats []string, ttl time.Duration) (ledger.HoldResult, error)
	ReleaseHold(ctx context.Context, token string, show model.ShowKey) (int64, error)
	Confirm(ctx context.Context, token string, show model.ShowKey, owner, paymentRef string) ([]string, error)
	Reservations(ctx context.Context, show model.ShowKey) ([]model.Reservation, error)
	PurgeExpired(ctx context.Context) (int64, error)
	Layout() model.Layout
	Now() time.Time
}

// EventPublisher delivers seats.confirmed events.
type EventPublisher interface {
	PublishSeatsConfirmed(ctx context.Context, ev queue.SeatsConfirmedEvent) error
}

// publishTimeout bounds the detached publish after a confirmation.
const publishTimeout = 5 * time.Second

// SeatHandler serves seat selection for shoppers and confirmation for the
// payment service.  Publisher may be nil to disable events.
type SeatHandler struct {
	Seats     SeatService
	Publisher EventPublisher
	HoldTTL   time.Duration
	MaxSeats  int
}

// NewSeatHandler constructs a SeatHandler.  seats must be non-nil.
func NewSeatHandler(seats SeatService, publisher EventPublisher, holdTTL time.Duration, maxSeats int) *SeatHandler {
	if seats == nil {
		panic("nil seat service passed to NewSeatHandler")
	}
	return &SeatHandler{Seats: seats, Publisher: publisher, HoldTTL: holdTTL, MaxSeats: maxSeats}
}

// showFromPath reads the show tuple from the :movie_id/:date/:time/:room
// path parameters.  Parameters arrive percent-encoded.
func showFromPath(c echo.Context) model.ShowKey {
	p := func(name string) string {
		v := c.Param(name)
		if u, err := url.PathUnescape(v); err == nil {
			return u
		}
		return v
	}
	return model.ShowKey{MovieID: p("movie_id"), Date: p("date"), Time: p("time"), Room: p("room")}.Normalize()
}

// Layout handles GET /v1/layout.  It returns the room grid, the seat cap
// per order and the hold lifetime so clients can render the picker.
func (h *SeatHandler) Layout(c echo.Context) error {
	l := h.Seats.Layout()
	return c.JSON(http.StatusOK, echo.Map{
		"rows":             l.Rows,
		"cols":             l.Cols,
		"seats":            l.Codes(),
		"max_per_order":    h.MaxSeats,
		"hold_ttl_seconds": int(h.HoldTTL / time.Second),
	})
}

// IssueHoldToken handles POST /v1/hold-tokens.  A hold token identifies one
// shopper session; clients send it back in X-Hold-Token.
func (h *SeatHandler) IssueHoldToken(c echo.Context) error {
	return c.JSON(http.StatusCreated, echo.Map{"hold_token": utils.NewHoldToken()})
}

// ShowSeats handles GET /v1/shows/:movie_id/:date/:time/:room/seats.  Seats
// held by the caller's own token are reported separately and not counted
// as occupied.
func (h *SeatHandler) ShowSeats(c echo.Context) error {
	show := showFromPath(c)
	view, err := h.Seats.ShowView(c.Request().Context(), show, middleware.HoldToken(c))
	if err != nil {
		return respondLedgerError(c, err)
	}
	held := make([]string, 0, len(view.Held))
	var expiresAt *time.Time
	for _, hold := range view.Held {
		held = append(held, hold.Seat)
		if expiresAt == nil || hold.ExpiresAt.Before(*expiresAt) {
			exp := hold.ExpiresAt
			expiresAt = &exp
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"show":            show,
		"occupied":        view.Occupied,
		"held_by_you":     held,
		"hold_expires_at": expiresAt,
		"seat_map":        view.SeatMap,
	})
}

type holdRequest struct {
	Seats    []string `json:"seats"`
	SeatsCSV string   `json:"seats_csv"`
}

// HoldSeats handles POST /v1/shows/:movie_id/:date/:time/:room/hold.  The
// body lists seat codes either as "seats" or as a comma separated
// "seats_csv".  The new selection replaces any previous hold of the token
// on the show.  Returns 201 with the expiry, or 409 with the seats that
// are taken.
func (h *SeatHandler) HoldSeats(c echo.Context) error {
	token := middleware.HoldToken(c)
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "X-Hold-Token header is required"})
	}
	var body holdRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	seats := model.NormalizeSeats(append(body.Seats, model.ParseSeatList(body.SeatsCSV)...))
	if h.MaxSeats > 0 && len(seats) > h.MaxSeats {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":         "too many seats requested",
			"max_per_order": h.MaxSeats,
		})
	}

	show := showFromPath(c)
	res, err := h.Seats.PlaceHold(c.Request().Context(), token, show, seats, h.HoldTTL)
	if err != nil {
		return respondLedgerError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"show":       res.Show,
		"seats":      res.Seats,
		"expires_at": res.ExpiresAt.Format(time.RFC3339),
	})
}

// ReleaseHold handles DELETE /v1/shows/:movie_id/:date/:time/:room/hold.
func (h *SeatHandler) ReleaseHold(c echo.Context) error {
	token := middleware.HoldToken(c)
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "X-Hold-Token header is required"})
	}
	n, err := h.Seats.ReleaseHold(c.Request().Context(), token, showFromPath(c))
	if err != nil {
		return respondLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": n})
}

type confirmRequest struct {
	HoldToken  string `json:"hold_token"`
	Owner      string `json:"owner"`
	PaymentRef string `json:"payment_ref"`
}

// ConfirmSeats handles POST /v1/shows/:movie_id/:date/:time/:room/confirm.
// It is called by the payment service once a payment is approved.  A 200
// with hold_expired=true means nothing was reserved and the payment must
// not be captured.
func (h *SeatHandler) ConfirmSeats(c echo.Context) error {
	var body confirmRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.PaymentRef == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment_ref is required"})
	}

	ctx := c.Request().Context()
	show := showFromPath(c)
	seats, err := h.Seats.Confirm(ctx, body.HoldToken, show, body.Owner, body.PaymentRef)
	if err != nil {
		return respondLedgerError(c, err)
	}
	if len(seats) == 0 {
		return c.JSON(http.StatusOK, echo.Map{"seats": []string{}, "hold_expired": true})
	}

	if h.Publisher != nil {
		ev := queue.NewSeatsConfirmedEvent(show, seats, body.Owner, body.PaymentRef, h.Seats.Now())
		go h.publish(context.WithoutCancel(ctx), ev)
	}
	return c.JSON(http.StatusCreated, echo.Map{"show": show, "seats": seats})
}

func (h *SeatHandler) publish(ctx context.Context, ev queue.SeatsConfirmedEvent) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := h.Publisher.PublishSeatsConfirmed(ctx, ev); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("event_id", ev.EventID).Warn("seats.confirmed not published")
	}
}
