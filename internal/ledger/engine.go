// Package ledger implements seat inventory control for showtimes: the
// hold and reservation state machine, occupancy queries, confirmation of
// holds into reservations and the purge of expired holds.
//
// A seat of a show is Free, Held(token, expires_at) or Reserved(owner,
// payment_ref).  All mutation goes through Engine, which runs every
// check-then-write sequence inside Store.WithShow so concurrent callers
// on the same show are serialized.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/seat-hold-engine/internal/clock"
	"github.com/iliyamo/seat-hold-engine/internal/logging"
	"github.com/iliyamo/seat-hold-engine/internal/model"
)

// HoldResult describes a successfully placed hold.
type HoldResult struct {
	Show      model.ShowKey `json:"show"`
	Seats     []string      `json:"seats"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Engine is the seat hold/reservation engine.  It holds no per-request
// state; every coordination happens through the Store.
type Engine struct {
	store  Store
	clock  clock.Clock
	layout model.Layout
}

// NewEngine builds an Engine over store.  A nil clock means wall-clock
// UTC time.  When layout is non-empty, seat codes outside the grid are
// rejected with *InvalidSeatError.
func NewEngine(store Store, clk clock.Clock, layout model.Layout) *Engine {
	if store == nil {
		panic("nil store passed to NewEngine")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Engine{store: store, clock: clk, layout: layout}
}

// Layout returns the seat grid the engine validates against.
func (e *Engine) Layout() model.Layout { return e.layout }

// Now exposes the engine clock so callers report consistent timestamps.
func (e *Engine) Now() time.Time { return e.clock.Now() }

func prepareShow(show model.ShowKey) (model.ShowKey, error) {
	show = show.Normalize()
	if err := show.Validate(); err != nil {
		return show, ErrInvalidShow
	}
	return show, nil
}

// prepareToken trims token and checks it fits the hold_token column.
func prepareToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" || utf8.RuneCountInString(token) > model.MaxHoldTokenLen {
		return "", ErrInvalidToken
	}
	return token, nil
}

func (e *Engine) prepareSeats(seats []string) ([]string, error) {
	clean := model.NormalizeSeats(seats)
	if len(clean) == 0 {
		return nil, ErrEmptySelection
	}
	var bad []string
	for _, s := range clean {
		if !e.layout.Contains(s) {
			bad = append(bad, s)
		}
	}
	if len(bad) > 0 {
		return nil, &InvalidSeatError{Seats: bad}
	}
	return clean, nil
}

func (e *Engine) logger(ctx context.Context, op string, show model.ShowKey) *logrus.Entry {
	return logging.FromContext(ctx).WithFields(logrus.Fields{
		"component": "seat-ledger",
		"op":        op,
		"show":      show.String(),
	})
}

// record updates metrics for a finished operation and passes err through.
func record(op string, err error) error {
	switch {
	case err == nil:
	case errors.Is(err, ErrConflict):
		holdConflictsTotal.WithLabelValues(op).Inc()
	case errors.Is(err, ErrStorage):
		storageErrorsTotal.WithLabelValues(op).Inc()
	}
	return err
}

// Occupied returns the seats of show unavailable to excludeToken: all
// reserved seats plus live holds of other tokens, sorted.  An unknown
// show has no occupancy.  excludeToken may be empty.
func (e *Engine) Occupied(ctx context.Context, show model.ShowKey, excludeToken string) ([]string, error) {
	show, err := prepareShow(show)
	if err != nil {
		return nil, err
	}
	snap, err := e.store.Snapshot(ctx, show)
	if err != nil {
		return nil, record("occupied", storageErr("occupied", err))
	}
	return occupiedFrom(snap, e.clock.Now(), strings.TrimSpace(excludeToken)), nil
}

// HeldBy returns the live holds of token on show, sorted by seat.
func (e *Engine) HeldBy(ctx context.Context, show model.ShowKey, token string) ([]model.SeatHold, error) {
	show, err := prepareShow(show)
	if err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return []model.SeatHold{}, nil
	}
	snap, err := e.store.Snapshot(ctx, show)
	if err != nil {
		return nil, record("held_by", storageErr("held_by", err))
	}
	return heldFrom(snap, e.clock.Now(), token), nil
}

// SeatMap reports the state of every seat of the layout from token's
// point of view.  Without a layout only non-free seats are listed.
func (e *Engine) SeatMap(ctx context.Context, show model.ShowKey, token string) ([]model.SeatStatus, error) {
	show, err := prepareShow(show)
	if err != nil {
		return nil, err
	}
	snap, err := e.store.Snapshot(ctx, show)
	if err != nil {
		return nil, record("seat_map", storageErr("seat_map", err))
	}
	return e.seatMapFrom(snap, e.clock.Now(), strings.TrimSpace(token)), nil
}

// ShowView is what a shopper sees of one show, computed from a single
// snapshot at a single instant.
type ShowView struct {
	Occupied []string
	Held     []model.SeatHold
	SeatMap  []model.SeatStatus
}

// ShowView returns occupancy, token's own live holds and the seat map of
// show.  The three parts always agree with each other.
func (e *Engine) ShowView(ctx context.Context, show model.ShowKey, token string) (ShowView, error) {
	show, err := prepareShow(show)
	if err != nil {
		return ShowView{}, err
	}
	snap, err := e.store.Snapshot(ctx, show)
	if err != nil {
		return ShowView{}, record("show_view", storageErr("show_view", err))
	}
	now := e.clock.Now()
	token = strings.TrimSpace(token)
	view := ShowView{
		Occupied: occupiedFrom(snap, now, token),
		Held:     []model.SeatHold{},
		SeatMap:  e.seatMapFrom(snap, now, token),
	}
	if token != "" {
		view.Held = heldFrom(snap, now, token)
	}
	return view, nil
}

func occupiedFrom(snap Snapshot, now time.Time, excludeToken string) []string {
	return setToSorted(occupiedSet(snap.Reserved, snap.Holds, now, excludeToken))
}

func heldFrom(snap Snapshot, now time.Time, token string) []model.SeatHold {
	mine := liveHoldsOf(snap.Holds, token, now)
	out := make([]model.SeatHold, 0, len(mine))
	out = append(out, mine...)
	sortHolds(out)
	return out
}

func (e *Engine) seatMapFrom(snap Snapshot, now time.Time, token string) []model.SeatStatus {
	state := make(map[string]model.SeatState)
	for _, h := range snap.Holds {
		if !h.Active(now) {
			continue
		}
		if token != "" && h.Token == token {
			state[h.Seat] = model.SeatHeldByYou
		} else {
			state[h.Seat] = model.SeatHeld
		}
	}
	for _, s := range snap.Reserved {
		state[s] = model.SeatReserved
	}

	codes := e.layout.Codes()
	if codes == nil {
		for s := range state {
			codes = append(codes, s)
		}
		model.SortSeats(codes)
	}
	out := make([]model.SeatStatus, 0, len(codes))
	for _, s := range codes {
		st, ok := state[s]
		if !ok {
			st = model.SeatFree
		}
		out = append(out, model.SeatStatus{Seat: s, State: st})
	}
	return out
}

// PlaceHold replaces token's hold on show with seats for ttl.  If any
// requested seat is reserved or held live by another token, nothing is
// written and a *ConflictError naming exactly those seats is returned.
func (e *Engine) PlaceHold(ctx context.Context, token string, show model.ShowKey, seats []string, ttl time.Duration) (HoldResult, error) {
	token, err := prepareToken(token)
	if err != nil {
		return HoldResult{}, err
	}
	show, err = prepareShow(show)
	if err != nil {
		return HoldResult{}, err
	}
	clean, err := e.prepareSeats(seats)
	if err != nil {
		return HoldResult{}, err
	}
	if ttl <= 0 {
		return HoldResult{}, ErrInvalidTTL
	}

	var result HoldResult
	err = e.store.WithShow(ctx, show, func(ctx context.Context, tx ShowTx) error {
		now := e.clock.Now()
		if _, err := tx.DeleteExpiredHolds(ctx, now); err != nil {
			return err
		}
		if taken, err := takenSeats(ctx, tx, clean, token, now); err != nil {
			return err
		} else if len(taken) > 0 {
			return &ConflictError{Seats: taken}
		}
		if _, err := tx.DeleteHoldsByToken(ctx, token); err != nil {
			return err
		}
		expiresAt := now.Add(ttl)
		rows := make([]model.SeatHold, 0, len(clean))
		for _, s := range clean {
			rows = append(rows, model.SeatHold{Show: show, Seat: s, Token: token, ExpiresAt: expiresAt, CreatedAt: now})
		}
		if err := tx.InsertHolds(ctx, rows); err != nil {
			var ce *ConflictError
			if !errors.As(err, &ce) {
				return err
			}
			// The insert hit the (show, seat) key.  Name the seats from
			// the current state when it can be read.
			if taken, rerr := takenSeats(ctx, tx, clean, token, now); rerr == nil && len(taken) > 0 {
				return &ConflictError{Seats: taken}
			}
			return ce
		}
		result = HoldResult{Show: show, Seats: model.SortSeats(append([]string(nil), clean...)), ExpiresAt: expiresAt}
		return nil
	})
	log := e.logger(ctx, "place_hold", show)
	if err != nil {
		err = storageErr("place_hold", err)
		if errors.Is(err, ErrConflict) {
			log.WithField("unavailable", err.(*ConflictError).Seats).Info("hold rejected")
		} else {
			log.WithError(err).Error("hold failed")
		}
		return HoldResult{}, record("place_hold", err)
	}
	holdsPlacedTotal.Add(float64(len(result.Seats)))
	log.WithFields(logrus.Fields{"seats": result.Seats, "expires_at": result.ExpiresAt}).Info("seats held")
	return result, nil
}

// takenSeats reads the show inside tx and returns the requested seats
// that are unavailable to token at now.
func takenSeats(ctx context.Context, tx ShowTx, requested []string, token string, now time.Time) ([]string, error) {
	reserved, err := tx.Reserved(ctx)
	if err != nil {
		return nil, err
	}
	holds, err := tx.Holds(ctx)
	if err != nil {
		return nil, err
	}
	return conflicts(requested, occupiedSet(reserved, holds, now, token)), nil
}

// ReleaseHold deletes every hold of token on show and returns how many
// rows were removed.
func (e *Engine) ReleaseHold(ctx context.Context, token string, show model.ShowKey) (int64, error) {
	token, err := prepareToken(token)
	if err != nil {
		return 0, err
	}
	show, err = prepareShow(show)
	if err != nil {
		return 0, err
	}
	var released int64
	err = e.store.WithShow(ctx, show, func(ctx context.Context, tx ShowTx) error {
		n, err := tx.DeleteHoldsByToken(ctx, token)
		released = n
		return err
	})
	if err != nil {
		err = storageErr("release_hold", err)
		e.logger(ctx, "release_hold", show).WithError(err).Error("release failed")
		return 0, record("release_hold", err)
	}
	e.logger(ctx, "release_hold", show).WithField("released", released).Info("holds released")
	return released, nil
}

// Confirm converts token's live holds on show into reservations owned by
// owner and tied to paymentRef, returning the confirmed seats.  An empty
// result with a nil error means there was nothing to confirm, typically
// because the hold expired; the caller must send the shopper back to
// seat selection.  If any held seat turns out to be taken, nothing is
// reserved and a *ConflictError names the seats.
func (e *Engine) Confirm(ctx context.Context, token string, show model.ShowKey, owner, paymentRef string) ([]string, error) {
	token, err := prepareToken(token)
	if err != nil {
		return nil, err
	}
	show, err = prepareShow(show)
	if err != nil {
		return nil, err
	}
	owner = strings.TrimSpace(owner)
	paymentRef = strings.TrimSpace(paymentRef)
	if utf8.RuneCountInString(owner) > model.MaxOwnerLen || utf8.RuneCountInString(paymentRef) > model.MaxPaymentRefLen {
		return nil, ErrInvalidRef
	}

	var confirmed []string
	err = e.store.WithShow(ctx, show, func(ctx context.Context, tx ShowTx) error {
		confirmed = nil
		now := e.clock.Now()
		holds, err := tx.Holds(ctx)
		if err != nil {
			return err
		}
		mine := liveHoldsOf(holds, token, now)
		if len(mine) == 0 {
			return nil
		}
		reserved, err := tx.Reserved(ctx)
		if err != nil {
			return err
		}
		seats := make([]string, 0, len(mine))
		for _, h := range mine {
			seats = append(seats, h.Seat)
		}
		if taken := conflicts(seats, occupiedSet(reserved, holds, now, token)); len(taken) > 0 {
			return &ConflictError{Seats: taken}
		}
		rows := make([]model.Reservation, 0, len(seats))
		for _, s := range seats {
			rows = append(rows, model.Reservation{Show: show, Seat: s, Owner: owner, PaymentRef: paymentRef, CreatedAt: now})
		}
		if err := tx.InsertReservations(ctx, rows); err != nil {
			return err
		}
		if _, err := tx.DeleteHoldsByToken(ctx, token); err != nil {
			return err
		}
		confirmed = model.SortSeats(seats)
		return nil
	})
	log := e.logger(ctx, "confirm", show).WithField("payment_ref", paymentRef)
	if err != nil {
		err = storageErr("confirm", err)
		if errors.Is(err, ErrConflict) {
			log.WithField("unavailable", err.(*ConflictError).Seats).Warn("confirmation rejected")
		} else {
			log.WithError(err).Error("confirmation failed")
		}
		return nil, record("confirm", err)
	}
	if len(confirmed) == 0 {
		log.Info("no active hold to confirm")
		return []string{}, nil
	}
	reservationsConfirmedTotal.Add(float64(len(confirmed)))
	log.WithField("seats", confirmed).Info("seats reserved")
	return confirmed, nil
}

// PurgeExpired deletes every hold whose expiry has passed, across all
// shows, and returns the number of rows removed.
func (e *Engine) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := e.store.PurgeExpired(ctx, e.clock.Now())
	if err != nil {
		return 0, record("purge_expired", storageErr("purge_expired", err))
	}
	if n > 0 {
		holdsPurgedTotal.Add(float64(n))
	}
	return n, nil
}

// Reservations lists the confirmed reservations of show sorted by seat.
func (e *Engine) Reservations(ctx context.Context, show model.ShowKey) ([]model.Reservation, error) {
	show, err := prepareShow(show)
	if err != nil {
		return nil, err
	}
	res, err := e.store.Reservations(ctx, show)
	if err != nil {
		return nil, record("reservations", storageErr("reservations", err))
	}
	if res == nil {
		res = []model.Reservation{}
	}
	sortReservations(res)
	return res, nil
}
