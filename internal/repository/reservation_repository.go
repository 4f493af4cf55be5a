package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/seat-hold-engine/internal/model"
)

// reservationRecord mirrors one row of seat_reservations.
type reservationRecord struct {
	ID         uint64    `db:"id"`
	MovieID    string    `db:"movie_id"`
	ShowDate   string    `db:"show_date"`
	ShowTime   string    `db:"show_time"`
	Room       string    `db:"room"`
	Seat       string    `db:"seat"`
	Owner      string    `db:"owner"`
	PaymentRef string    `db:"payment_ref"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r reservationRecord) model() model.Reservation {
	return model.Reservation{
		ID:         r.ID,
		Show:       model.ShowKey{MovieID: r.MovieID, Date: r.ShowDate, Time: r.ShowTime, Room: r.Room},
		Seat:       r.Seat,
		Owner:      r.Owner,
		PaymentRef: r.PaymentRef,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

// reservedSeats returns the reserved seat codes of the show.
func (l *SeatLedger) reservedSeats(ctx context.Context, show model.ShowKey, forUpdate bool) ([]string, error) {
	q := `SELECT seat FROM seat_reservations WHERE ` + showFilter
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var seats []string
	if err := sqlx.SelectContext(ctx, l.tr(ctx), &seats, q, showArgs(show)...); err != nil {
		return nil, err
	}
	return seats, nil
}

// reservationsForShow returns the full reservation rows of the show.
func (l *SeatLedger) reservationsForShow(ctx context.Context, show model.ShowKey) ([]model.Reservation, error) {
	const q = `SELECT id, movie_id, show_date, show_time, room, seat, owner, payment_ref, created_at
		FROM seat_reservations WHERE ` + showFilter + ` ORDER BY id`
	var rows []reservationRecord
	if err := sqlx.SelectContext(ctx, l.tr(ctx), &rows, q, showArgs(show)...); err != nil {
		return nil, err
	}
	out := make([]model.Reservation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// insertReservations writes one reservation row per seat in a single
// statement.  A duplicate (show, seat) aborts the whole statement.
func (l *SeatLedger) insertReservations(ctx context.Context, show model.ShowKey, res []model.Reservation) error {
	if len(res) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO seat_reservations (movie_id, show_date, show_time, room, seat, owner, payment_ref, created_at) VALUES `)
	args := make([]interface{}, 0, len(res)*8)
	for i, r := range res {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, show.MovieID, show.Date, show.Time, show.Room,
			r.Seat, r.Owner, r.PaymentRef, r.CreatedAt.UTC())
	}
	_, err := l.tr(ctx).ExecContext(ctx, sb.String(), args...)
	return err
}
