package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/seat-hold-engine/internal/model"
)

// seatHoldRecord mirrors one row of seat_holds.  Business logic works on
// model.SeatHold; the record only exists for scanning.
type seatHoldRecord struct {
	ID        uint64    `db:"id"`
	MovieID   string    `db:"movie_id"`
	ShowDate  string    `db:"show_date"`
	ShowTime  string    `db:"show_time"`
	Room      string    `db:"room"`
	Seat      string    `db:"seat"`
	HoldToken string    `db:"hold_token"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

func (r seatHoldRecord) model() model.SeatHold {
	return model.SeatHold{
		Show:      model.ShowKey{MovieID: r.MovieID, Date: r.ShowDate, Time: r.ShowTime, Room: r.Room},
		Seat:      r.Seat,
		Token:     r.HoldToken,
		ExpiresAt: r.ExpiresAt.UTC(),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

const showFilter = `movie_id = ? AND show_date = ? AND show_time = ? AND room = ?`

func showArgs(show model.ShowKey, extra ...interface{}) []interface{} {
	return append([]interface{}{show.MovieID, show.Date, show.Time, show.Room}, extra...)
}

// holdsForShow lists every hold row of the show, expired or not.  With
// forUpdate the rows stay locked until the surrounding transaction ends,
// which keeps PurgeExpired from deleting a hold a confirmation is about
// to consume.
func (l *SeatLedger) holdsForShow(ctx context.Context, show model.ShowKey, forUpdate bool) ([]model.SeatHold, error) {
	q := `SELECT id, movie_id, show_date, show_time, room, seat, hold_token, expires_at, created_at
		FROM seat_holds WHERE ` + showFilter
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var rows []seatHoldRecord
	if err := sqlx.SelectContext(ctx, l.tr(ctx), &rows, q, showArgs(show)...); err != nil {
		return nil, err
	}
	holds := make([]model.SeatHold, 0, len(rows))
	for _, r := range rows {
		holds = append(holds, r.model())
	}
	return holds, nil
}

type showKeyRecord struct {
	MovieID  string `db:"movie_id"`
	ShowDate string `db:"show_date"`
	ShowTime string `db:"show_time"`
	Room     string `db:"room"`
}

// showsWithExpiredHolds lists the shows that have at least one hold
// expired at now.  It is a plain read and locks nothing.
func (l *SeatLedger) showsWithExpiredHolds(ctx context.Context, now time.Time) ([]model.ShowKey, error) {
	const q = `SELECT DISTINCT movie_id, show_date, show_time, room FROM seat_holds
		WHERE expires_at <= ? ORDER BY movie_id, show_date, show_time, room`
	var rows []showKeyRecord
	if err := sqlx.SelectContext(ctx, l.db, &rows, q, now.UTC()); err != nil {
		return nil, err
	}
	shows := make([]model.ShowKey, 0, len(rows))
	for _, r := range rows {
		shows = append(shows, model.ShowKey{MovieID: r.MovieID, Date: r.ShowDate, Time: r.ShowTime, Room: r.Room})
	}
	return shows, nil
}

// deleteExpiredHolds removes holds of the show whose expires_at is at or
// before now.
func (l *SeatLedger) deleteExpiredHolds(ctx context.Context, show model.ShowKey, now time.Time) (int64, error) {
	res, err := l.tr(ctx).ExecContext(ctx,
		`DELETE FROM seat_holds WHERE `+showFilter+` AND expires_at <= ?`,
		showArgs(show, now.UTC())...,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// deleteHoldsByToken removes every hold of token for the show.
func (l *SeatLedger) deleteHoldsByToken(ctx context.Context, show model.ShowKey, token string) (int64, error) {
	res, err := l.tr(ctx).ExecContext(ctx,
		`DELETE FROM seat_holds WHERE `+showFilter+` AND hold_token = ?`,
		showArgs(show, token)...,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// insertHolds writes all holds with one multi-row INSERT.  Passing an
// empty slice has no effect.
func (l *SeatLedger) insertHolds(ctx context.Context, show model.ShowKey, holds []model.SeatHold) error {
	if len(holds) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO seat_holds (movie_id, show_date, show_time, room, seat, hold_token, expires_at, created_at) VALUES `)
	args := make([]interface{}, 0, len(holds)*8)
	for i, h := range holds {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, show.MovieID, show.Date, show.Time, show.Room,
			h.Seat, h.Token, h.ExpiresAt.UTC(), h.CreatedAt.UTC())
	}
	_, err := l.tr(ctx).ExecContext(ctx, sb.String(), args...)
	return err
}
