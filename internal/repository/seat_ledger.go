package repository

import (
	"context"
	"database/sql"
	"time"

	trmsql "github.com/avito-tech/go-transaction-manager/drivers/sql/v2"
	trmsqlx "github.com/avito-tech/go-transaction-manager/drivers/sqlx/v2"
	trmanager "github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/avito-tech/go-transaction-manager/trm/v2/settings"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/seat-hold-engine/internal/ledger"
	"github.com/iliyamo/seat-hold-engine/internal/model"
)

// SeatLedger is the MySQL implementation of ledger.Store.  Writes for a
// show run in one READ COMMITTED transaction that first takes the row
// lock of the show in show_locks, so check-then-write sequences on the
// same show are serialized while different shows proceed in parallel.
// The unique keys on (show, seat) remain the last line of defence.
type SeatLedger struct {
	db        *sqlx.DB
	getter    *trmsqlx.CtxGetter
	trManager *trmanager.Manager
}

var _ ledger.Store = (*SeatLedger)(nil)

// NewSeatLedger returns a SeatLedger.  getter resolves the transaction
// opened by trManager from the context; pass trmsqlx.DefaultCtxGetter
// unless the manager was built with a custom context key.
func NewSeatLedger(db *sqlx.DB, getter *trmsqlx.CtxGetter, trManager *trmanager.Manager) *SeatLedger {
	return &SeatLedger{db: db, getter: getter, trManager: trManager}
}

// NewDefaultSeatLedger wires a SeatLedger with the default transaction
// manager over db.
func NewDefaultSeatLedger(db *sqlx.DB) *SeatLedger {
	return NewSeatLedger(db, trmsqlx.DefaultCtxGetter, trmanager.Must(trmsqlx.NewDefaultFactory(db)))
}

func txSettings(iso sql.IsolationLevel, readOnly bool) trmsql.Settings {
	return trmsql.MustSettings(
		settings.Must(settings.WithCancelable(true)),
		trmsql.WithTxOptions(&sql.TxOptions{Isolation: iso, ReadOnly: readOnly}),
	)
}

// tr returns the transaction bound to ctx or the pool.
func (l *SeatLedger) tr(ctx context.Context) trmsqlx.Tr {
	return l.getter.DefaultTrOrDB(ctx, l.db)
}

// WithShow implements ledger.Store.
func (l *SeatLedger) WithShow(ctx context.Context, show model.ShowKey, fn func(ctx context.Context, tx ledger.ShowTx) error) error {
	return l.trManager.DoWithSettings(ctx, txSettings(sql.LevelReadCommitted, false), func(ctx context.Context) error {
		if err := l.lockShow(ctx, show); err != nil {
			return err
		}
		return fn(ctx, &showTx{l: l, show: show})
	})
}

// lockShow upserts the show_locks row.  Both branches of the upsert leave
// the row exclusively locked until the transaction ends.
func (l *SeatLedger) lockShow(ctx context.Context, show model.ShowKey) error {
	const q = `INSERT INTO show_locks (movie_id, show_date, show_time, room) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE locked_at = CURRENT_TIMESTAMP(6)`
	_, err := l.tr(ctx).ExecContext(ctx, q, show.MovieID, show.Date, show.Time, show.Room)
	return err
}

// Snapshot implements ledger.Store with a read-only REPEATABLE READ
// transaction so both result sets come from the same consistent view.
func (l *SeatLedger) Snapshot(ctx context.Context, show model.ShowKey) (ledger.Snapshot, error) {
	var snap ledger.Snapshot
	err := l.trManager.DoWithSettings(ctx, txSettings(sql.LevelRepeatableRead, true), func(ctx context.Context) error {
		reserved, err := l.reservedSeats(ctx, show, false)
		if err != nil {
			return err
		}
		holds, err := l.holdsForShow(ctx, show, false)
		if err != nil {
			return err
		}
		snap = ledger.Snapshot{Reserved: reserved, Holds: holds}
		return nil
	})
	return snap, err
}

// PurgeExpired implements ledger.Store.  Each show with expired holds is
// purged in its own WithShow transaction, so the purge takes the show
// lock before any hold row, in the same order as hold and confirm.
func (l *SeatLedger) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	shows, err := l.showsWithExpiredHolds(ctx, now)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, show := range shows {
		err := l.WithShow(ctx, show, func(ctx context.Context, tx ledger.ShowTx) error {
			n, err := tx.DeleteExpiredHolds(ctx, now)
			if err != nil {
				return err
			}
			total += n
			return nil
		})
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Reservations implements ledger.Store.
func (l *SeatLedger) Reservations(ctx context.Context, show model.ShowKey) ([]model.Reservation, error) {
	return l.reservationsForShow(ctx, show)
}

// showTx is the ledger.ShowTx handed to WithShow callbacks.  All
// statements resolve the surrounding transaction from ctx.
type showTx struct {
	l    *SeatLedger
	show model.ShowKey
}

func (t *showTx) Reserved(ctx context.Context) ([]string, error) {
	return t.l.reservedSeats(ctx, t.show, true)
}

func (t *showTx) Holds(ctx context.Context) ([]model.SeatHold, error) {
	return t.l.holdsForShow(ctx, t.show, true)
}

func (t *showTx) DeleteExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	return t.l.deleteExpiredHolds(ctx, t.show, now)
}

func (t *showTx) DeleteHoldsByToken(ctx context.Context, token string) (int64, error) {
	return t.l.deleteHoldsByToken(ctx, t.show, token)
}

func (t *showTx) InsertHolds(ctx context.Context, holds []model.SeatHold) error {
	err := t.l.insertHolds(ctx, t.show, holds)
	if isDuplicateKey(err) {
		return &ledger.ConflictError{Seats: holdSeats(holds)}
	}
	return err
}

func (t *showTx) InsertReservations(ctx context.Context, res []model.Reservation) error {
	err := t.l.insertReservations(ctx, t.show, res)
	if isDuplicateKey(err) {
		seats := make([]string, 0, len(res))
		for _, r := range res {
			seats = append(seats, r.Seat)
		}
		return &ledger.ConflictError{Seats: model.SortSeats(seats)}
	}
	return err
}

func holdSeats(holds []model.SeatHold) []string {
	seats := make([]string, 0, len(holds))
	for _, h := range holds {
		seats = append(seats, h.Seat)
	}
	return model.SortSeats(seats)
}
