package ledger

import (
	"context"
	"time"

	"github.com/iliyamo/seat-hold-engine/internal/model"
)

// Snapshot is a consistent view of one show's persisted facts.  Holds
// may include rows that have expired but were not swept yet.
type Snapshot struct {
	Reserved []string
	Holds    []model.SeatHold
}

// Store is the persistent seat ledger.  It is the only component that
// reads or writes hold and reservation facts.
type Store interface {
	// WithShow runs fn with exclusive write access to show.  Everything
	// fn writes through tx is committed atomically when fn returns nil
	// and discarded otherwise.  Calls for the same show are serialized.
	WithShow(ctx context.Context, show model.ShowKey, fn func(ctx context.Context, tx ShowTx) error) error

	// Snapshot reads reservations and holds of show without blocking
	// writers.  It never returns a partially written fact.
	Snapshot(ctx context.Context, show model.ShowKey) (Snapshot, error)

	// PurgeExpired deletes every hold with expires_at <= now across all
	// shows and returns the number of rows removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)

	// Reservations lists the confirmed reservations of show.
	Reservations(ctx context.Context, show model.ShowKey) ([]model.Reservation, error)
}

// ShowTx is the write handle passed to WithShow.  It is scoped to one
// show and must not be used after fn returns.
type ShowTx interface {
	// Reserved returns the reserved seat codes of the show.
	Reserved(ctx context.Context) ([]string, error)
	// Holds returns every hold row of the show, expired or not.  The rows
	// stay locked against concurrent deletes until the transaction ends.
	Holds(ctx context.Context) ([]model.SeatHold, error)
	// DeleteExpiredHolds removes holds of the show with expires_at <= now.
	DeleteExpiredHolds(ctx context.Context, now time.Time) (int64, error)
	// DeleteHoldsByToken removes every hold of token for the show.
	DeleteHoldsByToken(ctx context.Context, token string) (int64, error)
	// InsertHolds writes new holds.  A (show, seat) collision yields a
	// *ConflictError.
	InsertHolds(ctx context.Context, holds []model.SeatHold) error
	// InsertReservations writes reservations.  A (show, seat) collision
	// yields a *ConflictError.
	InsertReservations(ctx context.Context, res []model.Reservation) error
}
