package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-hold-engine/internal/clock"
	"github.com/iliyamo/seat-hold-engine/internal/model"
)

func TestMemoryStore_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	boom := errors.New("abort")

	err := m.WithShow(ctx, testShow, func(ctx context.Context, tx ShowTx) error {
		require.NoError(t, tx.InsertHolds(ctx, []model.SeatHold{{Seat: "A1", Token: "t", ExpiresAt: t0.Add(ttl)}}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	snap, err := m.Snapshot(ctx, testShow)
	require.NoError(t, err)
	assert.Empty(t, snap.Holds)
}

func TestMemoryStore_UniqueSeatPerShow(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	err := m.WithShow(ctx, testShow, func(ctx context.Context, tx ShowTx) error {
		if err := tx.InsertHolds(ctx, []model.SeatHold{{Seat: "A1", Token: "t1", ExpiresAt: t0}}); err != nil {
			return err
		}
		return tx.InsertHolds(ctx, []model.SeatHold{{Seat: "A2", Token: "t2"}, {Seat: "A1", Token: "t2"}})
	})
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"A1"}, ce.Seats)

	err = m.WithShow(ctx, testShow, func(ctx context.Context, tx ShowTx) error {
		return tx.InsertReservations(ctx, []model.Reservation{{Seat: "B1"}, {Seat: "B1"}})
	})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"B1"}, ce.Seats)
}

func TestMemoryStore_TxUnusableAfterReturn(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	var leaked ShowTx
	require.NoError(t, m.WithShow(ctx, testShow, func(_ context.Context, tx ShowTx) error {
		leaked = tx
		return nil
	}))
	_, err := leaked.Holds(ctx)
	assert.Error(t, err)
}

func TestMemoryStore_PurgeExpiredAcrossShows(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	other := testShow
	other.Time = "23:00"

	for _, show := range []model.ShowKey{testShow, other} {
		require.NoError(t, m.WithShow(ctx, show, func(ctx context.Context, tx ShowTx) error {
			return tx.InsertHolds(ctx, []model.SeatHold{
				{Seat: "A1", Token: "old", ExpiresAt: t0},
				{Seat: "A2", Token: "new", ExpiresAt: t0.Add(time.Minute)},
			})
		}))
	}

	n, err := m.PurgeExpired(ctx, t0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	snap, err := m.Snapshot(ctx, other)
	require.NoError(t, err)
	require.Len(t, snap.Holds, 1)
	assert.Equal(t, "A2", snap.Holds[0].Seat)
	assert.Equal(t, other, snap.Holds[0].Show)
}

func TestMemoryStore_ReservationIDs(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.WithShow(ctx, testShow, func(ctx context.Context, tx ShowTx) error {
		return tx.InsertReservations(ctx, []model.Reservation{{Seat: "A1"}, {Seat: "A2"}})
	}))
	res, err := m.Reservations(ctx, testShow)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.NotZero(t, res[0].ID)
	assert.NotEqual(t, res[0].ID, res[1].ID)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemoryStore()
	called := false
	err := m.WithShow(ctx, testShow, func(context.Context, ShowTx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemoryStore_ReadsDoNotCreateShows(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	e := NewEngine(m, clock.Fixed{T: t0}, model.Layout{})

	for i := 0; i < 1000; i++ {
		show := model.ShowKey{MovieID: fmt.Sprintf("m%d", i), Date: "2025-03-01", Time: "20:30", Room: "1"}
		occ, err := e.Occupied(ctx, show, "")
		require.NoError(t, err)
		assert.Empty(t, occ)
		_, err = e.ShowView(ctx, show, "tok")
		require.NoError(t, err)
		res, err := e.Reservations(ctx, show)
		require.NoError(t, err)
		assert.Empty(t, res)
	}
	m.mu.Lock()
	assert.Empty(t, m.shows)
	m.mu.Unlock()

	_, err := e.PlaceHold(ctx, "tok", testShow, []string{"A1"}, ttl)
	require.NoError(t, err)
	m.mu.Lock()
	assert.Len(t, m.shows, 1)
	m.mu.Unlock()
}
