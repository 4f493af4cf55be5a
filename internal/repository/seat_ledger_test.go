package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-hold-engine/internal/clock"
	"github.com/iliyamo/seat-hold-engine/internal/ledger"
	"github.com/iliyamo/seat-hold-engine/internal/model"
)

var (
	show = model.ShowKey{MovieID: "tt0111161", Date: "2025-03-01", Time: "20:30", Room: "Sala 1"}
	now  = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
)

var holdColumns = []string{"id", "movie_id", "show_date", "show_time", "room", "seat", "hold_token", "expires_at", "created_at"}

const (
	lockShowSQL       = `INSERT INTO show_locks`
	deleteExpiredSQL  = `DELETE FROM seat_holds WHERE movie_id = .* AND expires_at <=`
	deleteByTokenSQL  = `DELETE FROM seat_holds WHERE movie_id = .* AND hold_token =`
	selectReservedSQL = `SELECT seat FROM seat_reservations WHERE movie_id`
	selectHoldsSQL    = `SELECT id, movie_id, show_date, show_time, room, seat, hold_token`
	insertHoldsSQL    = `INSERT INTO seat_holds`
	insertResSQL      = `INSERT INTO seat_reservations`
)

func newMockLedger(t *testing.T) (*ledger.Engine, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	store := NewDefaultSeatLedger(sqlx.NewDb(raw, "mysql"))
	return ledger.NewEngine(store, clock.Fixed{T: now}, model.Layout{}), mock
}

func holdRow(rows *sqlmock.Rows, id int, seat, token string, expiresAt time.Time) *sqlmock.Rows {
	return rows.AddRow(id, show.MovieID, show.Date, show.Time, show.Room, seat, token, expiresAt, now.Add(-time.Minute))
}

func expectLock(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(lockShowSQL).
		WithArgs(show.MovieID, show.Date, show.Time, show.Room).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestSeatLedger_PlaceHold(t *testing.T) {
	e, mock := newMockLedger(t)

	expectLock(mock)
	mock.ExpectExec(deleteExpiredSQL).
		WithArgs(show.MovieID, show.Date, show.Time, show.Room, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectReservedSQL).
		WillReturnRows(sqlmock.NewRows([]string{"seat"}).AddRow("C3"))
	mock.ExpectQuery(selectHoldsSQL).
		WillReturnRows(holdRow(sqlmock.NewRows(holdColumns), 7, "A1", "tok-a", now.Add(time.Minute)))
	mock.ExpectExec(deleteByTokenSQL).
		WithArgs(show.MovieID, show.Date, show.Time, show.Room, "tok-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertHoldsSQL).
		WithArgs(
			show.MovieID, show.Date, show.Time, show.Room, "A1", "tok-a", now.Add(10*time.Minute), now,
			show.MovieID, show.Date, show.Time, show.Room, "A2", "tok-a", now.Add(10*time.Minute), now,
		).
		WillReturnResult(sqlmock.NewResult(8, 2))
	mock.ExpectCommit()

	res, err := e.PlaceHold(context.Background(), "tok-a", show, []string{"a1", "A2"}, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, res.Seats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLedger_PlaceHoldConflictRollsBack(t *testing.T) {
	e, mock := newMockLedger(t)

	expectLock(mock)
	mock.ExpectExec(deleteExpiredSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectReservedSQL).
		WillReturnRows(sqlmock.NewRows([]string{"seat"}).AddRow("A3"))
	mock.ExpectQuery(selectHoldsSQL).
		WillReturnRows(holdRow(sqlmock.NewRows(holdColumns), 1, "A2", "other", now.Add(time.Minute)))
	mock.ExpectRollback()

	_, err := e.PlaceHold(context.Background(), "mine", show, []string{"A1", "A2", "A3"}, time.Minute)
	var ce *ledger.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"A2", "A3"}, ce.Seats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLedger_DuplicateKeyBecomesConflict(t *testing.T) {
	e, mock := newMockLedger(t)

	expectLock(mock)
	mock.ExpectExec(deleteExpiredSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectReservedSQL).WillReturnRows(sqlmock.NewRows([]string{"seat"}))
	mock.ExpectQuery(selectHoldsSQL).WillReturnRows(sqlmock.NewRows(holdColumns))
	mock.ExpectExec(deleteByTokenSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertHoldsSQL).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry for key 'uq_seat_holds_seat'"})
	// the engine re-reads the show to name the colliding seats
	mock.ExpectQuery(selectReservedSQL).WillReturnRows(sqlmock.NewRows([]string{"seat"}))
	mock.ExpectQuery(selectHoldsSQL).
		WillReturnRows(holdRow(sqlmock.NewRows(holdColumns), 9, "B2", "racer", now.Add(time.Minute)))
	mock.ExpectRollback()

	_, err := e.PlaceHold(context.Background(), "mine", show, []string{"B1", "B2"}, time.Minute)
	var ce *ledger.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"B2"}, ce.Seats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLedger_StorageFailure(t *testing.T) {
	e, mock := newMockLedger(t)
	boom := errors.New("Lock wait timeout exceeded")

	mock.ExpectBegin()
	mock.ExpectExec(lockShowSQL).WillReturnError(boom)
	mock.ExpectRollback()

	_, err := e.PlaceHold(context.Background(), "mine", show, []string{"B1"}, time.Minute)
	var se *ledger.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "place_hold", se.Op)
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLedger_Confirm(t *testing.T) {
	e, mock := newMockLedger(t)

	expectLock(mock)
	holds := sqlmock.NewRows(holdColumns)
	holdRow(holds, 1, "A2", "tok", now.Add(time.Minute))
	holdRow(holds, 2, "A10", "tok", now.Add(time.Minute))
	holdRow(holds, 3, "A3", "expired", now)
	mock.ExpectQuery(selectHoldsSQL).WillReturnRows(holds)
	mock.ExpectQuery(selectReservedSQL).WillReturnRows(sqlmock.NewRows([]string{"seat"}))
	mock.ExpectExec(insertResSQL).
		WithArgs(
			show.MovieID, show.Date, show.Time, show.Room, "A2", "alice@example.com", "PAY-1", now,
			show.MovieID, show.Date, show.Time, show.Room, "A10", "alice@example.com", "PAY-1", now,
		).
		WillReturnResult(sqlmock.NewResult(1, 2))
	mock.ExpectExec(deleteByTokenSQL).
		WithArgs(show.MovieID, show.Date, show.Time, show.Room, "tok").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	seats, err := e.Confirm(context.Background(), "tok", show, "alice@example.com", "PAY-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A2", "A10"}, seats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLedger_ConfirmWithoutHold(t *testing.T) {
	e, mock := newMockLedger(t)

	expectLock(mock)
	mock.ExpectQuery(selectHoldsSQL).WillReturnRows(sqlmock.NewRows(holdColumns))
	mock.ExpectCommit()

	seats, err := e.Confirm(context.Background(), "tok", show, "alice@example.com", "PAY-1")
	require.NoError(t, err)
	assert.Empty(t, seats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLedger_ConfirmDuplicateReservation(t *testing.T) {
	e, mock := newMockLedger(t)

	expectLock(mock)
	mock.ExpectQuery(selectHoldsSQL).
		WillReturnRows(holdRow(sqlmock.NewRows(holdColumns), 1, "A1", "tok", now.Add(time.Minute)))
	mock.ExpectQuery(selectReservedSQL).WillReturnRows(sqlmock.NewRows([]string{"seat"}))
	mock.ExpectExec(insertResSQL).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	_, err := e.Confirm(context.Background(), "tok", show, "alice@example.com", "PAY-1")
	var ce *ledger.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"A1"}, ce.Seats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLedger_OccupiedUsesSnapshot(t *testing.T) {
	e, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(selectReservedSQL).
		WillReturnRows(sqlmock.NewRows([]string{"seat"}).AddRow("B5"))
	holds := sqlmock.NewRows(holdColumns)
	holdRow(holds, 1, "B6", "a", now.Add(time.Second))
	holdRow(holds, 2, "B7", "b", now.Add(time.Second))
	holdRow(holds, 3, "B8", "c", now)
	mock.ExpectQuery(selectHoldsSQL).WillReturnRows(holds)
	mock.ExpectCommit()

	occ, err := e.Occupied(context.Background(), show, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"B5", "B6"}, occ)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLedger_PurgeExpiredLocksEachShow(t *testing.T) {
	e, mock := newMockLedger(t)
	other := model.ShowKey{MovieID: "tt0068646", Date: "2025-03-01", Time: "22:00", Room: "Sala 2"}

	mock.ExpectQuery(`SELECT DISTINCT movie_id, show_date, show_time, room FROM seat_holds`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"movie_id", "show_date", "show_time", "room"}).
			AddRow(show.MovieID, show.Date, show.Time, show.Room).
			AddRow(other.MovieID, other.Date, other.Time, other.Room))

	expectLock(mock)
	mock.ExpectExec(deleteExpiredSQL).
		WithArgs(show.MovieID, show.Date, show.Time, show.Room, now).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(lockShowSQL).
		WithArgs(other.MovieID, other.Date, other.Time, other.Room).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deleteExpiredSQL).
		WithArgs(other.MovieID, other.Date, other.Time, other.Room, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := e.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLedger_PurgeExpiredStopsOnFailure(t *testing.T) {
	e, mock := newMockLedger(t)
	boom := errors.New("Deadlock found when trying to get lock")

	mock.ExpectQuery(`SELECT DISTINCT movie_id`).
		WillReturnRows(sqlmock.NewRows([]string{"movie_id", "show_date", "show_time", "room"}).
			AddRow(show.MovieID, show.Date, show.Time, show.Room))
	expectLock(mock)
	mock.ExpectExec(deleteExpiredSQL).WillReturnError(boom)
	mock.ExpectRollback()

	_, err := e.PurgeExpired(context.Background())
	assert.ErrorIs(t, err, ledger.ErrStorage)
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLedger_Reservations(t *testing.T) {
	e, mock := newMockLedger(t)

	mock.ExpectQuery(`SELECT id, movie_id, show_date, show_time, room, seat, owner, payment_ref`).
		WithArgs(show.MovieID, show.Date, show.Time, show.Room).
		WillReturnRows(sqlmock.NewRows([]string{"id", "movie_id", "show_date", "show_time", "room", "seat", "owner", "payment_ref", "created_at"}).
			AddRow(2, show.MovieID, show.Date, show.Time, show.Room, "A10", "bob@example.com", "PAY-2", now).
			AddRow(1, show.MovieID, show.Date, show.Time, show.Room, "A9", "alice@example.com", "PAY-1", now))

	res, err := e.Reservations(context.Background(), show)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "A9", res[0].Seat)
	assert.Equal(t, uint64(1), res[0].ID)
	assert.Equal(t, show, res[1].Show)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, isDuplicateKey(&mysql.MySQLError{Number: 1062}))
	assert.False(t, isDuplicateKey(&mysql.MySQLError{Number: 1213}))
	assert.False(t, isDuplicateKey(errors.New("1062")))
	assert.False(t, isDuplicateKey(nil))
}
