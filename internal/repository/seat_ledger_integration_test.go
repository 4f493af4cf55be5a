package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/iliyamo/seat-hold-engine/internal/clock"
	"github.com/iliyamo/seat-hold-engine/internal/database"
	"github.com/iliyamo/seat-hold-engine/internal/ledger"
	"github.com/iliyamo/seat-hold-engine/internal/model"
)

// SeatLedgerSuite runs the ledger against a real MySQL started with
// testcontainers.  Set MYSQL_INTEGRATION=1 to enable it.
type SeatLedgerSuite struct {
	suite.Suite
	ctx       context.Context
	container testcontainers.Container
	db        *sqlx.DB
	clk       *clock.Manual
	engine    *ledger.Engine
}

func TestSeatLedgerSuite(t *testing.T) {
	if os.Getenv("MYSQL_INTEGRATION") == "" {
		t.Skip("MYSQL_INTEGRATION not set")
	}
	suite.Run(t, new(SeatLedgerSuite))
}

func (s *SeatLedgerSuite) SetupSuite() {
	s.ctx = context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.0",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "secret",
			"MYSQL_DATABASE":      "seats",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("ready for connections").WithOccurrence(2),
			wait.ForListeningPort("3306/tcp"),
		).WithDeadline(3 * time.Minute),
	}
	var err error
	s.container, err = testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	s.Require().NoError(err, "failed to start mysql container")

	host, err := s.container.Host(s.ctx)
	s.Require().NoError(err)
	port, err := s.container.MappedPort(s.ctx, "3306/tcp")
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		s.db, err = database.Open("root", "secret", host, port.Port(), "seats")
		return err == nil
	}, time.Minute, time.Second, "mysql did not accept connections")
	s.Require().NoError(database.EnsureSchema(s.ctx, s.db))
}

func (s *SeatLedgerSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *SeatLedgerSuite) SetupTest() {
	for _, table := range []string{"seat_holds", "seat_reservations", "show_locks"} {
		_, err := s.db.ExecContext(s.ctx, "DELETE FROM "+table)
		s.Require().NoError(err)
	}
	// DATETIME(6) keeps microseconds
	s.clk = clock.NewManual(time.Now().UTC().Truncate(time.Microsecond))
	s.engine = ledger.NewEngine(NewDefaultSeatLedger(s.db), s.clk, model.Layout{})
}

func (s *SeatLedgerSuite) TestHoldConfirmLifecycle() {
	t := s.T()
	ttl := 10 * time.Minute

	_, err := s.engine.PlaceHold(s.ctx, "A", show, []string{"B5", "B6"}, ttl)
	require.NoError(t, err)

	_, err = s.engine.PlaceHold(s.ctx, "B", show, []string{"B6", "B7"}, ttl)
	var ce *ledger.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"B6"}, ce.Seats)

	seats, err := s.engine.Confirm(s.ctx, "A", show, "alice@example.com", "PAY-123")
	require.NoError(t, err)
	assert.Equal(t, []string{"B5", "B6"}, seats)

	again, err := s.engine.Confirm(s.ctx, "A", show, "alice@example.com", "PAY-123")
	require.NoError(t, err)
	assert.Empty(t, again)

	occ, err := s.engine.Occupied(s.ctx, show, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"B5", "B6"}, occ)

	res, err := s.engine.Reservations(s.ctx, show)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "PAY-123", res[0].PaymentRef)
}

func (s *SeatLedgerSuite) TestExpiryAndPurge() {
	t := s.T()

	_, err := s.engine.PlaceHold(s.ctx, "D", show, []string{"C1"}, time.Second)
	require.NoError(t, err)
	s.clk.Advance(2 * time.Second)

	occ, err := s.engine.Occupied(s.ctx, show, "")
	require.NoError(t, err)
	assert.NotContains(t, occ, "C1")

	n, err := s.engine.PurgeExpired(s.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func (s *SeatLedgerSuite) TestReplaceSelection() {
	t := s.T()
	ttl := 10 * time.Minute

	_, err := s.engine.PlaceHold(s.ctx, "E", show, []string{"D1", "D2"}, ttl)
	require.NoError(t, err)
	_, err = s.engine.PlaceHold(s.ctx, "E", show, []string{"D3"}, ttl)
	require.NoError(t, err)

	occ, err := s.engine.Occupied(s.ctx, show, "F")
	require.NoError(t, err)
	assert.Equal(t, []string{"D3"}, occ)
}

func (s *SeatLedgerSuite) TestConcurrentHoldsOneWinner() {
	t := s.T()
	const workers = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := s.engine.PlaceHold(s.ctx, fmt.Sprintf("tok-%d", i), show, []string{"E1", "E2"}, time.Minute)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ledger.ErrConflict):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, winners)

	var rows int
	require.NoError(t, s.db.GetContext(s.ctx, &rows, `SELECT COUNT(*) FROM seat_holds WHERE seat IN ('E1', 'E2')`))
	assert.Equal(t, 2, rows)
}

func (s *SeatLedgerSuite) TestTokensDifferingInCaseAreDistinctOwners() {
	t := s.T()
	ttl := 10 * time.Minute

	_, err := s.engine.PlaceHold(s.ctx, "abc", show, []string{"F5"}, ttl)
	require.NoError(t, err)
	_, err = s.engine.PlaceHold(s.ctx, "ABC", show, []string{"F7"}, ttl)
	require.NoError(t, err)

	n, err := s.engine.ReleaseHold(s.ctx, "ABC", show)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	occ, err := s.engine.Occupied(s.ctx, show, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"F5"}, occ, "hold of abc must survive ABC's writes")

	seats, err := s.engine.Confirm(s.ctx, "ABC", show, "o", "PAY-X")
	require.NoError(t, err)
	assert.Empty(t, seats)
}

func (s *SeatLedgerSuite) TestShowKeysDifferingInCaseAreDistinct() {
	t := s.T()
	other := show
	other.Room = "SALA 1"

	_, err := s.engine.PlaceHold(s.ctx, "G", show, []string{"G1"}, time.Minute)
	require.NoError(t, err)
	_, err = s.engine.PlaceHold(s.ctx, "H", other, []string{"G1"}, time.Minute)
	require.NoError(t, err)

	occ, err := s.engine.Occupied(s.ctx, other, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"G1"}, occ)
}

func (s *SeatLedgerSuite) TestPurgeRunsPerShow() {
	t := s.T()
	other := show
	other.Time = "23:00"

	_, err := s.engine.PlaceHold(s.ctx, "P", show, []string{"H1", "H2"}, time.Second)
	require.NoError(t, err)
	_, err = s.engine.PlaceHold(s.ctx, "Q", other, []string{"H1"}, time.Second)
	require.NoError(t, err)
	_, err = s.engine.PlaceHold(s.ctx, "R", other, []string{"H9"}, time.Hour)
	require.NoError(t, err)
	s.clk.Advance(2 * time.Second)

	n, err := s.engine.PurgeExpired(s.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	occ, err := s.engine.Occupied(s.ctx, other, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"H9"}, occ)
}
