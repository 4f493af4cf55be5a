package ledger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-hold-engine/internal/clock"
)

type countingPurger struct {
	clk   *clock.Manual
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	if p.err != nil {
		return 0, p.err
	}
	return 3, nil
}

func (p *countingPurger) Now() time.Time { return p.clk.Now() }

func TestSweeper_ThrottlesInlineSweeps(t *testing.T) {
	ctx := context.Background()
	p := &countingPurger{clk: clock.NewManual(t0)}
	s := NewSweeper(p, time.Minute, 2*time.Second)

	n, ran := s.Sweep(ctx)
	assert.True(t, ran)
	assert.EqualValues(t, 3, n)

	_, ran = s.Sweep(ctx)
	assert.False(t, ran)

	p.clk.Advance(2 * time.Second)
	_, ran = s.Sweep(ctx)
	assert.True(t, ran)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestSweeper_SwallowsErrors(t *testing.T) {
	p := &countingPurger{clk: clock.NewManual(t0), err: errors.New("db down")}
	s := NewSweeper(p, time.Minute, 0)

	n, ran := s.Sweep(context.Background())
	assert.True(t, ran)
	assert.Zero(t, n)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	p := &countingPurger{clk: clock.NewManual(t0)}
	s := NewSweeper(p, 5*time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_PurgesThroughEngine(t *testing.T) {
	ctx := context.Background()
	e, clk := newTestEngine(t)
	_, err := e.PlaceHold(ctx, "A", testShow, []string{"A1", "A2"}, time.Second)
	require.NoError(t, err)

	s := NewSweeper(e, time.Minute, 0)
	n, _ := s.Sweep(ctx)
	assert.Zero(t, n)

	clk.Advance(time.Second)
	n, _ = s.Sweep(ctx)
	assert.EqualValues(t, 2, n)
}
