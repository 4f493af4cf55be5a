package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/seat-hold-engine/internal/logging"
)

// Purger is the part of Engine the sweeper drives.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
	Now() time.Time
}

// Sweeper deletes expired holds in the background and opportunistically
// on request paths.  Correctness never depends on it: occupancy already
// ignores expired rows.
type Sweeper struct {
	purger   Purger
	interval time.Duration
	minGap   time.Duration

	running sync.Mutex
	lastRun atomic.Int64 // unix nanos of the last attempt
}

// NewSweeper builds a sweeper that purges every interval and at most once
// per minGap when triggered inline.
func NewSweeper(p Purger, interval, minGap time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if minGap < 0 {
		minGap = 0
	}
	return &Sweeper{purger: p, interval: interval, minGap: minGap}
}

// Sweep runs a purge unless one ran less than minGap ago or is running
// now.  Failures are logged and swallowed so the caller's own operation
// proceeds.  It reports the number of rows removed and whether a purge
// was attempted.
func (s *Sweeper) Sweep(ctx context.Context) (int64, bool) {
	now := s.purger.Now()
	last := s.lastRun.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) < s.minGap {
		return 0, false
	}
	if !s.running.TryLock() {
		return 0, false
	}
	defer s.running.Unlock()
	s.lastRun.Store(now.UnixNano())

	n, err := s.purger.PurgeExpired(ctx)
	log := logging.FromContext(ctx).WithField("component", "sweeper")
	if err != nil {
		log.WithError(err).Warn("purge of expired holds failed")
		return 0, true
	}
	if n > 0 {
		log.WithField("purged", n).Debug("expired holds purged")
	}
	return n, true
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	logging.FromContext(ctx).WithFields(logrus.Fields{
		"component": "sweeper",
		"interval":  s.interval.String(),
	}).Info("sweeper started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
