package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/seat-hold-engine/internal/model"
)

// MemoryStore is an in-process Store.  Each show has its own writer lock
// and an immutable committed state that WithShow replaces on success, so
// readers never observe a half-applied change.  It backs tests and the
// LEDGER_DRIVER=memory mode; state is lost on restart.
type MemoryStore struct {
	mu     sync.Mutex
	shows  map[model.ShowKey]*memShow
	nextID atomic.Uint64
}

type memShow struct {
	write sync.Mutex // serializes WithShow and purge for the show

	mu    sync.RWMutex
	state *memState
}

type memState struct {
	holds    map[string]model.SeatHold
	reserved map[string]model.Reservation
}

func (s *memState) clone() *memState {
	c := &memState{
		holds:    make(map[string]model.SeatHold, len(s.holds)),
		reserved: make(map[string]model.Reservation, len(s.reserved)),
	}
	for k, v := range s.holds {
		c.holds[k] = v
	}
	for k, v := range s.reserved {
		c.reserved[k] = v
	}
	return c
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{shows: make(map[model.ShowKey]*memShow)}
}

func (m *MemoryStore) show(key model.ShowKey) *memShow {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.shows[key]
	if !ok {
		sh = &memShow{state: &memState{
			holds:    map[string]model.SeatHold{},
			reserved: map[string]model.Reservation{},
		}}
		m.shows[key] = sh
	}
	return sh
}

// lookup returns the show without creating it.  Read paths use it so
// queries for unknown shows leave no trace.
func (m *MemoryStore) lookup(key model.ShowKey) (*memShow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.shows[key]
	return sh, ok
}

func (sh *memShow) current() *memState {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.state
}

func (sh *memShow) commit(st *memState) {
	sh.mu.Lock()
	sh.state = st
	sh.mu.Unlock()
}

// WithShow implements Store.
func (m *MemoryStore) WithShow(ctx context.Context, show model.ShowKey, fn func(ctx context.Context, tx ShowTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := m.show(show)
	sh.write.Lock()
	defer sh.write.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{store: m, show: show, state: sh.current().clone()}
	err := fn(ctx, tx)
	tx.done = true
	if err != nil {
		return err
	}
	sh.commit(tx.state)
	return nil
}

// Snapshot implements Store.
func (m *MemoryStore) Snapshot(ctx context.Context, show model.ShowKey) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	sh, ok := m.lookup(show)
	if !ok {
		return Snapshot{Reserved: []string{}, Holds: []model.SeatHold{}}, nil
	}
	st := sh.current()
	snap := Snapshot{
		Reserved: make([]string, 0, len(st.reserved)),
		Holds:    make([]model.SeatHold, 0, len(st.holds)),
	}
	for seat := range st.reserved {
		snap.Reserved = append(snap.Reserved, seat)
	}
	for _, h := range st.holds {
		snap.Holds = append(snap.Holds, h)
	}
	return snap, nil
}

// PurgeExpired implements Store.
func (m *MemoryStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	shows := make([]*memShow, 0, len(m.shows))
	for _, sh := range m.shows {
		shows = append(shows, sh)
	}
	m.mu.Unlock()

	var total int64
	for _, sh := range shows {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		sh.write.Lock()
		st := sh.current()
		var expired int
		for _, h := range st.holds {
			if !h.Active(now) {
				expired++
			}
		}
		if expired > 0 {
			next := st.clone()
			for seat, h := range next.holds {
				if !h.Active(now) {
					delete(next.holds, seat)
				}
			}
			sh.commit(next)
			total += int64(expired)
		}
		sh.write.Unlock()
	}
	return total, nil
}

// Reservations implements Store.
func (m *MemoryStore) Reservations(ctx context.Context, show model.ShowKey) ([]model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sh, ok := m.lookup(show)
	if !ok {
		return []model.Reservation{}, nil
	}
	st := sh.current()
	out := make([]model.Reservation, 0, len(st.reserved))
	for _, r := range st.reserved {
		out = append(out, r)
	}
	return out, nil
}

var errTxClosed = errors.New("show transaction already finished")

// memTx stages writes on a private copy of the show state.
type memTx struct {
	store *MemoryStore
	show  model.ShowKey
	state *memState
	done  bool
}

func (tx *memTx) check(ctx context.Context) error {
	if tx.done {
		return errTxClosed
	}
	return ctx.Err()
}

func (tx *memTx) Reserved(ctx context.Context) ([]string, error) {
	if err := tx.check(ctx); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tx.state.reserved))
	for seat := range tx.state.reserved {
		out = append(out, seat)
	}
	return out, nil
}

func (tx *memTx) Holds(ctx context.Context) ([]model.SeatHold, error) {
	if err := tx.check(ctx); err != nil {
		return nil, err
	}
	out := make([]model.SeatHold, 0, len(tx.state.holds))
	for _, h := range tx.state.holds {
		out = append(out, h)
	}
	return out, nil
}

func (tx *memTx) DeleteExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	if err := tx.check(ctx); err != nil {
		return 0, err
	}
	var n int64
	for seat, h := range tx.state.holds {
		if !h.Active(now) {
			delete(tx.state.holds, seat)
			n++
		}
	}
	return n, nil
}

func (tx *memTx) DeleteHoldsByToken(ctx context.Context, token string) (int64, error) {
	if err := tx.check(ctx); err != nil {
		return 0, err
	}
	var n int64
	for seat, h := range tx.state.holds {
		if h.Token == token {
			delete(tx.state.holds, seat)
			n++
		}
	}
	return n, nil
}

func (tx *memTx) InsertHolds(ctx context.Context, holds []model.SeatHold) error {
	if err := tx.check(ctx); err != nil {
		return err
	}
	var dup []string
	batch := make(map[string]struct{}, len(holds))
	for _, h := range holds {
		_, exists := tx.state.holds[h.Seat]
		_, twice := batch[h.Seat]
		if exists || twice {
			dup = append(dup, h.Seat)
		}
		batch[h.Seat] = struct{}{}
	}
	if len(dup) > 0 {
		return &ConflictError{Seats: model.SortSeats(dup)}
	}
	for _, h := range holds {
		h.Show = tx.show
		tx.state.holds[h.Seat] = h
	}
	return nil
}

func (tx *memTx) InsertReservations(ctx context.Context, res []model.Reservation) error {
	if err := tx.check(ctx); err != nil {
		return err
	}
	var dup []string
	batch := make(map[string]struct{}, len(res))
	for _, r := range res {
		_, exists := tx.state.reserved[r.Seat]
		_, twice := batch[r.Seat]
		if exists || twice {
			dup = append(dup, r.Seat)
		}
		batch[r.Seat] = struct{}{}
	}
	if len(dup) > 0 {
		return &ConflictError{Seats: model.SortSeats(dup)}
	}
	for _, r := range res {
		r.Show = tx.show
		r.ID = tx.store.nextID.Add(1)
		tx.state.reserved[r.Seat] = r
	}
	return nil
}
