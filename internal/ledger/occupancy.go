package ledger

import (
	"sort"
	"time"

	"github.com/iliyamo/seat-hold-engine/internal/model"
)

// occupiedSet is the set of seats unavailable to excludeToken at now:
// every reserved seat plus every live hold owned by another token.
// Expired holds never count, whether or not they were swept.
func occupiedSet(reserved []string, holds []model.SeatHold, now time.Time, excludeToken string) map[string]struct{} {
	set := make(map[string]struct{}, len(reserved)+len(holds))
	for _, s := range reserved {
		set[s] = struct{}{}
	}
	for _, h := range holds {
		if !h.Active(now) {
			continue
		}
		if excludeToken != "" && h.Token == excludeToken {
			continue
		}
		set[h.Seat] = struct{}{}
	}
	return set
}

// conflicts returns the requested seats present in occupied, in sorted order.
func conflicts(requested []string, occupied map[string]struct{}) []string {
	var out []string
	for _, s := range requested {
		if _, ok := occupied[s]; ok {
			out = append(out, s)
		}
	}
	return model.SortSeats(out)
}

// liveHoldsOf filters holds owned by token that are still active at now.
func liveHoldsOf(holds []model.SeatHold, token string, now time.Time) []model.SeatHold {
	var out []model.SeatHold
	for _, h := range holds {
		if h.Token == token && h.Active(now) {
			out = append(out, h)
		}
	}
	return out
}

func setToSorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return model.SortSeats(out)
}

func sortHolds(holds []model.SeatHold) {
	sort.Slice(holds, func(i, j int) bool { return model.SeatLess(holds[i].Seat, holds[j].Seat) })
}

func sortReservations(res []model.Reservation) {
	sort.Slice(res, func(i, j int) bool { return model.SeatLess(res[i].Seat, res[j].Seat) })
}
