package model

import (
	"sort"
	"strconv"
	"strings"
)

// SeatState is the lifecycle state of one seat within one show.  A seat
// is in exactly one state at any instant.
type SeatState string

const (
	SeatFree     SeatState = "FREE"
	SeatHeld     SeatState = "HELD"
	SeatReserved SeatState = "RESERVED"
	// SeatHeldByYou is a view-only state: the seat is held by the
	// requesting token.  It is Held from everyone else's point of view.
	SeatHeldByYou SeatState = "HELD_BY_YOU"
)

// SeatStatus pairs a seat code with its state for seat-map rendering.
type SeatStatus struct {
	Seat  string    `json:"seat"`
	State SeatState `json:"state"`
}

// NormalizeSeat trims and upper-cases a seat code.  "  b5 " becomes "B5".
func NormalizeSeat(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeSeats normalizes every code, drops blanks and removes
// duplicates while keeping the order of first appearance.
func NormalizeSeats(seats []string) []string {
	out := make([]string, 0, len(seats))
	seen := make(map[string]struct{}, len(seats))
	for _, s := range seats {
		n := NormalizeSeat(s)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// ParseSeatList splits a comma separated list such as "b5, B6,,c1" and
// normalizes the result.
func ParseSeatList(s string) []string {
	return NormalizeSeats(strings.Split(s, ","))
}

// MaxSeatCodeLen is the longest seat code the ledger stores.
const MaxSeatCodeLen = 8

// splitSeat separates the row letters from the column digits.  ok is
// false when the code does not have the shape LETTERS+DIGITS, is longer
// than MaxSeatCodeLen or has a zero-padded column ("A01" would alias A1).
func splitSeat(code string) (row string, col int, ok bool) {
	i := 0
	for i < len(code) && code[i] >= 'A' && code[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(code) || len(code) > MaxSeatCodeLen || code[i] == '0' {
		return "", 0, false
	}
	for j := i; j < len(code); j++ {
		if code[j] < '0' || code[j] > '9' {
			return "", 0, false
		}
	}
	n, err := strconv.Atoi(code[i:])
	if err != nil || n <= 0 {
		return "", 0, false
	}
	return code[:i], n, true
}

// ValidSeatCode reports whether an already normalized code looks like a
// seat: one or more row letters followed by a positive column number
// without leading zeros, at most MaxSeatCodeLen bytes in total.
func ValidSeatCode(code string) bool {
	_, _, ok := splitSeat(code)
	return ok
}

// SeatLess orders seats by row and then numerically by column, so A2
// sorts before A10.  Malformed codes fall back to string order.
func SeatLess(a, b string) bool {
	ra, ca, oka := splitSeat(a)
	rb, cb, okb := splitSeat(b)
	if !oka || !okb {
		return a < b
	}
	if ra != rb {
		if len(ra) != len(rb) {
			return len(ra) < len(rb)
		}
		return ra < rb
	}
	return ca < cb
}

// SortSeats sorts seat codes in place using SeatLess and returns them.
func SortSeats(seats []string) []string {
	sort.Slice(seats, func(i, j int) bool { return SeatLess(seats[i], seats[j]) })
	return seats
}

// Layout describes the seat grid of a room: each rune of Rows is a row
// letter and columns are numbered 1..Cols.
type Layout struct {
	Rows string `json:"rows"`
	Cols int    `json:"cols"`
}

// Empty reports whether the layout carries no grid.  An empty layout
// accepts any well-formed seat code.
func (l Layout) Empty() bool { return l.Rows == "" || l.Cols <= 0 }

// Contains reports whether the normalized code addresses a seat of the grid.
func (l Layout) Contains(code string) bool {
	if l.Empty() {
		return ValidSeatCode(code)
	}
	row, col, ok := splitSeat(code)
	if !ok || len(row) != 1 {
		return false
	}
	return strings.Contains(strings.ToUpper(l.Rows), row) && col <= l.Cols
}

// Codes lists every seat of the grid in row-major order.
func (l Layout) Codes() []string {
	if l.Empty() {
		return nil
	}
	rows := strings.ToUpper(l.Rows)
	out := make([]string, 0, len(rows)*l.Cols)
	for _, r := range rows {
		for c := 1; c <= l.Cols; c++ {
			out = append(out, string(r)+strconv.Itoa(c))
		}
	}
	return out
}
