package model

import "time"

// MaxHoldTokenLen is the longest hold token the ledger stores, in characters.
const MaxHoldTokenLen = 64

// SeatHold represents a temporary, token-scoped claim on one seat of a
// show while the shopper completes payment.  At most one hold exists for
// a given show and seat; a hold whose ExpiresAt has passed is treated as
// free even before the sweeper physically deletes it.
//
// Fields:
//  Show      – show for which the seat is held.
//  Seat      – normalized seat code.
//  Token     – opaque per-session token owning the hold.
//  ExpiresAt – when the hold stops blocking other shoppers.
//  CreatedAt – when the hold was written.
type SeatHold struct {
	Show      ShowKey   `json:"show"`
	Seat      string    `json:"seat"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Active reports whether the hold still blocks the seat at now.
func (h SeatHold) Active(now time.Time) bool {
	return h.ExpiresAt.After(now)
}
