package model

import "time"

// Column widths of reservation references, in characters.
const (
	MaxOwnerLen      = 255
	MaxPaymentRefLen = 128
)

// Reservation is a permanent claim on one seat of a show tied to a
// confirmed payment.  Reservations never expire and are never
// overwritten; at most one exists per show and seat.
//
// Fields:
//  ID         – storage identifier (zero until persisted).
//  Show       – show in which the seat is booked.
//  Seat       – normalized seat code.
//  Owner      – owning identity, typically the customer e-mail.
//  PaymentRef – external payment or transaction reference.
//  CreatedAt  – confirmation timestamp.
type Reservation struct {
	ID         uint64    `json:"id"`
	Show       ShowKey   `json:"show"`
	Seat       string    `json:"seat"`
	Owner      string    `json:"owner"`
	PaymentRef string    `json:"payment_ref"`
	CreatedAt  time.Time `json:"created_at"`
}
