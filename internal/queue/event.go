// Package queue defines the seats.confirmed message and the consumer that
// records confirmations in an append-only log.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/seat-hold-engine/internal/model"
)

// SeatsConfirmedQueue is the durable queue confirmations are published to.
const SeatsConfirmedQueue = "seats.confirmed"

// SeatsConfirmedEvent is published after holds were converted into
// reservations.  It carries enough for receipts, e-mail or analytics to
// run without reading the ledger.
type SeatsConfirmedEvent struct {
	EventID     string        `json:"event_id"`
	Show        model.ShowKey `json:"show"`
	Seats       []string      `json:"seats"`
	Owner       string        `json:"owner"`
	PaymentRef  string        `json:"payment_ref"`
	ConfirmedAt time.Time     `json:"confirmed_at"`
}

// NewSeatsConfirmedEvent stamps a new event id.
func NewSeatsConfirmedEvent(show model.ShowKey, seats []string, owner, paymentRef string, at time.Time) SeatsConfirmedEvent {
	return SeatsConfirmedEvent{
		EventID:     uuid.NewString(),
		Show:        show,
		Seats:       seats,
		Owner:       owner,
		PaymentRef:  paymentRef,
		ConfirmedAt: at.UTC(),
	}
}
