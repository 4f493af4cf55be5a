package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	holdsPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seat_holds_placed_total",
		Help: "Total number of seats placed on hold",
	})
	holdConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seat_hold_conflicts_total",
		Help: "Total number of hold or confirmation attempts rejected because of taken seats",
	}, []string{"op"})
	reservationsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seat_reservations_confirmed_total",
		Help: "Total number of seats converted from hold to reservation",
	})
	holdsPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seat_holds_purged_total",
		Help: "Total number of expired hold rows deleted",
	})
	storageErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seat_ledger_storage_errors_total",
		Help: "Total number of ledger operations aborted by a storage failure",
	}, []string{"op"})
)
