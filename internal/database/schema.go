package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema creates the seat ledger tables.  Every table is keyed by the
// show tuple (movie_id, show_date, show_time, room); seat_holds and
// seat_reservations carry one row per seat and are unique on show+seat.
// Key and token columns use a binary collation so SQL compares them
// exactly like the engine does: tokens "abc" and "ABC" are different
// owners and "Sala 1" is not "sala 1".
var schema = []string{
	`CREATE TABLE IF NOT EXISTS show_locks (
		movie_id   VARCHAR(64) COLLATE utf8mb4_bin NOT NULL,
		show_date  VARCHAR(16) COLLATE utf8mb4_bin NOT NULL,
		show_time  VARCHAR(16) COLLATE utf8mb4_bin NOT NULL,
		room       VARCHAR(64) COLLATE utf8mb4_bin NOT NULL,
		locked_at  DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		PRIMARY KEY (movie_id, show_date, show_time, room)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS seat_holds (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		movie_id   VARCHAR(64) COLLATE utf8mb4_bin NOT NULL,
		show_date  VARCHAR(16) COLLATE utf8mb4_bin NOT NULL,
		show_time  VARCHAR(16) COLLATE utf8mb4_bin NOT NULL,
		room       VARCHAR(64) COLLATE utf8mb4_bin NOT NULL,
		seat       VARCHAR(8) COLLATE utf8mb4_bin NOT NULL,
		hold_token VARCHAR(64) COLLATE utf8mb4_bin NOT NULL,
		expires_at DATETIME(6) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_seat_holds_seat (movie_id, show_date, show_time, room, seat),
		KEY idx_seat_holds_token (hold_token),
		KEY idx_seat_holds_expires (expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS seat_reservations (
		id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		movie_id    VARCHAR(64) COLLATE utf8mb4_bin NOT NULL,
		show_date   VARCHAR(16) COLLATE utf8mb4_bin NOT NULL,
		show_time   VARCHAR(16) COLLATE utf8mb4_bin NOT NULL,
		room        VARCHAR(64) COLLATE utf8mb4_bin NOT NULL,
		seat        VARCHAR(8) COLLATE utf8mb4_bin NOT NULL,
		owner       VARCHAR(255) NOT NULL,
		payment_ref VARCHAR(128) NOT NULL,
		created_at  DATETIME(6)  NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_seat_reservations_seat (movie_id, show_date, show_time, room, seat),
		KEY idx_seat_reservations_payment (payment_ref)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates missing tables.  It is idempotent.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
