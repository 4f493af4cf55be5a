// Package repository holds the MySQL persistence of the seat ledger.
// Driver errors are translated here so higher layers only see ledger
// error kinds: a unique key violation on (show, seat) becomes a
// *ledger.ConflictError, everything else is surfaced unchanged and
// wrapped into a *ledger.StorageError by the engine.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the ledger reacts to.
const (
	errDupEntry = 1062 // ER_DUP_ENTRY
)

// isDuplicateKey reports whether err is a MySQL unique key violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDupEntry
}
