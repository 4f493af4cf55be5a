package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConflict is matched by every *ConflictError via errors.Is.
var ErrConflict = errors.New("seats unavailable")

// ErrStorage is matched by every *StorageError via errors.Is.
var ErrStorage = errors.New("seat ledger storage failure")

// Caller errors.  They are returned before any storage access.
var (
	ErrEmptySelection = errors.New("no seats requested")
	ErrInvalidTTL     = errors.New("hold ttl must be positive")
	ErrInvalidToken   = errors.New("hold token is required and at most 64 characters")
	ErrInvalidShow    = errors.New("show key is incomplete or too long")
	ErrInvalidRef     = errors.New("owner or payment reference too long")
)

// ConflictError names the requested seats that are held by another token
// or already reserved.  Seats is never empty.
type ConflictError struct {
	Seats []string
}

func (e *ConflictError) Error() string {
	return "seats unavailable: " + strings.Join(e.Seats, ", ")
}

// Is makes errors.Is(err, ErrConflict) true for any conflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// InvalidSeatError lists seat codes that are malformed or outside the
// configured room layout.
type InvalidSeatError struct {
	Seats []string
}

func (e *InvalidSeatError) Error() string {
	return "invalid seat codes: " + strings.Join(e.Seats, ", ")
}

// StorageError wraps a persistence failure.  The ledger never retries;
// the operation has been rolled back when this error is returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("seat ledger %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStorage) true for any storage failure.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// storageErr wraps err unless it already carries a ledger meaning.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce
	}
	var se *StorageError
	if errors.As(err, &se) {
		return se
	}
	return &StorageError{Op: op, Err: err}
}
