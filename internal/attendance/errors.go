package attendance

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidToken rejects a scan matching neither payload format.
	ErrInvalidToken = errors.New("qr payload not recognized; expected a signed token or ATTEND:<identifier>")
	// ErrUserNotFound rejects a structured token whose user id is not in
	// the directory.
	ErrUserNotFound = errors.New("no user found for scanned token")
	// ErrInactiveUser rejects scans for deactivated accounts.
	ErrInactiveUser = errors.New("user account is deactivated")
)

// ConflictCode names the once-per-day ordering rule an append violated.
type ConflictCode string

const (
	DuplicateCheckIn  ConflictCode = "duplicate_check_in"
	DuplicateCheckOut ConflictCode = "duplicate_check_out"
	MissingCheckIn    ConflictCode = "missing_check_in"
)

// ConflictError rejects an append that violates the per-day invariants.
// At carries the conflicting record's time for duplicates; it is zero for
// a missing check-in.
type ConflictError struct {
	Code ConflictCode
	At   time.Time
}

func (e *ConflictError) Error() string {
	switch e.Code {
	case DuplicateCheckIn:
		return fmt.Sprintf("already checked in today at %s", e.At.Local().Format("15:04:05"))
	case DuplicateCheckOut:
		return fmt.Sprintf("already checked out today at %s", e.At.Local().Format("15:04:05"))
	case MissingCheckIn:
		return "no check-in today, cannot check out"
	}
	return string(e.Code)
}
