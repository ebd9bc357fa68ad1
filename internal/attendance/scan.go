package attendance

import (
	"context"
	"fmt"

	"qrattend/internal/directory"
	"qrattend/internal/qrtoken"
)

// Scanner processes one scanned string to completion: decode, resolve the
// user, validate, append, update the session. One scan finishes before the
// next is accepted; there is no background work.
type Scanner struct {
	codec *qrtoken.Codec
	dir   *directory.Service
	store *Store
}

// NewScanner wires the codec, directory and event store together.
func NewScanner(codec *qrtoken.Codec, dir *directory.Service, store *Store) *Scanner {
	return &Scanner{codec: codec, dir: dir, store: store}
}

// Scan records a check-in or check-out for the scanned payload.
//
// A structured token resolves strictly by user id. A legacy identifier is
// matched against student ids first, then employee ids; with no match the
// record is still appended under a synthesized legacy user id, preserving
// the pre-directory behavior.
func (s *Scanner) Scan(ctx context.Context, raw string, kind Kind, location, notes string) (Record, error) {
	dec := s.codec.Decode(raw)

	switch dec.Kind {
	case qrtoken.KindToken:
		user, err := s.dir.ByID(ctx, dec.Token.UserID)
		if err != nil {
			return Record{}, fmt.Errorf("resolve token user: %w", err)
		}
		if user == nil {
			return Record{}, ErrUserNotFound
		}
		if !user.IsActive {
			return Record{}, ErrInactiveUser
		}
		return s.store.Append(ctx, user, displayID(user), kind, location, notes)

	case qrtoken.KindLegacy:
		user, err := s.dir.ByStudentID(ctx, dec.LegacyID)
		if err != nil {
			return Record{}, fmt.Errorf("resolve student id: %w", err)
		}
		if user == nil {
			user, err = s.dir.ByEmployeeID(ctx, dec.LegacyID)
			if err != nil {
				return Record{}, fmt.Errorf("resolve employee id: %w", err)
			}
		}
		if user != nil && !user.IsActive {
			return Record{}, ErrInactiveUser
		}
		return s.store.Append(ctx, user, dec.LegacyID, kind, location, notes)

	default:
		return Record{}, ErrInvalidToken
	}
}

// displayID picks the identifier shown alongside a matched user's records.
func displayID(u *directory.User) string {
	switch {
	case u.StudentID != "":
		return u.StudentID
	case u.EmployeeID != "":
		return u.EmployeeID
	default:
		return u.ID
	}
}
