package attendance

import (
	"time"

	"qrattend/internal/directory"
)

// Kind distinguishes the two attendance event directions.
type Kind string

const (
	CheckIn  Kind = "check-in"
	CheckOut Kind = "check-out"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return k == CheckIn || k == CheckOut }

// LegacyPrefix marks pseudo user ids synthesized for scans that matched no
// directory user.
const LegacyPrefix = "legacy:"

// Record is one append-only attendance event. Timestamp is the single
// source of truth for ordering; date and time strings are derived from it
// for display only.
type Record struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	// User is attached when the scan resolved to a directory entry; nil for
	// legacy scans with no match.
	User *directory.User `json:"user,omitempty"`
	// RawID keeps the scanned identifier for backward display even when a
	// full user match exists.
	RawID     string    `json:"rawId"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"type"`
	Location  string    `json:"location,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}

// Day returns the record's local calendar day, the scope for the
// once-per-day rules.
func (r Record) Day() string { return r.Timestamp.Local().Format("2006-01-02") }

// DateDisplay formats the record's calendar date for display and CSV.
func (r Record) DateDisplay() string { return r.Timestamp.Local().Format("02/01/2006") }

// TimeDisplay formats the record's wall-clock time for display and CSV.
func (r Record) TimeDisplay() string { return r.Timestamp.Local().Format("15:04:05") }

// Session pairs a user's check-in and check-out for one calendar day.
// Derived from the record log, never edited independently.
type Session struct {
	UserID   string  `json:"userId"`
	Date     string  `json:"date"` // local calendar day, YYYY-MM-DD
	CheckIn  *Record `json:"checkIn,omitempty"`
	CheckOut *Record `json:"checkOut,omitempty"`
	// TotalHours is set iff both references are, rounded to 2 decimals.
	TotalHours *float64 `json:"totalHours,omitempty"`
}

// Status reports the computed session state.
func (s Session) Status() string {
	switch {
	case s.CheckIn != nil && s.CheckOut != nil:
		return "complete"
	case s.CheckIn != nil:
		return "partial"
	default:
		return "missing"
	}
}
