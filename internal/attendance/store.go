package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/blobstore"
	"qrattend/internal/directory"
)

const (
	recordsKey  = "attendance_records"
	sessionsKey = "attendance_sessions"
)

// Store is the append-only attendance log plus its derived session table,
// kept in an injected blob store. Records are persisted newest first.
type Store struct {
	store blobstore.Store
	now   func() time.Time
}

// NewStore creates a store on top of the given blob backend.
func NewStore(bs blobstore.Store) *Store {
	return &Store{store: bs, now: time.Now}
}

func (s *Store) loadRecords(ctx context.Context) ([]Record, error) {
	b, err := s.store.Get(ctx, recordsKey)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	if b == nil {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

func (s *Store) loadSessions(ctx context.Context) ([]Session, error) {
	b, err := s.store.Get(ctx, sessionsKey)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	if b == nil {
		return nil, nil
	}
	var sessions []Session
	if err := json.Unmarshal(b, &sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return sessions, nil
}

func (s *Store) saveSessions(ctx context.Context, sessions []Session) error {
	b, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	if err := s.store.Set(ctx, sessionsKey, b); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return nil
}

// Append validates and writes one attendance event, then updates the
// session for the affected (user, day) before returning. user may be nil
// for an unmatched legacy scan; the record then gets a synthesized
// "legacy:<rawID>" user id. Validation always precedes any write, and a
// failed session write rolls the record write back, so a rejected append
// leaves persisted state untouched.
func (s *Store) Append(ctx context.Context, user *directory.User, rawID string, kind Kind, location, notes string) (Record, error) {
	if !kind.Valid() {
		return Record{}, fmt.Errorf("unknown record kind %q", kind)
	}
	if user == nil && rawID == "" {
		return Record{}, errors.New("user or raw identifier required")
	}

	userID := LegacyPrefix + rawID
	if user != nil {
		userID = user.ID
	}

	records, err := s.loadRecords(ctx)
	if err != nil {
		return Record{}, err
	}

	now := s.now()
	rec := Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		User:      user,
		RawID:     rawID,
		Timestamp: now,
		Kind:      kind,
		Location:  location,
		Notes:     notes,
	}

	if err := checkDay(records, userID, rec.Day(), kind); err != nil {
		return Record{}, err
	}

	prev, err := json.Marshal(records)
	if err != nil {
		return Record{}, fmt.Errorf("encode records: %w", err)
	}
	updated, err := json.Marshal(append([]Record{rec}, records...))
	if err != nil {
		return Record{}, fmt.Errorf("encode records: %w", err)
	}

	sessions, err := s.loadSessions(ctx)
	if err != nil {
		return Record{}, err
	}
	sessions = applyToSessions(sessions, rec)

	if err := s.store.Set(ctx, recordsKey, updated); err != nil {
		return Record{}, fmt.Errorf("save records: %w", err)
	}
	if err := s.saveSessions(ctx, sessions); err != nil {
		// Keep the log and the session table consistent with each other.
		if restoreErr := s.store.Set(ctx, recordsKey, prev); restoreErr != nil {
			log.Printf("restore records after failed session write: %v; rebuild sessions to reconcile", restoreErr)
		}
		return Record{}, err
	}
	return rec, nil
}

// checkDay enforces the once-per-day rules for (userID, day).
func checkDay(records []Record, userID, day string, kind Kind) error {
	var checkIn, checkOut *Record
	for i := range records {
		r := &records[i]
		if r.UserID != userID || r.Day() != day {
			continue
		}
		switch r.Kind {
		case CheckIn:
			checkIn = r
		case CheckOut:
			checkOut = r
		}
	}

	switch kind {
	case CheckIn:
		if checkIn != nil {
			return &ConflictError{Code: DuplicateCheckIn, At: checkIn.Timestamp}
		}
	case CheckOut:
		if checkIn == nil {
			return &ConflictError{Code: MissingCheckIn}
		}
		if checkOut != nil {
			return &ConflictError{Code: DuplicateCheckOut, At: checkOut.Timestamp}
		}
	}
	return nil
}

// applyToSessions folds one record into the session table, locating or
// creating the session for (user, day) and recomputing total hours when
// both ends are present.
func applyToSessions(sessions []Session, rec Record) []Session {
	day := rec.Day()
	idx := -1
	for i := range sessions {
		if sessions[i].UserID == rec.UserID && sessions[i].Date == day {
			idx = i
			break
		}
	}
	if idx < 0 {
		sessions = append(sessions, Session{UserID: rec.UserID, Date: day})
		idx = len(sessions) - 1
	}

	r := rec
	switch rec.Kind {
	case CheckIn:
		sessions[idx].CheckIn = &r
	case CheckOut:
		sessions[idx].CheckOut = &r
	}

	if in, out := sessions[idx].CheckIn, sessions[idx].CheckOut; in != nil && out != nil {
		hours := round2(out.Timestamp.Sub(in.Timestamp).Hours())
		sessions[idx].TotalHours = &hours
	}
	return sessions
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

// Rebuild recomputes the whole session table from the record log. The fold
// pairs by kind, not arrival order, so it is idempotent and insensitive to
// record ordering; it only consumes a log that Append already validated.
func (s *Store) Rebuild(ctx context.Context) error {
	records, err := s.loadRecords(ctx)
	if err != nil {
		return err
	}
	var sessions []Session
	for i := len(records) - 1; i >= 0; i-- { // stored newest first
		sessions = applyToSessions(sessions, records[i])
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].Date != sessions[j].Date {
			return sessions[i].Date < sessions[j].Date
		}
		return sessions[i].UserID < sessions[j].UserID
	})
	return s.saveSessions(ctx, sessions)
}

// All returns the full log, most recent first.
func (s *Store) All(ctx context.Context) ([]Record, error) {
	return s.loadRecords(ctx)
}

// ForUser returns all records owned by userID, most recent first.
func (s *Store) ForUser(ctx context.Context, userID string) ([]Record, error) {
	records, err := s.loadRecords(ctx)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

// ForUserToday returns userID's records for the current local day.
func (s *Store) ForUserToday(ctx context.Context, userID string) ([]Record, error) {
	records, err := s.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	today := s.now().Local().Format("2006-01-02")
	var out []Record
	for _, r := range records {
		if r.Day() == today {
			out = append(out, r)
		}
	}
	return out, nil
}

// Sessions returns the derived session table.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	return s.loadSessions(ctx)
}

// SessionFor returns the session for (userID, date) or nil.
func (s *Store) SessionFor(ctx context.Context, userID, date string) (*Session, error) {
	sessions, err := s.loadSessions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].UserID == userID && sessions[i].Date == date {
			sess := sessions[i]
			return &sess, nil
		}
	}
	return nil, nil
}

// ClearAll empties both the record log and the session table.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.store.Delete(ctx, recordsKey); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	if err := s.store.Delete(ctx, sessionsKey); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	return nil
}

// Stats summarizes the log and session table.
type Stats struct {
	TotalUsers      int     `json:"totalUsers"`
	TodayAttendance int     `json:"todayAttendance"`
	TotalRecords    int     `json:"totalRecords"`
	AverageHours    float64 `json:"averageHours"`
}

// ComputeStats derives summary counters on demand; nothing is persisted.
func (s *Store) ComputeStats(ctx context.Context) (Stats, error) {
	records, err := s.loadRecords(ctx)
	if err != nil {
		return Stats{}, err
	}
	sessions, err := s.loadSessions(ctx)
	if err != nil {
		return Stats{}, err
	}

	today := s.now().Local().Format("2006-01-02")
	users := make(map[string]struct{})
	todayUsers := make(map[string]struct{})
	for _, r := range records {
		users[r.UserID] = struct{}{}
		if r.Day() == today {
			todayUsers[r.UserID] = struct{}{}
		}
	}

	var sum float64
	var n int
	for _, sess := range sessions {
		if sess.TotalHours != nil {
			sum += *sess.TotalHours
			n++
		}
	}
	avg := 0.0
	if n > 0 {
		avg = round2(sum / float64(n))
	}

	return Stats{
		TotalUsers:      len(users),
		TodayAttendance: len(todayUsers),
		TotalRecords:    len(records),
		AverageHours:    avg,
	}, nil
}
