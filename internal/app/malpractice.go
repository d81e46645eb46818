package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"cricket-trivia-service/internal/domain"
	"cricket-trivia-service/internal/slot"
	"github.com/rs/zerolog"
)

// DisqualifyThreshold is the number of violations in one calendar day that ends a quiz.
const DisqualifyThreshold = 3

// ErrViolationNotPersisted marks a count that was computed but could not be stored.
var ErrViolationNotPersisted = errors.New("violation not persisted")

// ShouldDisqualify reports whether count has reached DisqualifyThreshold.
func ShouldDisqualify(count int) bool {
	return count >= DisqualifyThreshold
}

// offlineViolations is what a counter knows about a user beyond the store: the last
// count the store reported today and violations counted while the store was down.
type offlineViolations struct {
	persisted int
	pending   int
}

// MalpracticeCounter tracks per-day violation counts. Every violation is added in the
// store, so counters on several instances agree. Violations that cannot be stored are
// kept in memory for the current day and folded into the next successful write.
type MalpracticeCounter struct {
	store Store
	cal   slot.Calendar
	now   func() time.Time
	log   zerolog.Logger

	mu      sync.Mutex
	day     string
	offline map[string]*offlineViolations
}

func NewMalpracticeCounter(store Store, cal slot.Calendar, log zerolog.Logger) *MalpracticeCounter {
	return &MalpracticeCounter{
		store:   store,
		cal:     cal,
		now:     time.Now,
		log:     log,
		offline: make(map[string]*offlineViolations),
	}
}

// SetClock is used by tests for deterministic timestamps.
func (m *MalpracticeCounter) SetClock(now func() time.Time) {
	m.now = now
}

// RecordViolation registers one violation and returns the resulting count for today.
// When the count cannot be persisted the best-known count is still returned together
// with an error wrapping ErrViolationNotPersisted and the store failure.
func (m *MalpracticeCounter) RecordViolation(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	now := m.now()

	// Take the unsynced violations out so a concurrent call cannot send them twice.
	m.mu.Lock()
	state := m.stateLocked(userID, now)
	pending := state.pending
	state.pending = 0
	m.mu.Unlock()

	count, err := m.store.AddViolations(ctx, userID, 1+pending, now, m.cal)

	m.mu.Lock()
	defer m.mu.Unlock()
	state = m.stateLocked(userID, now)
	switch {
	case err == nil:
		state.persisted = count
		return count, nil
	case errors.Is(err, domain.ErrAccountNotFound):
		delete(m.offline, userID)
		return 0, err
	default:
		state.pending += 1 + pending
		best := state.persisted + state.pending
		m.log.Warn().Err(err).Str("user_id", userID).Int("count", best).Msg("violation kept in memory only")
		return best, errors.Join(ErrViolationNotPersisted, err)
	}
}

// stateLocked returns the offline state of userID for the day of now, dropping every
// entry of earlier days. m.mu must be held.
func (m *MalpracticeCounter) stateLocked(userID string, now time.Time) *offlineViolations {
	if day := m.cal.Day(now); day != m.day {
		m.day = day
		m.offline = make(map[string]*offlineViolations)
	}
	state, ok := m.offline[userID]
	if !ok {
		state = &offlineViolations{}
		m.offline[userID] = state
	}
	return state
}
