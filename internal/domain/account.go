package domain

import (
	"time"

	"cricket-trivia-service/internal/slot"
)

// StreakChange describes what a commit did to the daily streak.
type StreakChange string

const (
	StreakStarted  StreakChange = "started"
	StreakExtended StreakChange = "extended"
	StreakKept     StreakChange = "kept"
	StreakReset    StreakChange = "reset"
)

// CommitDelta summarizes the effect of ApplyAttempt on an account.
type CommitDelta struct {
	Perfect bool
	Streak  StreakChange
}

// ApplyAttempt folds one attempt into the account: streak transition, play counters
// and lastPlayedAt. Stores call it while holding the account inside their transaction.
func (a *UserAccount) ApplyAttempt(attempt QuizAttempt, now time.Time, cal slot.Calendar) CommitDelta {
	change := a.advanceStreak(now, cal)

	perfect := attempt.IsPerfect()
	a.QuizzesPlayed++
	a.TotalScore += int64(attempt.EffectiveScore())
	if perfect {
		a.PerfectScores++
	}
	played := now
	a.LastPlayedAt = &played

	return CommitDelta{Perfect: perfect, Streak: change}
}

func (a *UserAccount) advanceStreak(now time.Time, cal slot.Calendar) StreakChange {
	if a.LastPlayedAt == nil {
		a.CurrentStreak = 1
		if a.LongestStreak < 1 {
			a.LongestStreak = 1
		}
		return StreakStarted
	}

	gap := cal.DaysBetween(*a.LastPlayedAt, now)
	switch {
	case gap <= 0:
		// Already played today. A negative gap means the last play is stamped in
		// the future (clock skew); treat it as today.
		return StreakKept
	case gap == 1:
		a.CurrentStreak++
		if a.CurrentStreak > a.LongestStreak {
			a.LongestStreak = a.CurrentStreak
		}
		return StreakExtended
	default:
		a.CurrentStreak = 1
		if a.LongestStreak < 1 {
			a.LongestStreak = 1
		}
		return StreakReset
	}
}

// AddViolations applies the per-day malpractice rule to n new violations: the count
// restarts on the first violation of a calendar day and accumulates otherwise.
func AddViolations(count int, lastAt *time.Time, n int, now time.Time, cal slot.Calendar) int {
	if lastAt == nil || cal.Day(*lastAt) != cal.Day(now) {
		return n
	}
	return count + n
}

// NextViolationCount is AddViolations for a single violation.
func NextViolationCount(count int, lastAt *time.Time, now time.Time, cal slot.Calendar) int {
	return AddViolations(count, lastAt, 1, now, cal)
}

// RecordViolations updates the malpractice state with n violations seen at now and
// returns the new count for the day.
func (a *UserAccount) RecordViolations(n int, now time.Time, cal slot.Calendar) int {
	a.ViolationsToday = AddViolations(a.ViolationsToday, a.LastViolationAt, n, now, cal)
	at := now
	a.LastViolationAt = &at
	return a.ViolationsToday
}

// RecordViolation records a single violation.
func (a *UserAccount) RecordViolation(now time.Time, cal slot.Calendar) int {
	return a.RecordViolations(1, now, cal)
}
