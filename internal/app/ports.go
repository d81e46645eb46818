package app

import (
	"context"
	"time"

	"cricket-trivia-service/internal/domain"
	"cricket-trivia-service/internal/slot"
)

// Store abstracts the backend holding accounts, attempts, live leaderboards and the
// global counters (memory, Postgres, MongoDB).
type Store interface {
	// CreateAccount inserts a new account and, when ReferredBy is set, appends the new
	// user to the referrer's referral set. Returns domain.ErrAccountExists on conflict.
	CreateAccount(ctx context.Context, acct domain.UserAccount) error
	GetAccount(ctx context.Context, userID string) (domain.UserAccount, error)
	FindByReferralCode(ctx context.Context, code string) (domain.UserAccount, error)

	// CommitAttempt applies the whole attempt commit atomically: account counters and
	// streak, global counters, attempt upsert and leaderboard upsert.
	CommitAttempt(ctx context.Context, attempt domain.QuizAttempt, now time.Time, cal slot.Calendar) (domain.CommitResult, error)
	GetAttempt(ctx context.Context, userID, slotID string) (domain.QuizAttempt, error)
	// ListAttempts returns attempts created in [from, to) ordered by creation time.
	ListAttempts(ctx context.Context, userID string, from, to time.Time) ([]domain.QuizAttempt, error)
	MarkReviewed(ctx context.Context, userID, slotID string) error

	// AddViolations adds n malpractice violations seen at now to the user's count for
	// the calendar day of now and returns the new count. The read and the write happen
	// in one atomic step, so counters on several instances never lose an increment.
	AddViolations(ctx context.Context, userID string, n int, now time.Time, cal slot.Calendar) (int, error)

	// TopLeaderboard returns at most limit entries ordered by score desc, time asc.
	TopLeaderboard(ctx context.Context, slotID string, limit int) ([]domain.LeaderboardEntry, error)
	GlobalStats(ctx context.Context) (domain.GlobalStats, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Committer persists a built attempt. Satisfied by AttemptService (direct backend
// access) and by the remote API client.
type Committer interface {
	Commit(ctx context.Context, userID string, attempt domain.QuizAttempt) (domain.CommitResult, error)
}

// Outbox is a durable queue of attempts waiting to be committed, one entry per slot id.
// An outbox belongs to a single device.
type Outbox interface {
	// Enqueue stores the attempt under its slot id, replacing any previous entry.
	Enqueue(ctx context.Context, attempt domain.QuizAttempt) error
	// Dequeue removes the entry for slotID; a missing entry is not an error.
	Dequeue(ctx context.Context, slotID string) error
	ListAll(ctx context.Context) ([]domain.QuizAttempt, error)
}

// Publisher announces committed attempts to other services.
type Publisher interface {
	AttemptCommitted(ctx context.Context, result domain.CommitResult) error
}
