package domain

import "time"

// NoBall is the sentinel answer recorded for a question forfeited through malpractice.
// It is also the disqualification reason attached to such attempts.
const NoBall = "no-ball"

// Question bank an attempt was drawn from.
const (
	SourcePrimary  = "primary"
	SourceFallback = "fallback"
)

// Profile is the identity handed over by the authentication layer.
type Profile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// UserAccount is the per-user aggregate mutated by attempt commits.
type UserAccount struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`

	QuizzesPlayed int   `json:"quizzesPlayed"`
	PerfectScores int   `json:"perfectScores"`
	TotalScore    int64 `json:"totalScore"`
	TotalRewards  int64 `json:"totalRewards"`

	CurrentStreak int        `json:"currentStreak"`
	LongestStreak int        `json:"longestStreak"`
	LastPlayedAt  *time.Time `json:"lastPlayedAt,omitempty"`

	ViolationsToday int        `json:"violationsToday"`
	LastViolationAt *time.Time `json:"lastViolationAt,omitempty"`

	ReferralCode     string   `json:"referralCode"`
	ReferredBy       string   `json:"referredBy,omitempty"`
	Referrals        []string `json:"referrals"`
	ReferralEarnings int64    `json:"referralEarnings"`

	CreatedAt time.Time `json:"createdAt"`
}

// Profile returns the denormalized identity used on leaderboard rows.
func (a UserAccount) Profile() Profile {
	return Profile{UserID: a.ID, DisplayName: a.DisplayName, AvatarURL: a.AvatarURL}
}

// QuizAttempt is one completed or disqualified quiz, keyed by (UserID, SlotID).
type QuizAttempt struct {
	UserID         string    `json:"userId"`
	SlotID         string    `json:"slotId"`
	QuizID         string    `json:"quizId,omitempty"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	TimingsMs      []int64   `json:"timingsMs"`
	Answers        []string  `json:"answers"`
	Format         string    `json:"format,omitempty"`
	Brand          string    `json:"brand,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Reviewed       bool      `json:"reviewed"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Disqualified reports whether a disqualification reason is attached.
func (a QuizAttempt) Disqualified() bool {
	return a.Reason != ""
}

// EffectiveScore is the score counted towards totals and leaderboards.
func (a QuizAttempt) EffectiveScore() int {
	if a.Disqualified() {
		return 0
	}
	return a.Score
}

// IsPerfect: every question right, at least one question, not disqualified.
func (a QuizAttempt) IsPerfect() bool {
	return a.TotalQuestions > 0 && a.Score == a.TotalQuestions && !a.Disqualified()
}

// TotalTimeMs sums the per-question elapsed times.
func (a QuizAttempt) TotalTimeMs() int64 {
	var total int64
	for _, ms := range a.TimingsMs {
		total += ms
	}
	return total
}

// LeaderboardEntry is the denormalized row for one user in one slot.
type LeaderboardEntry struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	AvatarURL    string `json:"avatarUrl"`
	Score        int    `json:"score"`
	TotalTimeMs  int64  `json:"totalTimeMs"`
	Disqualified bool   `json:"disqualified"`
	Rank         int    `json:"rank,omitempty"`
}

// Leaderboard captures the ordered scoreboard for a slot.
type Leaderboard struct {
	SlotID    string             `json:"slotId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// GlobalStats is the singleton of cross-user counters.
type GlobalStats struct {
	TotalQuizzesPlayed int64 `json:"totalQuizzesPlayed"`
	TotalPerfectScores int64 `json:"totalPerfectScores"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
}

// CorrectOption returns the id of the first option flagged correct.
func (q Question) CorrectOption() string {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt.ID
		}
	}
	return ""
}

// Quiz is a collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Format    string     `json:"format,omitempty"`
	Brand     string     `json:"brand,omitempty"`
	Questions []Question `json:"questions"`
}

// CommitResult is what a store reports back after a successful attempt commit.
type CommitResult struct {
	Account  UserAccount      `json:"account"`
	Attempt  QuizAttempt      `json:"attempt"`
	Entry    LeaderboardEntry `json:"entry"`
	Perfect  bool             `json:"perfect"`
	Streak   StreakChange     `json:"streak"`
	Replaced bool             `json:"replaced"`
}
