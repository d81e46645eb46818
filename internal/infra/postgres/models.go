package postgres

import (
	"time"

	"cricket-trivia-service/internal/domain"
	"github.com/uptrace/bun"
)

type accountRow struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID               string     `bun:"id,pk"`
	DisplayName      string     `bun:"display_name"`
	AvatarURL        string     `bun:"avatar_url"`
	QuizzesPlayed    int        `bun:"quizzes_played"`
	PerfectScores    int        `bun:"perfect_scores"`
	TotalScore       int64      `bun:"total_score"`
	TotalRewards     int64      `bun:"total_rewards"`
	CurrentStreak    int        `bun:"current_streak"`
	LongestStreak    int        `bun:"longest_streak"`
	LastPlayedAt     *time.Time `bun:"last_played_at"`
	ViolationsToday  int        `bun:"violations_today"`
	LastViolationAt  *time.Time `bun:"last_violation_at"`
	ReferralCode     string     `bun:"referral_code"`
	ReferredBy       string     `bun:"referred_by"`
	Referrals        []string   `bun:"referrals,array"`
	ReferralEarnings int64      `bun:"referral_earnings"`
	CreatedAt        time.Time  `bun:"created_at"`
}

func accountRowFrom(a domain.UserAccount) *accountRow {
	referrals := a.Referrals
	if referrals == nil {
		referrals = []string{}
	}
	return &accountRow{
		ID:               a.ID,
		DisplayName:      a.DisplayName,
		AvatarURL:        a.AvatarURL,
		QuizzesPlayed:    a.QuizzesPlayed,
		PerfectScores:    a.PerfectScores,
		TotalScore:       a.TotalScore,
		TotalRewards:     a.TotalRewards,
		CurrentStreak:    a.CurrentStreak,
		LongestStreak:    a.LongestStreak,
		LastPlayedAt:     a.LastPlayedAt,
		ViolationsToday:  a.ViolationsToday,
		LastViolationAt:  a.LastViolationAt,
		ReferralCode:     a.ReferralCode,
		ReferredBy:       a.ReferredBy,
		Referrals:        referrals,
		ReferralEarnings: a.ReferralEarnings,
		CreatedAt:        a.CreatedAt,
	}
}

func (r *accountRow) toDomain() domain.UserAccount {
	return domain.UserAccount{
		ID:               r.ID,
		DisplayName:      r.DisplayName,
		AvatarURL:        r.AvatarURL,
		QuizzesPlayed:    r.QuizzesPlayed,
		PerfectScores:    r.PerfectScores,
		TotalScore:       r.TotalScore,
		TotalRewards:     r.TotalRewards,
		CurrentStreak:    r.CurrentStreak,
		LongestStreak:    r.LongestStreak,
		LastPlayedAt:     r.LastPlayedAt,
		ViolationsToday:  r.ViolationsToday,
		LastViolationAt:  r.LastViolationAt,
		ReferralCode:     r.ReferralCode,
		ReferredBy:       r.ReferredBy,
		Referrals:        append([]string{}, r.Referrals...),
		ReferralEarnings: r.ReferralEarnings,
		CreatedAt:        r.CreatedAt,
	}
}

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts,alias:at"`

	UserID         string    `bun:"user_id,pk"`
	SlotID         string    `bun:"slot_id,pk"`
	QuizID         string    `bun:"quiz_id"`
	Score          int       `bun:"score"`
	TotalQuestions int       `bun:"total_questions"`
	TimingsMs      []int64   `bun:"timings_ms,array"`
	Answers        []string  `bun:"answers,array"`
	Format         string    `bun:"format"`
	Brand          string    `bun:"brand"`
	Reason         string    `bun:"reason"`
	Reviewed       bool      `bun:"reviewed"`
	Source         string    `bun:"source"`
	CreatedAt      time.Time `bun:"created_at"`
}

func attemptRowFrom(a domain.QuizAttempt) *attemptRow {
	timings := a.TimingsMs
	if timings == nil {
		timings = []int64{}
	}
	answers := a.Answers
	if answers == nil {
		answers = []string{}
	}
	return &attemptRow{
		UserID:         a.UserID,
		SlotID:         a.SlotID,
		QuizID:         a.QuizID,
		Score:          a.Score,
		TotalQuestions: a.TotalQuestions,
		TimingsMs:      timings,
		Answers:        answers,
		Format:         a.Format,
		Brand:          a.Brand,
		Reason:         a.Reason,
		Reviewed:       a.Reviewed,
		Source:         a.Source,
		CreatedAt:      a.CreatedAt,
	}
}

func (r *attemptRow) toDomain() domain.QuizAttempt {
	return domain.QuizAttempt{
		UserID:         r.UserID,
		SlotID:         r.SlotID,
		QuizID:         r.QuizID,
		Score:          r.Score,
		TotalQuestions: r.TotalQuestions,
		TimingsMs:      append([]int64{}, r.TimingsMs...),
		Answers:        append([]string{}, r.Answers...),
		Format:         r.Format,
		Brand:          r.Brand,
		Reason:         r.Reason,
		Reviewed:       r.Reviewed,
		Source:         r.Source,
		CreatedAt:      r.CreatedAt,
	}
}

type leaderboardRow struct {
	bun.BaseModel `bun:"table:live_leaderboard,alias:lb"`

	SlotID       string    `bun:"slot_id,pk"`
	UserID       string    `bun:"user_id,pk"`
	DisplayName  string    `bun:"display_name"`
	AvatarURL    string    `bun:"avatar_url"`
	Score        int       `bun:"score"`
	TotalTimeMs  int64     `bun:"total_time_ms"`
	Disqualified bool      `bun:"disqualified"`
	UpdatedAt    time.Time `bun:"updated_at"`
}

func (r *leaderboardRow) toDomain() domain.LeaderboardEntry {
	return domain.LeaderboardEntry{
		UserID:       r.UserID,
		DisplayName:  r.DisplayName,
		AvatarURL:    r.AvatarURL,
		Score:        r.Score,
		TotalTimeMs:  r.TotalTimeMs,
		Disqualified: r.Disqualified,
	}
}

type statsRow struct {
	bun.BaseModel `bun:"table:global_stats,alias:gs"`

	ID                 int16 `bun:"id,pk"`
	TotalQuizzesPlayed int64 `bun:"total_quizzes_played"`
	TotalPerfectScores int64 `bun:"total_perfect_scores"`
}
