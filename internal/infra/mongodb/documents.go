package mongodb

import (
	"time"

	"cricket-trivia-service/internal/domain"
)

type userDoc struct {
	ID               string     `bson:"_id"`
	DisplayName      string     `bson:"displayName"`
	AvatarURL        string     `bson:"avatarUrl"`
	QuizzesPlayed    int        `bson:"quizzesPlayed"`
	PerfectScores    int        `bson:"perfectScores"`
	TotalScore       int64      `bson:"totalScore"`
	TotalRewards     int64      `bson:"totalRewards"`
	CurrentStreak    int        `bson:"currentStreak"`
	LongestStreak    int        `bson:"longestStreak"`
	LastPlayedAt     *time.Time `bson:"lastPlayedAt,omitempty"`
	ViolationsToday  int        `bson:"violationsToday"`
	LastViolationAt  *time.Time `bson:"lastViolationAt,omitempty"`
	ReferralCode     string     `bson:"referralCode"`
	ReferredBy       string     `bson:"referredBy,omitempty"`
	Referrals        []string   `bson:"referrals"`
	ReferralEarnings int64      `bson:"referralEarnings"`
	CreatedAt        time.Time  `bson:"createdAt"`
}

func userDocFrom(a domain.UserAccount) userDoc {
	referrals := a.Referrals
	if referrals == nil {
		referrals = []string{}
	}
	return userDoc{
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

func (d userDoc) toDomain() domain.UserAccount {
	return domain.UserAccount{
		ID:               d.ID,
		DisplayName:      d.DisplayName,
		AvatarURL:        d.AvatarURL,
		QuizzesPlayed:    d.QuizzesPlayed,
		PerfectScores:    d.PerfectScores,
		TotalScore:       d.TotalScore,
		TotalRewards:     d.TotalRewards,
		CurrentStreak:    d.CurrentStreak,
		LongestStreak:    d.LongestStreak,
		LastPlayedAt:     d.LastPlayedAt,
		ViolationsToday:  d.ViolationsToday,
		LastViolationAt:  d.LastViolationAt,
		ReferralCode:     d.ReferralCode,
		ReferredBy:       d.ReferredBy,
		Referrals:        append([]string{}, d.Referrals...),
		ReferralEarnings: d.ReferralEarnings,
		CreatedAt:        d.CreatedAt,
	}
}

// attemptDoc ids are "{userID}/{slotID}", mirroring the per-user attempt subcollection.
type attemptDoc struct {
	ID             string    `bson:"_id"`
	UserID         string    `bson:"userId"`
	SlotID         string    `bson:"slotId"`
	QuizID         string    `bson:"quizId,omitempty"`
	Score          int       `bson:"score"`
	TotalQuestions int       `bson:"totalQuestions"`
	TimingsMs      []int64   `bson:"timingsMs"`
	Answers        []string  `bson:"answers"`
	Format         string    `bson:"format,omitempty"`
	Brand          string    `bson:"brand,omitempty"`
	Reason         string    `bson:"reason,omitempty"`
	Reviewed       bool      `bson:"reviewed"`
	Source         string    `bson:"source"`
	CreatedAt      time.Time `bson:"createdAt"`
}

func attemptID(userID, slotID string) string {
	return userID + "/" + slotID
}

func attemptDocFrom(a domain.QuizAttempt) attemptDoc {
	return attemptDoc{
		ID:             attemptID(a.UserID, a.SlotID),
		UserID:         a.UserID,
		SlotID:         a.SlotID,
		QuizID:         a.QuizID,
		Score:          a.Score,
		TotalQuestions: a.TotalQuestions,
		TimingsMs:      a.TimingsMs,
		Answers:        a.Answers,
		Format:         a.Format,
		Brand:          a.Brand,
		Reason:         a.Reason,
		Reviewed:       a.Reviewed,
		Source:         a.Source,
		CreatedAt:      a.CreatedAt,
	}
}

func (d attemptDoc) toDomain() domain.QuizAttempt {
	return domain.QuizAttempt{
		UserID:         d.UserID,
		SlotID:         d.SlotID,
		QuizID:         d.QuizID,
		Score:          d.Score,
		TotalQuestions: d.TotalQuestions,
		TimingsMs:      append([]int64{}, d.TimingsMs...),
		Answers:        append([]string{}, d.Answers...),
		Format:         d.Format,
		Brand:          d.Brand,
		Reason:         d.Reason,
		Reviewed:       d.Reviewed,
		Source:         d.Source,
		CreatedAt:      d.CreatedAt,
	}
}

// entryDoc ids are "{slotID}/{userID}".
type entryDoc struct {
	ID           string    `bson:"_id"`
	SlotID       string    `bson:"slotId"`
	UserID       string    `bson:"userId"`
	DisplayName  string    `bson:"displayName"`
	AvatarURL    string    `bson:"avatarUrl"`
	Score        int       `bson:"score"`
	TotalTimeMs  int64     `bson:"totalTime"`
	Disqualified bool      `bson:"disqualified"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (d entryDoc) toDomain() domain.LeaderboardEntry {
	return domain.LeaderboardEntry{
		UserID:       d.UserID,
		DisplayName:  d.DisplayName,
		AvatarURL:    d.AvatarURL,
		Score:        d.Score,
		TotalTimeMs:  d.TotalTimeMs,
		Disqualified: d.Disqualified,
	}
}

type statsDoc struct {
	ID                 string `bson:"_id"`
	TotalQuizzesPlayed int64  `bson:"totalQuizzesPlayed"`
	TotalPerfectScores int64  `bson:"totalPerfectScores"`
}
