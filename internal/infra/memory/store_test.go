package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"cricket-trivia-service/internal/domain"
	"cricket-trivia-service/internal/slot"
)

var ist = slot.Default()

func seedAccount(t *testing.T, s *Store, id string) {
	t.Helper()
	if err := s.CreateAccount(context.Background(), domain.UserAccount{ID: id, DisplayName: "Player " + id, ReferralCode: "CODE" + id}); err != nil {
		t.Fatalf("create account: %v", err)
	}
}

func attemptAt(userID string, at time.Time, score, total int) domain.QuizAttempt {
	return domain.QuizAttempt{
		UserID:         userID,
		SlotID:         ist.ID(at),
		Score:          score,
		TotalQuestions: total,
		TimingsMs:      []int64{1000, 2000},
		Answers:        []string{"o1", "o2"},
		Source:         domain.SourcePrimary,
		CreatedAt:      at,
	}
}

func TestStoreFirstQuizPerfect(t *testing.T) {
	s := NewStore()
	seedAccount(t, s, "u1")
	now := time.Date(2024, 3, 15, 9, 5, 0, 0, ist.Location())

	res, err := s.CommitAttempt(context.Background(), attemptAt("u1", now, 5, 5), now, ist)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	acct := res.Account
	if acct.QuizzesPlayed != 1 || acct.PerfectScores != 1 || acct.TotalScore != 5 || acct.CurrentStreak != 1 || acct.LongestStreak != 1 {
		t.Fatalf("unexpected account after first quiz: %+v", acct)
	}
	if res.Streak != domain.StreakStarted || !res.Perfect {
		t.Fatalf("unexpected commit delta: %+v", res)
	}
	stats, _ := s.GlobalStats(context.Background())
	if stats.TotalQuizzesPlayed != 1 || stats.TotalPerfectScores != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestStoreRepeatCommitOverwritesAttemptAndCountsTwice(t *testing.T) {
	s := NewStore()
	seedAccount(t, s, "u1")
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 9, 5, 0, 0, ist.Location())

	first := attemptAt("u1", now, 2, 5)
	if _, err := s.CommitAttempt(ctx, first, now, ist); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	second := attemptAt("u1", now.Add(time.Minute), 4, 5)
	res, err := s.CommitAttempt(ctx, second, now.Add(time.Minute), ist)
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if !res.Replaced {
		t.Fatalf("expected second commit to report a replaced attempt")
	}

	from, to, _ := ist.DayBounds(ist.Day(now))
	attempts, _ := s.ListAttempts(ctx, "u1", from, to)
	if len(attempts) != 1 || attempts[0].Score != 4 {
		t.Fatalf("expected single attempt with second write, got %+v", attempts)
	}
	acct, _ := s.GetAccount(ctx, "u1")
	if acct.QuizzesPlayed != 2 || acct.TotalScore != 6 {
		t.Fatalf("expected counters incremented twice, got %+v", acct)
	}
	stats, _ := s.GlobalStats(ctx)
	if stats.TotalQuizzesPlayed != 2 {
		t.Fatalf("expected global counter 2, got %d", stats.TotalQuizzesPlayed)
	}
	board, _ := s.TopLeaderboard(ctx, first.SlotID, 10)
	if len(board) != 1 || board[0].Score != 4 {
		t.Fatalf("expected one leaderboard row with latest score, got %+v", board)
	}
}

func TestStoreDisqualifiedAttempt(t *testing.T) {
	s := NewStore()
	seedAccount(t, s, "u1")
	now := time.Date(2024, 3, 15, 9, 5, 0, 0, ist.Location())
	attempt := attemptAt("u1", now, 0, 5)
	attempt.Reason = domain.NoBall

	res, err := s.CommitAttempt(context.Background(), attempt, now, ist)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.Account.PerfectScores != 0 || res.Account.TotalScore != 0 {
		t.Fatalf("disqualified attempt must not score: %+v", res.Account)
	}
	if !res.Entry.Disqualified {
		t.Fatalf("expected disqualified leaderboard row")
	}
}

func TestStoreFailedCommitLeavesNoTrace(t *testing.T) {
	s := NewStore()
	seedAccount(t, s, "u1")
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 9, 5, 0, 0, ist.Location())
	before, _ := s.GetAccount(ctx, "u1")

	s.FailWrites(domain.ErrConnectivity)
	attempt := attemptAt("u1", now, 5, 5)
	if _, err := s.CommitAttempt(ctx, attempt, now, ist); !errors.Is(err, domain.ErrConnectivity) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
	s.FailWrites(nil)

	after, _ := s.GetAccount(ctx, "u1")
	if after.QuizzesPlayed != before.QuizzesPlayed || after.LastPlayedAt != nil {
		t.Fatalf("account mutated by failed commit: %+v", after)
	}
	if _, err := s.GetAttempt(ctx, "u1", attempt.SlotID); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected no attempt, got %v", err)
	}
	stats, _ := s.GlobalStats(ctx)
	if stats.TotalQuizzesPlayed != 0 {
		t.Fatalf("stats mutated by failed commit: %+v", stats)
	}
	board, _ := s.TopLeaderboard(ctx, attempt.SlotID, 10)
	if len(board) != 0 {
		t.Fatalf("leaderboard mutated by failed commit: %+v", board)
	}
}

func TestStoreCommitUnknownAccount(t *testing.T) {
	s := NewStore()
	now := time.Now()
	if _, err := s.CommitAttempt(context.Background(), attemptAt("ghost", now, 1, 5), now, ist); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestStoreMarkReviewed(t *testing.T) {
	s := NewStore()
	seedAccount(t, s, "u1")
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 9, 5, 0, 0, ist.Location())
	attempt := attemptAt("u1", now, 3, 5)

	if err := s.MarkReviewed(ctx, "u1", attempt.SlotID); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
	if _, err := s.CommitAttempt(ctx, attempt, now, ist); err != nil {
		t.Fatalf("commit: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := s.MarkReviewed(ctx, "u1", attempt.SlotID); err != nil {
			t.Fatalf("mark reviewed %d: %v", i, err)
		}
	}
	got, _ := s.GetAttempt(ctx, "u1", attempt.SlotID)
	if !got.Reviewed || got.Score != 3 || len(got.Answers) != 2 {
		t.Fatalf("unexpected reviewed attempt %+v", got)
	}
}

func TestStoreReferralLinksReferrer(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedAccount(t, s, "ref")
	if err := s.CreateAccount(ctx, domain.UserAccount{ID: "new", ReferredBy: "ref"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateAccount(ctx, domain.UserAccount{ID: "new"}); !errors.Is(err, domain.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	ref, _ := s.FindByReferralCode(ctx, "CODEref")
	if len(ref.Referrals) != 1 || ref.Referrals[0] != "new" {
		t.Fatalf("expected referral recorded, got %+v", ref.Referrals)
	}
}
