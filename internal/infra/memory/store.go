package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"cricket-trivia-service/internal/domain"
	"cricket-trivia-service/internal/slot"
)

type attemptKey struct {
	userID string
	slotID string
}

// Store is an in-memory app.Store. One mutex serializes every operation, so a commit is
// observed entirely or not at all.
type Store struct {
	mu          sync.RWMutex
	accounts    map[string]domain.UserAccount
	attempts    map[attemptKey]domain.QuizAttempt
	leaderboard map[string]map[string]domain.LeaderboardEntry
	stats       domain.GlobalStats

	fault error
}

func NewStore() *Store {
	return &Store{
		accounts:    make(map[string]domain.UserAccount),
		attempts:    make(map[attemptKey]domain.QuizAttempt),
		leaderboard: make(map[string]map[string]domain.LeaderboardEntry),
	}
}

// FailWrites makes every following write return err until called with nil.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	s.fault = err
	s.mu.Unlock()
}

func (s *Store) CreateAccount(_ context.Context, acct domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault != nil {
		return s.fault
	}
	if _, ok := s.accounts[acct.ID]; ok {
		return domain.ErrAccountExists
	}
	if acct.ReferredBy != "" {
		if referrer, ok := s.accounts[acct.ReferredBy]; ok {
			referrer.Referrals = append(append([]string(nil), referrer.Referrals...), acct.ID)
			s.accounts[referrer.ID] = referrer
		}
	}
	s.accounts[acct.ID] = cloneAccount(acct)
	return nil
}

func (s *Store) GetAccount(_ context.Context, userID string) (domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return domain.UserAccount{}, domain.ErrAccountNotFound
	}
	return cloneAccount(acct), nil
}

func (s *Store) FindByReferralCode(_ context.Context, code string) (domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acct := range s.accounts {
		if acct.ReferralCode == code {
			return cloneAccount(acct), nil
		}
	}
	return domain.UserAccount{}, domain.ErrAccountNotFound
}

func (s *Store) CommitAttempt(_ context.Context, attempt domain.QuizAttempt, now time.Time, cal slot.Calendar) (domain.CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[attempt.UserID]
	if !ok {
		return domain.CommitResult{}, domain.ErrAccountNotFound
	}
	if s.fault != nil {
		return domain.CommitResult{}, s.fault
	}

	// Work on copies and swap them in together.
	acct := cloneAccount(current)
	delta := acct.ApplyAttempt(attempt, now, cal)

	stats := s.stats
	stats.TotalQuizzesPlayed++
	if delta.Perfect {
		stats.TotalPerfectScores++
	}

	key := attemptKey{userID: attempt.UserID, slotID: attempt.SlotID}
	_, replaced := s.attempts[key]
	stored := cloneAttempt(attempt)
	entry := domain.EntryFor(acct.Profile(), stored)

	s.accounts[acct.ID] = acct
	s.stats = stats
	s.attempts[key] = stored
	board, ok := s.leaderboard[attempt.SlotID]
	if !ok {
		board = make(map[string]domain.LeaderboardEntry)
		s.leaderboard[attempt.SlotID] = board
	}
	board[attempt.UserID] = entry

	return domain.CommitResult{
		Account:  cloneAccount(acct),
		Attempt:  cloneAttempt(stored),
		Entry:    entry,
		Perfect:  delta.Perfect,
		Streak:   delta.Streak,
		Replaced: replaced,
	}, nil
}

func (s *Store) GetAttempt(_ context.Context, userID, slotID string) (domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptKey{userID: userID, slotID: slotID}]
	if !ok {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	return cloneAttempt(attempt), nil
}

func (s *Store) ListAttempts(_ context.Context, userID string, from, to time.Time) ([]domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.QuizAttempt{}
	for key, attempt := range s.attempts {
		if key.userID != userID {
			continue
		}
		if attempt.CreatedAt.Before(from) || !attempt.CreatedAt.Before(to) {
			continue
		}
		out = append(out, cloneAttempt(attempt))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) MarkReviewed(_ context.Context, userID, slotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attemptKey{userID: userID, slotID: slotID}
	attempt, ok := s.attempts[key]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if attempt.Reviewed {
		return nil
	}
	if s.fault != nil {
		return s.fault
	}
	attempt.Reviewed = true
	s.attempts[key] = attempt
	return nil
}

func (s *Store) AddViolations(_ context.Context, userID string, n int, now time.Time, cal slot.Calendar) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	if s.fault != nil {
		return 0, s.fault
	}
	count := acct.RecordViolations(n, now, cal)
	s.accounts[userID] = acct
	return count, nil
}

func (s *Store) TopLeaderboard(_ context.Context, slotID string, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	entries := make([]domain.LeaderboardEntry, 0, len(s.leaderboard[slotID]))
	for _, entry := range s.leaderboard[slotID] {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	domain.RankEntries(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) GlobalStats(_ context.Context) (domain.GlobalStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats, nil
}

func cloneAccount(a domain.UserAccount) domain.UserAccount {
	a.Referrals = append([]string{}, a.Referrals...)
	if a.LastPlayedAt != nil {
		t := *a.LastPlayedAt
		a.LastPlayedAt = &t
	}
	if a.LastViolationAt != nil {
		t := *a.LastViolationAt
		a.LastViolationAt = &t
	}
	return a
}

func cloneAttempt(a domain.QuizAttempt) domain.QuizAttempt {
	a.TimingsMs = append([]int64{}, a.TimingsMs...)
	a.Answers = append([]string{}, a.Answers...)
	return a
}
