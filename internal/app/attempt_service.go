package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cricket-trivia-service/internal/domain"
	"cricket-trivia-service/internal/slot"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// DefaultLeaderboardLimit caps live leaderboard reads when no limit is given.
const DefaultLeaderboardLimit = 50

const referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// AttemptService contains the attempt bookkeeping use cases.
type AttemptService struct {
	store     Store
	primary   QuizRepository
	fallback  QuizRepository
	hub       *Hub
	publisher Publisher
	cal       slot.Calendar
	now       func() time.Time
	log       zerolog.Logger
	limit     int
}

// Option customizes an AttemptService.
type Option func(*AttemptService)

// WithQuizzes sets the primary and fallback question banks. fallback may be nil.
func WithQuizzes(primary, fallback QuizRepository) Option {
	return func(s *AttemptService) {
		s.primary = primary
		s.fallback = fallback
	}
}

// WithHub enables live leaderboard fan-out after commits.
func WithHub(hub *Hub) Option {
	return func(s *AttemptService) { s.hub = hub }
}

// WithPublisher announces commits to other services.
func WithPublisher(p Publisher) Option {
	return func(s *AttemptService) { s.publisher = p }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *AttemptService) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *AttemptService) { s.log = log }
}

// WithLeaderboardLimit overrides DefaultLeaderboardLimit.
func WithLeaderboardLimit(limit int) Option {
	return func(s *AttemptService) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

func NewAttemptService(store Store, cal slot.Calendar, opts ...Option) *AttemptService {
	s := &AttemptService{
		store: store,
		cal:   cal,
		now:   time.Now,
		log:   zerolog.Nop(),
		limit: DefaultLeaderboardLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Calendar exposes the slot calendar the service cuts time with.
func (s *AttemptService) Calendar() slot.Calendar {
	return s.cal
}

// CurrentSlot returns the slot id of the present instant.
func (s *AttemptService) CurrentSlot() string {
	return s.cal.ID(s.now())
}

// EnsureAccount returns the account for profile, creating it on first sight with a
// fresh referral code. referralCode, when it resolves to another user, records that
// user as the referrer.
func (s *AttemptService) EnsureAccount(ctx context.Context, profile domain.Profile, referralCode string) (domain.UserAccount, bool, error) {
	if profile.UserID == "" {
		return domain.UserAccount{}, false, &domain.ValidationError{Field: "userId", Reason: "is required"}
	}

	acct, err := s.store.GetAccount(ctx, profile.UserID)
	if err == nil {
		return acct, false, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return domain.UserAccount{}, false, err
	}

	code, err := gonanoid.Generate(referralAlphabet, 8)
	if err != nil {
		return domain.UserAccount{}, false, fmt.Errorf("generate referral code: %w", err)
	}
	acct = domain.UserAccount{
		ID:           profile.UserID,
		DisplayName:  profile.DisplayName,
		AvatarURL:    profile.AvatarURL,
		ReferralCode: code,
		Referrals:    []string{},
		CreatedAt:    s.now(),
	}

	if referralCode != "" {
		referrer, err := s.store.FindByReferralCode(ctx, referralCode)
		switch {
		case err == nil && referrer.ID != profile.UserID:
			acct.ReferredBy = referrer.ID
		case err != nil && !errors.Is(err, domain.ErrAccountNotFound):
			return domain.UserAccount{}, false, err
		default:
			s.log.Info().Str("user_id", profile.UserID).Str("referral_code", referralCode).Msg("ignoring unknown referral code")
		}
	}

	if err := s.store.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, domain.ErrAccountExists) {
			existing, getErr := s.store.GetAccount(ctx, profile.UserID)
			return existing, false, getErr
		}
		return domain.UserAccount{}, false, err
	}
	s.log.Info().Str("user_id", acct.ID).Str("referred_by", acct.ReferredBy).Msg("account created")
	return acct, true, nil
}

// GetAccount returns the account aggregate for userID.
func (s *AttemptService) GetAccount(ctx context.Context, userID string) (domain.UserAccount, error) {
	return s.store.GetAccount(ctx, userID)
}

// SubmitAnswers scores raw answers against the quiz content and commits the result.
type SubmitAnswers struct {
	UserID    string
	QuizID    string
	Answers   []string
	TimingsMs []int64
	Meta      Meta
	Override  *Override
}

// Submit builds the attempt server-side from raw answers and commits it.
func (s *AttemptService) Submit(ctx context.Context, req SubmitAnswers) (domain.CommitResult, error) {
	quiz, err := s.loadQuiz(ctx, req.QuizID, req.Meta.Source)
	if err != nil {
		return domain.CommitResult{}, err
	}

	attempt := BuildAttempt(s.cal, BuildInput{
		UserID:    req.UserID,
		Quiz:      quiz,
		Answers:   req.Answers,
		TimingsMs: req.TimingsMs,
		Meta:      req.Meta,
		At:        s.now(),
		Override:  req.Override,
	})
	return s.Commit(ctx, req.UserID, attempt)
}

func (s *AttemptService) loadQuiz(ctx context.Context, quizID, source string) (domain.Quiz, error) {
	repo := s.primary
	if source == domain.SourceFallback && s.fallback != nil {
		repo = s.fallback
	}
	if repo == nil {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return repo.GetQuiz(ctx, quizID)
}

// Commit validates the attempt and persists it with all of its bookkeeping in one
// atomic store operation. Counters increment on every call, including a repeat
// commit for a slot that already holds an attempt; Replaced flags that case.
func (s *AttemptService) Commit(ctx context.Context, userID string, attempt domain.QuizAttempt) (domain.CommitResult, error) {
	if attempt.UserID == "" {
		attempt.UserID = userID
	}
	if attempt.UserID != userID {
		return domain.CommitResult{}, &domain.ValidationError{Field: "userId", Reason: "does not match the authenticated user"}
	}
	if err := attempt.Validate(s.cal); err != nil {
		return domain.CommitResult{}, err
	}

	now := s.now()
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = now
	}

	logger := s.log.With().Str("user_id", userID).Str("slot_id", attempt.SlotID).Logger()
	result, err := s.store.CommitAttempt(ctx, attempt, now, s.cal)
	if err != nil {
		logger.Warn().Err(err).Bool("retryable", domain.Retryable(err)).Msg("attempt commit failed")
		return domain.CommitResult{}, err
	}
	if result.Replaced {
		logger.Warn().Msg("attempt replaced an existing attempt in the same slot; counters incremented again")
	}
	logger.Info().
		Int("score", result.Attempt.EffectiveScore()).
		Bool("perfect", result.Perfect).
		Str("streak", string(result.Streak)).
		Int("current_streak", result.Account.CurrentStreak).
		Msg("attempt committed")

	s.afterCommit(ctx, result)
	return result, nil
}

func (s *AttemptService) afterCommit(ctx context.Context, result domain.CommitResult) {
	if s.hub != nil && s.hub.Subscribers(result.Attempt.SlotID) > 0 {
		lb, err := s.Leaderboard(ctx, result.Attempt.SlotID, s.limit)
		if err != nil {
			s.log.Warn().Err(err).Str("slot_id", result.Attempt.SlotID).Msg("leaderboard refresh failed")
		} else {
			s.hub.Publish(lb)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.AttemptCommitted(ctx, result); err != nil {
			s.log.Warn().Err(err).Str("slot_id", result.Attempt.SlotID).Msg("publish attempt event failed")
		}
	}
}

// MarkReviewed flags the attempt as having had its answers revealed. Repeated calls
// succeed without further change.
func (s *AttemptService) MarkReviewed(ctx context.Context, userID, slotID string) error {
	if _, err := s.cal.Parse(slotID); err != nil {
		return &domain.ValidationError{Field: "slotId", Reason: err.Error()}
	}
	return s.store.MarkReviewed(ctx, userID, slotID)
}

// GetAttempt returns the attempt stored for (userID, slotID).
func (s *AttemptService) GetAttempt(ctx context.Context, userID, slotID string) (domain.QuizAttempt, error) {
	return s.store.GetAttempt(ctx, userID, slotID)
}

// History returns the user's attempts for a calendar day ("YYYY-MM-DD"); an empty day
// means today.
func (s *AttemptService) History(ctx context.Context, userID, day string) ([]domain.QuizAttempt, error) {
	if day == "" {
		day = s.cal.Day(s.now())
	}
	from, to, err := s.cal.DayBounds(day)
	if err != nil {
		return nil, err
	}
	return s.store.ListAttempts(ctx, userID, from, to)
}

// Leaderboard returns the ranked live leaderboard of a slot.
func (s *AttemptService) Leaderboard(ctx context.Context, slotID string, limit int) (domain.Leaderboard, error) {
	if _, err := s.cal.Parse(slotID); err != nil {
		return domain.Leaderboard{}, &domain.ValidationError{Field: "slotId", Reason: err.Error()}
	}
	if limit <= 0 {
		limit = s.limit
	}
	entries, err := s.store.TopLeaderboard(ctx, slotID, limit)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	domain.RankEntries(entries)
	return domain.Leaderboard{SlotID: slotID, Entries: entries, UpdatedAt: s.now()}, nil
}

// Subscribe returns a channel that receives leaderboard updates for a slot, primed
// with the current snapshot. The caller must invoke the returned cancel function.
func (s *AttemptService) Subscribe(ctx context.Context, slotID string) (<-chan domain.Leaderboard, func(), error) {
	if s.hub == nil {
		return nil, nil, errors.New("live leaderboard disabled")
	}
	initial, err := s.Leaderboard(ctx, slotID, s.limit)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.SubscribeWith(slotID, initial)
	return ch, cancel, nil
}

// Stats returns the global counters.
func (s *AttemptService) Stats(ctx context.Context) (domain.GlobalStats, error) {
	return s.store.GlobalStats(ctx)
}
