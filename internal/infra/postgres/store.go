package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"cricket-trivia-service/internal/domain"
	"cricket-trivia-service/internal/slot"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Open returns a bun handle over the pgdriver connector for dsn.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Store is the relational app.Store. A commit runs in one transaction that locks the
// account row first, so commits of the same user are serialized while different users
// proceed in parallel.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateAccount(ctx context.Context, acct domain.UserAccount) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(accountRowFrom(acct)).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrAccountExists
			}
			return err
		}
		if acct.ReferredBy == "" {
			return nil
		}
		_, err := tx.NewUpdate().
			Model((*accountRow)(nil)).
			Set("referrals = array_append(referrals, ?)", acct.ID).
			Where("id = ?", acct.ReferredBy).
			Exec(ctx)
		return err
	})
	return classify("create account", err)
}

func (s *Store) GetAccount(ctx context.Context, userID string) (domain.UserAccount, error) {
	row := new(accountRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserAccount{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.UserAccount{}, classify("get account", err)
	}
	return row.toDomain(), nil
}

func (s *Store) FindByReferralCode(ctx context.Context, code string) (domain.UserAccount, error) {
	row := new(accountRow)
	err := s.db.NewSelect().Model(row).Where("referral_code = ?", code).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserAccount{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.UserAccount{}, classify("find referral code", err)
	}
	return row.toDomain(), nil
}

func (s *Store) CommitAttempt(ctx context.Context, attempt domain.QuizAttempt, now time.Time, cal slot.Calendar) (domain.CommitResult, error) {
	var result domain.CommitResult
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(accountRow)
		err := tx.NewSelect().Model(row).Where("id = ?", attempt.UserID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		acct := row.toDomain()
		delta := acct.ApplyAttempt(attempt, now, cal)
		if _, err := tx.NewUpdate().
			Model(accountRowFrom(acct)).
			Column("quizzes_played", "perfect_scores", "total_score", "current_streak", "longest_streak", "last_played_at").
			WherePK().
			Exec(ctx); err != nil {
			return err
		}

		perfect := 0
		if delta.Perfect {
			perfect = 1
		}
		if _, err := tx.NewUpdate().
			Model((*statsRow)(nil)).
			Set("total_quizzes_played = total_quizzes_played + 1").
			Set("total_perfect_scores = total_perfect_scores + ?", perfect).
			Where("id = 1").
			Exec(ctx); err != nil {
			return err
		}

		replaced, err := tx.NewSelect().
			Model((*attemptRow)(nil)).
			Where("user_id = ? AND slot_id = ?", attempt.UserID, attempt.SlotID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.NewInsert().
			Model(attemptRowFrom(attempt)).
			On("CONFLICT (user_id, slot_id) DO UPDATE").
			Set("quiz_id = EXCLUDED.quiz_id").
			Set("score = EXCLUDED.score").
			Set("total_questions = EXCLUDED.total_questions").
			Set("timings_ms = EXCLUDED.timings_ms").
			Set("answers = EXCLUDED.answers").
			Set("format = EXCLUDED.format").
			Set("brand = EXCLUDED.brand").
			Set("reason = EXCLUDED.reason").
			Set("reviewed = EXCLUDED.reviewed").
			Set("source = EXCLUDED.source").
			Set("created_at = EXCLUDED.created_at").
			Exec(ctx); err != nil {
			return err
		}

		entry := domain.EntryFor(acct.Profile(), attempt)
		if _, err := tx.NewInsert().
			Model(&leaderboardRow{
				SlotID:       attempt.SlotID,
				UserID:       entry.UserID,
				DisplayName:  entry.DisplayName,
				AvatarURL:    entry.AvatarURL,
				Score:        entry.Score,
				TotalTimeMs:  entry.TotalTimeMs,
				Disqualified: entry.Disqualified,
				UpdatedAt:    now,
			}).
			On("CONFLICT (slot_id, user_id) DO UPDATE").
			Set("display_name = EXCLUDED.display_name").
			Set("avatar_url = EXCLUDED.avatar_url").
			Set("score = EXCLUDED.score").
			Set("total_time_ms = EXCLUDED.total_time_ms").
			Set("disqualified = EXCLUDED.disqualified").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx); err != nil {
			return err
		}

		result = domain.CommitResult{
			Account:  acct,
			Attempt:  attempt,
			Entry:    entry,
			Perfect:  delta.Perfect,
			Streak:   delta.Streak,
			Replaced: replaced,
		}
		return nil
	})
	if err != nil {
		return domain.CommitResult{}, classify("commit attempt", err)
	}
	return result, nil
}

func (s *Store) GetAttempt(ctx context.Context, userID, slotID string) (domain.QuizAttempt, error) {
	row := new(attemptRow)
	err := s.db.NewSelect().Model(row).Where("user_id = ? AND slot_id = ?", userID, slotID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.QuizAttempt{}, classify("get attempt", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListAttempts(ctx context.Context, userID string, from, to time.Time) ([]domain.QuizAttempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Where("created_at >= ?", from).
		Where("created_at < ?", to).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, classify("list attempts", err)
	}
	out := make([]domain.QuizAttempt, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (s *Store) MarkReviewed(ctx context.Context, userID, slotID string) error {
	res, err := s.db.NewUpdate().
		Model((*attemptRow)(nil)).
		Set("reviewed = TRUE").
		Where("user_id = ? AND slot_id = ?", userID, slotID).
		Exec(ctx)
	if err != nil {
		return classify("mark reviewed", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

// AddViolations locks the account row so that concurrent counters serialize on it.
func (s *Store) AddViolations(ctx context.Context, userID string, n int, now time.Time, cal slot.Calendar) (int, error) {
	var count int
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(accountRow)
		err := tx.NewSelect().Model(row).Where("id = ?", userID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		acct := row.toDomain()
		count = acct.RecordViolations(n, now, cal)
		_, err = tx.NewUpdate().
			Model(accountRowFrom(acct)).
			Column("violations_today", "last_violation_at").
			WherePK().
			Exec(ctx)
		return err
	})
	if err != nil {
		return 0, classify("add violations", err)
	}
	return count, nil
}

func (s *Store) TopLeaderboard(ctx context.Context, slotID string, limit int) ([]domain.LeaderboardEntry, error) {
	var rows []leaderboardRow
	q := s.db.NewSelect().
		Model(&rows).
		Where("slot_id = ?", slotID).
		OrderExpr("score DESC, total_time_ms ASC, user_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, classify("top leaderboard", err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].toDomain())
	}
	return entries, nil
}

func (s *Store) GlobalStats(ctx context.Context) (domain.GlobalStats, error) {
	row := new(statsRow)
	err := s.db.NewSelect().Model(row).Where("id = 1").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GlobalStats{}, nil
	}
	if err != nil {
		return domain.GlobalStats{}, classify("global stats", err)
	}
	return domain.GlobalStats{
		TotalQuizzesPlayed: row.TotalQuizzesPlayed,
		TotalPerfectScores: row.TotalPerfectScores,
	}, nil
}
