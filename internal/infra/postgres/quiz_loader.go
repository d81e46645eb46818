package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cricket-trivia-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizLoader reads quiz JSONB documents of one question bank.
type QuizLoader struct {
	pool *pgxpool.Pool
	bank string
}

// NewQuizLoader returns a loader for bank (domain.SourcePrimary or SourceFallback).
func NewQuizLoader(pool *pgxpool.Pool, bank string) *QuizLoader {
	if bank == "" {
		bank = domain.SourcePrimary
	}
	return &QuizLoader{pool: pool, bank: bank}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id = $1 AND bank = $2`, quizID, l.bank).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, fmt.Errorf("load quiz %s: %w", quizID, domain.ErrQuizNotFound)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz %s: %w: %v", quizID, domain.ErrConnectivity, err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz %s: %w", quizID, err)
	}
	if quiz.ID == "" {
		quiz.ID = quizID
	}
	return quiz, nil
}
