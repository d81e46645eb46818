package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cricket-trivia-service/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{
			"ipl-1": sampleQuiz(),
		}),
	}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "ipl-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if _, err := repo.GetQuiz(context.Background(), "ipl-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if got := loader.count(); got != 1 {
		t.Fatalf("expected cache hit, loader calls %d", got)
	}
}

func TestQuizRepositoryExpiresAndInvalidates(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{"ipl-1": sampleQuiz()}),
	}
	repo := NewQuizRepository(loader, time.Minute)
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	if _, err := repo.GetQuiz(context.Background(), "ipl-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "ipl-1"); err != nil {
		t.Fatalf("get quiz after ttl: %v", err)
	}
	if got := loader.count(); got != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", got)
	}

	repo.Invalidate("ipl-1")
	if _, err := repo.GetQuiz(context.Background(), "ipl-1"); err != nil {
		t.Fatalf("get quiz after invalidate: %v", err)
	}
	if got := loader.count(); got != 3 {
		t.Fatalf("expected reload after invalidate, loader calls %d", got)
	}
}

func TestQuizRepositoryMissingQuiz(t *testing.T) {
	repo := NewQuizRepository(NewStaticQuizLoader(nil), time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "nope"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	mu    sync.Mutex
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:     "ipl-1",
		Format: "T20",
		Brand:  "ipl",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "How many balls in an over?",
				Options: []domain.Option{
					{ID: "o1", Text: "5"},
					{ID: "o2", Text: "6", Correct: true},
				},
			},
		},
	}
}
