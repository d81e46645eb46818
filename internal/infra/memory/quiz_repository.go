package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"cricket-trivia-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuizLoader reads quiz content from the question bank of record.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository is a TTL cache in front of a QuizLoader. Concurrent misses for the
// same quiz share a single load.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		if quiz, ok := r.cached(quizID); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		if len(quiz.Questions) == 0 {
			return domain.Quiz{}, domain.ErrQuizNotFound
		}

		r.mu.Lock()
		r.cache[quizID] = cachedQuiz{quiz: quiz, expiresAt: r.clock().Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate evicts quizID so the next read goes to the loader.
func (r *QuizRepository) Invalidate(quizID string) {
	r.mu.Lock()
	delete(r.cache, quizID)
	r.mu.Unlock()
}

func (r *QuizRepository) cached(quizID string) (domain.Quiz, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[quizID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

// ttlWithJitter adds up to 10% so that quizzes loaded together do not expire together.
// Called with r.mu held.
func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuizLoader serves a fixed question bank, used for the fallback bank and tests.
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

// GetQuiz lets a static bank stand in for a QuizRepository without a cache.
func (l *StaticQuizLoader) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return l.LoadQuiz(ctx, quizID)
}
