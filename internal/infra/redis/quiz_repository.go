package redis

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"cricket-trivia-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz content from the question bank of record.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches the answer key of each quiz in a Redis hash and falls back to
// the loader on a miss. Layout of quiz:{quizID}:key:
//
//	format   T20
//	brand    ipl
//	q:0      {questionID}|{correctOptionID}
//	q:1      ...
//
// Only what scoring needs is cached; prompts and option texts are not. A repository
// for a secondary bank keys its hashes quiz:{bank}:{quizID}:key instead.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	prefix string
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		prefix: "quiz:",
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ForBank keeps the cached answer keys of bank apart from the primary bank's.
func (r *QuizRepository) ForBank(bank string) *QuizRepository {
	if bank != "" && bank != domain.SourcePrimary {
		r.prefix = "quiz:" + bank + ":"
	}
	return r
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	key := r.answerKey(quizID)
	if fields, err := r.client.HGetAll(ctx, key).Result(); err == nil && len(fields) > 0 {
		return quizFromHash(quizID, fields), nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Another caller may have filled it meanwhile.
		if fields, err := r.client.HGetAll(ctx, key).Result(); err == nil && len(fields) > 0 {
			return quizFromHash(quizID, fields), nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		values := map[string]interface{}{
			"format": quiz.Format,
			"brand":  quiz.Brand,
		}
		for i, q := range quiz.Questions {
			values["q:"+strconv.Itoa(i)] = q.ID + "|" + q.CorrectOption()
		}
		pipe := r.client.TxPipeline()
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values)
		if ttl := r.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		// Cache fill is best effort; the loaded quiz is still served.
		_, _ = pipe.Exec(ctx)

		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops the cached answer key of quizID.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID string) error {
	return r.client.Del(ctx, r.answerKey(quizID)).Err()
}

func (r *QuizRepository) answerKey(quizID string) string {
	return r.prefix + quizID + ":key"
}

func quizFromHash(quizID string, fields map[string]string) domain.Quiz {
	type indexed struct {
		pos int
		q   domain.Question
	}
	rows := make([]indexed, 0, len(fields))
	for field, value := range fields {
		if !strings.HasPrefix(field, "q:") {
			continue
		}
		pos, err := strconv.Atoi(strings.TrimPrefix(field, "q:"))
		if err != nil {
			continue
		}
		questionID, optionID, _ := strings.Cut(value, "|")
		q := domain.Question{ID: questionID}
		if optionID != "" {
			q.Options = []domain.Option{{ID: optionID, Correct: true}}
		}
		rows = append(rows, indexed{pos: pos, q: q})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].pos < rows[j].pos })

	questions := make([]domain.Question, len(rows))
	for i, row := range rows {
		questions[i] = row.q
	}
	return domain.Quiz{
		ID:        quizID,
		Format:    fields["format"],
		Brand:     fields["brand"],
		Questions: questions,
	}
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
