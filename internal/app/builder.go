package app

import (
	"time"

	"cricket-trivia-service/internal/domain"
	"cricket-trivia-service/internal/slot"
)

// Override forces the outcome of an attempt, used by the disqualification path.
type Override struct {
	Reason string
	Score  int
}

// Disqualify returns the override applied when malpractice ends a quiz.
func Disqualify(reason string) *Override {
	if reason == "" {
		reason = domain.NoBall
	}
	return &Override{Reason: reason, Score: 0}
}

// Meta carries quiz labels recorded on the attempt.
type Meta struct {
	Brand  string
	Format string
	Source string
}

// BuildInput is the in-memory quiz state at the end of a quiz.
type BuildInput struct {
	UserID    string
	Quiz      domain.Quiz
	Answers   []string
	TimingsMs []int64
	Meta      Meta
	// At is the instant the slot id is taken from; zero means now.
	At       time.Time
	Override *Override
}

// BuildAttempt assembles a normalized attempt. Answers and timings are aligned to the
// question list: missing answers score as unanswered, missing timings are zero and
// extra entries are dropped.
func BuildAttempt(cal slot.Calendar, in BuildInput) domain.QuizAttempt {
	at := in.At
	if at.IsZero() {
		at = time.Now()
	}

	total := len(in.Quiz.Questions)
	answers := make([]string, total)
	copy(answers, in.Answers)
	timings := make([]int64, total)
	copy(timings, in.TimingsMs)

	score := 0
	for i, q := range in.Quiz.Questions {
		answer := answers[i]
		if answer == "" || answer == domain.NoBall {
			continue
		}
		if answer == q.CorrectOption() {
			score++
		}
	}

	attempt := domain.QuizAttempt{
		UserID:         in.UserID,
		SlotID:         cal.ID(at),
		QuizID:         in.Quiz.ID,
		Score:          score,
		TotalQuestions: total,
		TimingsMs:      timings,
		Answers:        answers,
		Format:         firstNonEmpty(in.Meta.Format, in.Quiz.Format),
		Brand:          firstNonEmpty(in.Meta.Brand, in.Quiz.Brand),
		Source:         firstNonEmpty(in.Meta.Source, domain.SourcePrimary),
		CreatedAt:      at,
	}
	if in.Override != nil {
		attempt.Reason = in.Override.Reason
		attempt.Score = in.Override.Score
	}
	return attempt
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
