package domain

import (
	"strconv"

	"cricket-trivia-service/internal/slot"
)

// Validate checks the attempt against the schema before any write is attempted.
func (a QuizAttempt) Validate(cal slot.Calendar) error {
	if a.UserID == "" {
		return &ValidationError{Field: "userId", Reason: "is required"}
	}
	if _, err := cal.Parse(a.SlotID); err != nil {
		return &ValidationError{Field: "slotId", Reason: "is not a slot id: " + strconv.Quote(a.SlotID)}
	}
	if a.TotalQuestions <= 0 {
		return &ValidationError{Field: "totalQuestions", Reason: "must be positive"}
	}
	if a.Score < 0 {
		return &ValidationError{Field: "score", Reason: "must not be negative"}
	}
	if a.Score > a.TotalQuestions {
		return &ValidationError{Field: "score", Reason: "exceeds totalQuestions"}
	}
	if len(a.TimingsMs) > a.TotalQuestions {
		return &ValidationError{Field: "timingsMs", Reason: "has more entries than questions"}
	}
	for i, ms := range a.TimingsMs {
		if ms < 0 {
			return &ValidationError{Field: "timingsMs[" + strconv.Itoa(i) + "]", Reason: "must not be negative"}
		}
	}
	if len(a.Answers) > a.TotalQuestions {
		return &ValidationError{Field: "answers", Reason: "has more entries than questions"}
	}
	switch a.Source {
	case SourcePrimary, SourceFallback:
	default:
		return &ValidationError{Field: "source", Reason: "must be primary or fallback"}
	}
	return nil
}
