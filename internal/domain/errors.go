package domain

import (
	"errors"
	"fmt"

	"cricket-trivia-service/internal/slot"
)

var (
	// ErrInvalidTimestamp is returned when a time value cannot be read as an instant.
	ErrInvalidTimestamp = slot.ErrInvalidTimestamp
	// ErrAccountNotFound is returned when an operation targets a user with no account document.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when creating an account that is already present.
	ErrAccountExists = errors.New("account already exists")
	// ErrValidation is the parent of every attempt schema violation.
	ErrValidation = errors.New("invalid attempt")
	// ErrConnectivity indicates the backend could not be reached.
	ErrConnectivity = errors.New("backend unreachable")
	// ErrBackendRejected indicates the backend was reachable but refused the operation.
	ErrBackendRejected = errors.New("backend rejected write")
	// ErrAttemptNotFound is returned when no attempt exists for a (user, slot) key.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
)

// ValidationError names the attempt field that broke the schema.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid attempt: " + e.Field + " " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Retryable reports whether err is worth replaying later: the backend was down or
// refused the write. Input errors and missing accounts are not.
func Retryable(err error) bool {
	return errors.Is(err, ErrConnectivity) || errors.Is(err, ErrBackendRejected)
}

// Wire codes carried in API error bodies so clients can rebuild the sentinel.
const (
	CodeInvalidAttempt   = "invalid_attempt"
	CodeInvalidTimestamp = "invalid_timestamp"
	CodeAccountNotFound  = "account_not_found"
	CodeAccountExists    = "account_exists"
	CodeAttemptNotFound  = "attempt_not_found"
	CodeQuizNotFound     = "quiz_not_found"
	CodeUnreachable      = "backend_unreachable"
	CodeRejected         = "backend_rejected"
	CodeInternal         = "internal"
)

var codeErrors = []struct {
	code string
	err  error
}{
	{CodeInvalidAttempt, ErrValidation},
	{CodeInvalidTimestamp, ErrInvalidTimestamp},
	{CodeAccountNotFound, ErrAccountNotFound},
	{CodeAccountExists, ErrAccountExists},
	{CodeAttemptNotFound, ErrAttemptNotFound},
	{CodeQuizNotFound, ErrQuizNotFound},
	{CodeUnreachable, ErrConnectivity},
	{CodeRejected, ErrBackendRejected},
}

// Code returns the wire code of err.
func Code(err error) string {
	for _, ce := range codeErrors {
		if errors.Is(err, ce.err) {
			return ce.code
		}
	}
	return CodeInternal
}

// FromCode rebuilds an error received over the wire. Unknown codes map to
// ErrBackendRejected so that the caller keeps the attempt for a retry.
func FromCode(code, message string) error {
	sentinel := ErrBackendRejected
	for _, ce := range codeErrors {
		if ce.code == code {
			sentinel = ce.err
			break
		}
	}
	if message == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, message)
}
