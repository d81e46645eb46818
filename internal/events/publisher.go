package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cricket-trivia-service/internal/domain"
	"github.com/nats-io/nats.go"
)

// SubjectAttemptCommitted carries one message per committed attempt.
const SubjectAttemptCommitted = "trivia.attempt.committed"

// AttemptCommitted is the payload published after a commit.
type AttemptCommitted struct {
	UserID        string    `json:"userId"`
	SlotID        string    `json:"slotId"`
	QuizID        string    `json:"quizId,omitempty"`
	Score         int       `json:"score"`
	Total         int       `json:"totalQuestions"`
	Disqualified  bool      `json:"disqualified"`
	Perfect       bool      `json:"perfect"`
	Streak        string    `json:"streak"`
	CurrentStreak int       `json:"currentStreak"`
	Replaced      bool      `json:"replaced"`
	CommittedAt   time.Time `json:"committedAt"`
}

// NewAttemptCommitted flattens a commit result into its event payload.
func NewAttemptCommitted(result domain.CommitResult) AttemptCommitted {
	committedAt := result.Attempt.CreatedAt
	if result.Account.LastPlayedAt != nil {
		committedAt = *result.Account.LastPlayedAt
	}
	return AttemptCommitted{
		UserID:        result.Attempt.UserID,
		SlotID:        result.Attempt.SlotID,
		QuizID:        result.Attempt.QuizID,
		Score:         result.Attempt.EffectiveScore(),
		Total:         result.Attempt.TotalQuestions,
		Disqualified:  result.Attempt.Disqualified(),
		Perfect:       result.Perfect,
		Streak:        string(result.Streak),
		CurrentStreak: result.Account.CurrentStreak,
		Replaced:      result.Replaced,
		CommittedAt:   committedAt,
	}
}

// NATSPublisher publishes commit events on a NATS connection.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// Connect dials url and returns a publisher on SubjectAttemptCommitted.
func Connect(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("cricket-trivia-service"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return NewNATSPublisher(conn), nil
}

func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: SubjectAttemptCommitted}
}

func (p *NATSPublisher) AttemptCommitted(_ context.Context, result domain.CommitResult) error {
	payload, err := json.Marshal(NewAttemptCommitted(result))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

// Nop discards events; used when no broker is configured.
type Nop struct{}

func (Nop) AttemptCommitted(context.Context, domain.CommitResult) error { return nil }
