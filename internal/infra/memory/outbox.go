package memory

import (
	"context"
	"sort"
	"sync"

	"cricket-trivia-service/internal/domain"
)

// Outbox keeps pending attempts in a map keyed by slot id. It does not survive a
// restart and is meant for tests and local demos.
type Outbox struct {
	mu      sync.Mutex
	pending map[string]domain.QuizAttempt
}

func NewOutbox() *Outbox {
	return &Outbox{pending: make(map[string]domain.QuizAttempt)}
}

func (o *Outbox) Enqueue(_ context.Context, attempt domain.QuizAttempt) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[attempt.SlotID] = cloneAttempt(attempt)
	return nil
}

func (o *Outbox) Dequeue(_ context.Context, slotID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.pending, slotID)
	return nil
}

func (o *Outbox) ListAll(_ context.Context) ([]domain.QuizAttempt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.QuizAttempt, 0, len(o.pending))
	for _, attempt := range o.pending {
		out = append(out, cloneAttempt(attempt))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotID < out[j].SlotID })
	return out, nil
}
