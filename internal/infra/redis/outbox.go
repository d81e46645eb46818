package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"cricket-trivia-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Outbox keeps pending attempts of one device in the hash outbox:{namespace}, one field
// per slot id. Durability follows the Redis persistence settings.
type Outbox struct {
	client *redis.Client
	key    string
}

func NewOutbox(client *redis.Client, namespace string) *Outbox {
	return &Outbox{client: client, key: "outbox:" + namespace}
}

func (o *Outbox) Enqueue(ctx context.Context, attempt domain.QuizAttempt) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode attempt %s: %w", attempt.SlotID, err)
	}
	if err := o.client.HSet(ctx, o.key, attempt.SlotID, payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", attempt.SlotID, err)
	}
	return nil
}

func (o *Outbox) Dequeue(ctx context.Context, slotID string) error {
	if err := o.client.HDel(ctx, o.key, slotID).Err(); err != nil {
		return fmt.Errorf("dequeue %s: %w", slotID, err)
	}
	return nil
}

func (o *Outbox) ListAll(ctx context.Context) ([]domain.QuizAttempt, error) {
	fields, err := o.client.HGetAll(ctx, o.key).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	out := make([]domain.QuizAttempt, 0, len(fields))
	for slotID, raw := range fields {
		var attempt domain.QuizAttempt
		if err := json.Unmarshal([]byte(raw), &attempt); err != nil {
			return nil, fmt.Errorf("decode outbox entry %s: %w", slotID, err)
		}
		out = append(out, attempt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotID < out[j].SlotID })
	return out, nil
}
