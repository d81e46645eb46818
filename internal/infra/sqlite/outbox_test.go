package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"cricket-trivia-service/internal/domain"
	"github.com/rs/zerolog"
)

func openTemp(t *testing.T, path string) *Outbox {
	t.Helper()
	db, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewOutbox(db, "device-1")
}

func sampleAttempt(slotID string, score int) domain.QuizAttempt {
	return domain.QuizAttempt{
		UserID:         "u1",
		SlotID:         slotID,
		Score:          score,
		TotalQuestions: 5,
		TimingsMs:      []int64{900, 1100},
		Answers:        []string{"o1", "o2"},
		Source:         domain.SourcePrimary,
	}
}

func TestOutboxReplaceAndDequeue(t *testing.T) {
	ctx := context.Background()
	o := openTemp(t, filepath.Join(t.TempDir(), "outbox.db"))

	if err := o.Enqueue(ctx, sampleAttempt("2024-03-15_09-00", 1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := o.Enqueue(ctx, sampleAttempt("2024-03-15_09-00", 4)); err != nil {
		t.Fatalf("enqueue replacement: %v", err)
	}
	if err := o.Enqueue(ctx, sampleAttempt("2024-03-15_09-10", 2)); err != nil {
		t.Fatalf("enqueue second slot: %v", err)
	}

	all, err := o.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].Score != 4 || all[1].SlotID != "2024-03-15_09-10" {
		t.Fatalf("unexpected entries %+v", all)
	}

	if err := o.Dequeue(ctx, "2024-03-15_09-00"); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := o.Dequeue(ctx, "2024-03-15_09-00"); err != nil {
		t.Fatalf("second dequeue should be a no-op: %v", err)
	}
	all, _ = o.ListAll(ctx)
	if len(all) != 1 || all[0].SlotID != "2024-03-15_09-10" {
		t.Fatalf("unexpected entries after dequeue %+v", all)
	}
}

func TestOutboxSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "outbox.db")

	db, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := NewOutbox(db, "device-1").Enqueue(ctx, sampleAttempt("2024-03-15_09-00", 3)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	_ = db.Close()

	reopened := openTemp(t, path)
	all, err := reopened.ListAll(ctx)
	if err != nil {
		t.Fatalf("list after reopen: %v", err)
	}
	if len(all) != 1 || all[0].Score != 3 || len(all[0].TimingsMs) != 2 {
		t.Fatalf("expected queued attempt to survive restart, got %+v", all)
	}
}
