package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"cricket-trivia-service/internal/domain"
	"cricket-trivia-service/internal/infra/memory"
	"github.com/rs/zerolog"
)

// fakeCommitter fails commits for the slots listed in errs.
type fakeCommitter struct {
	mu        sync.Mutex
	errs      map[string]error
	committed []string
}

func (c *fakeCommitter) Commit(_ context.Context, _ string, attempt domain.QuizAttempt) (domain.CommitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.errs[attempt.SlotID]; err != nil {
		return domain.CommitResult{}, err
	}
	c.committed = append(c.committed, attempt.SlotID)
	return domain.CommitResult{Attempt: attempt}, nil
}

func queuedSlots(t *testing.T, outbox *memory.Outbox) map[string]bool {
	t.Helper()
	all, err := outbox.ListAll(context.Background())
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	out := make(map[string]bool, len(all))
	for _, a := range all {
		out[a.SlotID] = true
	}
	return out
}

func outboxAttempt(slotID string) domain.QuizAttempt {
	return domain.QuizAttempt{UserID: "u1", SlotID: slotID, Score: 1, TotalQuestions: 3, Source: domain.SourcePrimary}
}

func TestSubmitterQueuesOnConnectivityFailure(t *testing.T) {
	committer := &fakeCommitter{errs: map[string]error{"2024-03-15_14-30": domain.ErrConnectivity}}
	outbox := memory.NewOutbox()
	s := NewSubmitter(committer, outbox, zerolog.Nop(), 2)

	status, err := s.Submit(context.Background(), "u1", outboxAttempt("2024-03-15_14-30"))
	if status != SubmitQueued || !errors.Is(err, domain.ErrConnectivity) {
		t.Fatalf("expected queued with connectivity error, got %q %v", status, err)
	}
	if !queuedSlots(t, outbox)["2024-03-15_14-30"] {
		t.Fatalf("expected attempt in outbox")
	}

	delete(committer.errs, "2024-03-15_14-30")
	status, err = s.Submit(context.Background(), "u1", outboxAttempt("2024-03-15_14-30"))
	if status != SubmitCommitted || err != nil {
		t.Fatalf("expected committed, got %q %v", status, err)
	}
	if len(queuedSlots(t, outbox)) != 0 {
		t.Fatalf("expected outbox cleared after commit")
	}
}

func TestSubmitterDoesNotQueuePermanentFailures(t *testing.T) {
	committer := &fakeCommitter{errs: map[string]error{
		"2024-03-15_14-30": domain.ErrAccountNotFound,
		"2024-03-15_14-40": &domain.ValidationError{Field: "score", Reason: "exceeds totalQuestions"},
	}}
	outbox := memory.NewOutbox()
	s := NewSubmitter(committer, outbox, zerolog.Nop(), 1)

	for slotID, want := range committer.errs {
		status, err := s.Submit(context.Background(), "u1", outboxAttempt(slotID))
		if status != "" || !errors.Is(err, want) {
			t.Fatalf("%s: expected %v without status, got %q %v", slotID, want, status, err)
		}
	}
	if len(queuedSlots(t, outbox)) != 0 {
		t.Fatalf("permanent failures must not be queued")
	}
}

func TestSubmitterFlush(t *testing.T) {
	ctx := context.Background()
	outbox := memory.NewOutbox()
	for _, slotID := range []string{"2024-03-15_14-00", "2024-03-15_14-10", "2024-03-15_14-20"} {
		if err := outbox.Enqueue(ctx, outboxAttempt(slotID)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	committer := &fakeCommitter{errs: map[string]error{
		"2024-03-15_14-10": domain.ErrConnectivity,
		"2024-03-15_14-20": domain.ErrAccountNotFound,
	}}
	s := NewSubmitter(committer, outbox, zerolog.Nop(), 3)

	report, err := s.Flush(ctx)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(report.Committed) != 1 || report.Committed[0] != "2024-03-15_14-00" {
		t.Fatalf("unexpected committed %v", report.Committed)
	}
	if report.Pending() != 2 {
		t.Fatalf("expected 2 pending, got %d", report.Pending())
	}
	queued := queuedSlots(t, outbox)
	if queued["2024-03-15_14-00"] || !queued["2024-03-15_14-10"] || !queued["2024-03-15_14-20"] {
		t.Fatalf("unexpected outbox contents %v", queued)
	}

	if err := s.Discard(ctx, "2024-03-15_14-20"); err != nil {
		t.Fatalf("discard: %v", err)
	}
	delete(committer.errs, "2024-03-15_14-10")
	report, err = s.Flush(ctx)
	if err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if report.Pending() != 0 || len(report.Committed) != 1 {
		t.Fatalf("expected clean second flush, got %+v", report)
	}
	if len(queuedSlots(t, outbox)) != 0 {
		t.Fatalf("expected empty outbox")
	}
}

func TestSubmitterFlushAgainstService(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	outbox := memory.NewOutbox()
	s := NewSubmitter(svc, outbox, zerolog.Nop(), 1)

	store.FailWrites(domain.ErrConnectivity)
	if status, _ := s.Submit(ctx, "u1", outboxAttempt("2024-03-15_14-30")); status != SubmitQueued {
		t.Fatalf("expected queued while store is down, got %q", status)
	}
	store.FailWrites(nil)

	report, err := s.Flush(ctx)
	if err != nil || report.Pending() != 0 {
		t.Fatalf("expected flush to drain outbox, report=%+v err=%v", report, err)
	}
	acct, _ := svc.GetAccount(ctx, "u1")
	if acct.QuizzesPlayed != 1 {
		t.Fatalf("expected one committed quiz, got %d", acct.QuizzesPlayed)
	}
}

func TestSubmitterStampsUserOnQueuedAttempt(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	outbox := memory.NewOutbox()
	s := NewSubmitter(svc, outbox, zerolog.Nop(), 1)

	attempt := outboxAttempt("2024-03-15_14-30")
	attempt.UserID = ""
	store.FailWrites(domain.ErrConnectivity)
	if status, _ := s.Submit(ctx, "u1", attempt); status != SubmitQueued {
		t.Fatalf("expected queued while store is down, got %q", status)
	}
	queued, err := outbox.ListAll(ctx)
	if err != nil || len(queued) != 1 || queued[0].UserID != "u1" {
		t.Fatalf("expected queued attempt owned by u1, got %+v err=%v", queued, err)
	}
	store.FailWrites(nil)

	report, err := s.Flush(ctx)
	if err != nil || report.Pending() != 0 || len(report.Committed) != 1 {
		t.Fatalf("expected queued attempt to commit on flush, report=%+v err=%v", report, err)
	}
}

func TestSubmitterRejectsForeignAttempt(t *testing.T) {
	committer := &fakeCommitter{errs: map[string]error{"2024-03-15_14-30": domain.ErrConnectivity}}
	outbox := memory.NewOutbox()
	s := NewSubmitter(committer, outbox, zerolog.Nop(), 1)

	status, err := s.Submit(context.Background(), "u2", outboxAttempt("2024-03-15_14-30"))
	var verr *domain.ValidationError
	if status != "" || !errors.As(err, &verr) || verr.Field != "userId" {
		t.Fatalf("expected userId validation error, got %q %v", status, err)
	}
	if len(queuedSlots(t, outbox)) != 0 || len(committer.committed) != 0 {
		t.Fatalf("foreign attempt must be neither committed nor queued")
	}
}
