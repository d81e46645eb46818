package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cricket-trivia-service/internal/domain"
	"cricket-trivia-service/internal/infra/memory"
	"github.com/rs/zerolog"
)

func newTestCounter(t *testing.T) (*MalpracticeCounter, *memory.Store, *testClock) {
	t.Helper()
	store := memory.NewStore()
	if err := store.CreateAccount(context.Background(), domain.UserAccount{ID: "u1"}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	clock := &testClock{now: time.Date(2024, 3, 15, 23, 50, 0, 0, ist.Location())}
	counter := NewMalpracticeCounter(store, ist, zerolog.Nop())
	counter.SetClock(clock.Now)
	return counter, store, clock
}

func TestRecordViolationCountsPerDay(t *testing.T) {
	counter, store, clock := newTestCounter(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := counter.RecordViolation(ctx, "u1")
		if err != nil {
			t.Fatalf("violation %d: %v", want, err)
		}
		if got != want {
			t.Fatalf("expected count %d, got %d", want, got)
		}
	}
	if !ShouldDisqualify(3) || ShouldDisqualify(2) {
		t.Fatalf("unexpected disqualify threshold")
	}

	acct, _ := store.GetAccount(ctx, "u1")
	if acct.ViolationsToday != 3 || acct.LastViolationAt == nil {
		t.Fatalf("expected persisted count 3, got %+v", acct)
	}

	// 00:05 IST is the next calendar day.
	clock.now = clock.now.Add(15 * time.Minute)
	got, err := counter.RecordViolation(ctx, "u1")
	if err != nil || got != 1 {
		t.Fatalf("expected reset to 1 on a new day, got %d err=%v", got, err)
	}
}

func TestRecordViolationResumesFromStoredState(t *testing.T) {
	counter, store, clock := newTestCounter(t)
	ctx := context.Background()
	earlier := clock.now.Add(-time.Hour)
	if _, err := store.AddViolations(ctx, "u1", 2, earlier, ist); err != nil {
		t.Fatalf("seed violations: %v", err)
	}

	got, err := counter.RecordViolation(ctx, "u1")
	if err != nil || got != 3 {
		t.Fatalf("expected 3 from stored state, got %d err=%v", got, err)
	}
}

func TestRecordViolationDegradedMode(t *testing.T) {
	counter, store, _ := newTestCounter(t)
	ctx := context.Background()
	store.FailWrites(domain.ErrConnectivity)

	got, err := counter.RecordViolation(ctx, "u1")
	if got != 1 || !errors.Is(err, ErrViolationNotPersisted) || !errors.Is(err, domain.ErrConnectivity) {
		t.Fatalf("expected unpersisted count 1, got %d err=%v", got, err)
	}
	got, err = counter.RecordViolation(ctx, "u1")
	if got != 2 || !errors.Is(err, ErrViolationNotPersisted) {
		t.Fatalf("expected in-memory count 2, got %d err=%v", got, err)
	}

	store.FailWrites(nil)
	got, err = counter.RecordViolation(ctx, "u1")
	if err != nil || got != 3 {
		t.Fatalf("expected persisted count 3 after recovery, got %d err=%v", got, err)
	}
	acct, _ := store.GetAccount(ctx, "u1")
	if acct.ViolationsToday != 3 {
		t.Fatalf("expected stored count 3, got %d", acct.ViolationsToday)
	}
}

func TestRecordViolationUnknownAccount(t *testing.T) {
	counter, _, _ := newTestCounter(t)
	got, err := counter.RecordViolation(context.Background(), "ghost")
	if got != 0 || !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %d err=%v", got, err)
	}
	if _, err := counter.RecordViolation(context.Background(), ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRecordViolationSharedAcrossCounters(t *testing.T) {
	a, store, clock := newTestCounter(t)
	b := NewMalpracticeCounter(store, ist, zerolog.Nop())
	b.SetClock(clock.Now)
	ctx := context.Background()

	var counts []int
	for _, counter := range []*MalpracticeCounter{a, b, a} {
		got, err := counter.RecordViolation(ctx, "u1")
		if err != nil {
			t.Fatalf("record violation: %v", err)
		}
		counts = append(counts, got)
	}
	if counts[0] != 1 || counts[1] != 2 || counts[2] != 3 {
		t.Fatalf("expected counts 1,2,3 across instances, got %v", counts)
	}
	if !ShouldDisqualify(counts[2]) {
		t.Fatalf("third violation of the day must disqualify")
	}
	acct, _ := store.GetAccount(ctx, "u1")
	if acct.ViolationsToday != 3 {
		t.Fatalf("expected stored count 3, got %d", acct.ViolationsToday)
	}
}

func TestRecordViolationConcurrentCounters(t *testing.T) {
	a, store, clock := newTestCounter(t)
	b := NewMalpracticeCounter(store, ist, zerolog.Nop())
	b.SetClock(clock.Now)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		counter := a
		if i%2 == 1 {
			counter = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = counter.RecordViolation(ctx, "u1")
		}()
	}
	wg.Wait()

	acct, _ := store.GetAccount(ctx, "u1")
	if acct.ViolationsToday != 20 {
		t.Fatalf("expected 20 stored violations, got %d", acct.ViolationsToday)
	}
}

func TestRecordViolationForgetsEarlierDays(t *testing.T) {
	counter, store, clock := newTestCounter(t)
	ctx := context.Background()
	store.FailWrites(domain.ErrConnectivity)
	if _, err := counter.RecordViolation(ctx, "u1"); !errors.Is(err, ErrViolationNotPersisted) {
		t.Fatalf("expected unpersisted violation, got %v", err)
	}
	store.FailWrites(nil)

	clock.now = clock.now.Add(time.Hour)
	got, err := counter.RecordViolation(ctx, "u1")
	if err != nil || got != 1 {
		t.Fatalf("offline violation of yesterday must not carry over, got %d err=%v", got, err)
	}
	if len(counter.offline) != 1 {
		t.Fatalf("expected only today's state to be kept, got %d entries", len(counter.offline))
	}
}
