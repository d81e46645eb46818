package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cricket-trivia-service/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SubmitStatus tells the caller what happened to a submitted attempt.
type SubmitStatus string

const (
	// SubmitCommitted means the backend acknowledged the commit.
	SubmitCommitted SubmitStatus = "committed"
	// SubmitQueued means the attempt waits in the outbox; show "will sync later".
	SubmitQueued SubmitStatus = "queued"
)

// FlushReport summarizes one outbox replay.
type FlushReport struct {
	Committed []string
	// Failed maps slot id to the error that kept the entry in the outbox.
	Failed map[string]error
}

// Pending is the number of entries still queued after the flush.
func (r FlushReport) Pending() int {
	return len(r.Failed)
}

// Submitter commits attempts through a Committer and parks retryable failures in the
// device outbox.
type Submitter struct {
	committer   Committer
	outbox      Outbox
	log         zerolog.Logger
	parallelism int
}

func NewSubmitter(committer Committer, outbox Outbox, log zerolog.Logger, parallelism int) *Submitter {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Submitter{committer: committer, outbox: outbox, log: log, parallelism: parallelism}
}

// Submit tries to commit attempt now. Retryable failures are queued and reported as
// SubmitQueued together with the cause; other failures are returned without queueing.
// An attempt without a user id is stamped with userID before it is committed or queued.
func (s *Submitter) Submit(ctx context.Context, userID string, attempt domain.QuizAttempt) (SubmitStatus, error) {
	attempt, err := ownAttempt(userID, attempt)
	if err != nil {
		return "", err
	}
	_, err = s.committer.Commit(ctx, userID, attempt)
	if err == nil {
		if derr := s.outbox.Dequeue(ctx, attempt.SlotID); derr != nil {
			s.log.Warn().Err(derr).Str("slot_id", attempt.SlotID).Msg("clear outbox entry failed")
		}
		return SubmitCommitted, nil
	}
	if !domain.Retryable(err) {
		return "", err
	}

	if qerr := s.outbox.Enqueue(ctx, attempt); qerr != nil {
		return "", fmt.Errorf("queue attempt %s: %w", attempt.SlotID, errors.Join(err, qerr))
	}
	s.log.Info().Err(err).Str("user_id", userID).Str("slot_id", attempt.SlotID).Msg("attempt queued for later sync")
	return SubmitQueued, err
}

func ownAttempt(userID string, attempt domain.QuizAttempt) (domain.QuizAttempt, error) {
	if userID == "" {
		return attempt, &domain.ValidationError{Field: "userId", Reason: "required"}
	}
	if attempt.UserID == "" {
		attempt.UserID = userID
	}
	if attempt.UserID != userID {
		return attempt, &domain.ValidationError{Field: "userId", Reason: "does not match the submitting user"}
	}
	return attempt, nil
}

// Flush replays every queued attempt. Committed entries are dequeued; failed ones stay
// in the outbox and are listed in the report. Only a failure to read the outbox is
// returned as an error.
func (s *Submitter) Flush(ctx context.Context) (FlushReport, error) {
	pending, err := s.outbox.ListAll(ctx)
	if err != nil {
		return FlushReport{}, fmt.Errorf("list outbox: %w", err)
	}

	report := FlushReport{Failed: make(map[string]error)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, attempt := range pending {
		attempt := attempt
		g.Go(func() error {
			_, err := s.committer.Commit(gctx, attempt.UserID, attempt)
			if err == nil {
				err = s.outbox.Dequeue(gctx, attempt.SlotID)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[attempt.SlotID] = err
				return nil
			}
			report.Committed = append(report.Committed, attempt.SlotID)
			return nil
		})
	}
	_ = g.Wait()

	if len(pending) > 0 {
		s.log.Info().
			Int("committed", len(report.Committed)).
			Int("pending", report.Pending()).
			Msg("outbox flushed")
	}
	for slotID, err := range report.Failed {
		if !domain.Retryable(err) {
			s.log.Error().Err(err).Str("slot_id", slotID).Msg("outbox entry rejected permanently; discard it to stop retrying")
		}
	}
	return report, nil
}

// Discard drops a queued attempt without committing it.
func (s *Submitter) Discard(ctx context.Context, slotID string) error {
	return s.outbox.Dequeue(ctx, slotID)
}
