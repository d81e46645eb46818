package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cricket-trivia-service/internal/domain"
	"cricket-trivia-service/internal/slot"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const statsID = "global"

// Connect dials uri and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// Store is the document app.Store. Commits run as multi-document transactions, which
// need a replica set. Concurrent commits of the same user hit a write conflict on the
// user document and are retried by the driver.
type Store struct {
	client      *mongo.Client
	users       *mongo.Collection
	attempts    *mongo.Collection
	leaderboard *mongo.Collection
	stats       *mongo.Collection
}

func NewStore(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:      client,
		users:       db.Collection("users"),
		attempts:    db.Collection("attempts"),
		leaderboard: db.Collection("live_leaderboards"),
		stats:       db.Collection("stats"),
	}
}

// EnsureIndexes creates the indexes the queries below rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "referralCode", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return classify("index users", err)
	}
	if _, err := s.attempts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: 1}},
	}); err != nil {
		return classify("index attempts", err)
	}
	if _, err := s.leaderboard.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "slotId", Value: 1}, {Key: "score", Value: -1}, {Key: "totalTime", Value: 1}},
	}); err != nil {
		return classify("index leaderboard", err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *Store) CreateAccount(ctx context.Context, acct domain.UserAccount) error {
	err := s.inTx(ctx, func(sc mongo.SessionContext) error {
		if _, err := s.users.InsertOne(sc, userDocFrom(acct)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return domain.ErrAccountExists
			}
			return err
		}
		if acct.ReferredBy == "" {
			return nil
		}
		_, err := s.users.UpdateOne(sc,
			bson.M{"_id": acct.ReferredBy},
			bson.M{"$addToSet": bson.M{"referrals": acct.ID}})
		return err
	})
	return classify("create account", err)
}

func (s *Store) GetAccount(ctx context.Context, userID string) (domain.UserAccount, error) {
	return s.findUser(ctx, bson.M{"_id": userID})
}

func (s *Store) FindByReferralCode(ctx context.Context, code string) (domain.UserAccount, error) {
	return s.findUser(ctx, bson.M{"referralCode": code})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (domain.UserAccount, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.UserAccount{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.UserAccount{}, classify("get account", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) CommitAttempt(ctx context.Context, attempt domain.QuizAttempt, now time.Time, cal slot.Calendar) (domain.CommitResult, error) {
	var result domain.CommitResult
	err := s.inTx(ctx, func(sc mongo.SessionContext) error {
		var doc userDoc
		err := s.users.FindOne(sc, bson.M{"_id": attempt.UserID}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		acct := doc.toDomain()
		delta := acct.ApplyAttempt(attempt, now, cal)
		if _, err := s.users.UpdateOne(sc, bson.M{"_id": acct.ID}, bson.M{
			"$set": bson.M{
				"currentStreak": acct.CurrentStreak,
				"longestStreak": acct.LongestStreak,
				"lastPlayedAt":  now,
			},
			"$inc": bson.M{
				"quizzesPlayed": 1,
				"totalScore":    attempt.EffectiveScore(),
				"perfectScores": boolInt(delta.Perfect),
			},
		}); err != nil {
			return err
		}

		if _, err := s.stats.UpdateOne(sc, bson.M{"_id": statsID}, bson.M{
			"$inc": bson.M{
				"totalQuizzesPlayed": 1,
				"totalPerfectScores": boolInt(delta.Perfect),
			},
		}, options.Update().SetUpsert(true)); err != nil {
			return err
		}

		replace, err := s.attempts.ReplaceOne(sc,
			bson.M{"_id": attemptID(attempt.UserID, attempt.SlotID)},
			attemptDocFrom(attempt),
			options.Replace().SetUpsert(true))
		if err != nil {
			return err
		}

		entry := domain.EntryFor(acct.Profile(), attempt)
		if _, err := s.leaderboard.UpdateOne(sc,
			bson.M{"_id": attempt.SlotID + "/" + attempt.UserID},
			bson.M{"$set": entryDoc{
				ID:           attempt.SlotID + "/" + attempt.UserID,
				SlotID:       attempt.SlotID,
				UserID:       entry.UserID,
				DisplayName:  entry.DisplayName,
				AvatarURL:    entry.AvatarURL,
				Score:        entry.Score,
				TotalTimeMs:  entry.TotalTimeMs,
				Disqualified: entry.Disqualified,
				UpdatedAt:    now,
			}},
			options.Update().SetUpsert(true)); err != nil {
			return err
		}

		result = domain.CommitResult{
			Account:  acct,
			Attempt:  attempt,
			Entry:    entry,
			Perfect:  delta.Perfect,
			Streak:   delta.Streak,
			Replaced: replace.MatchedCount > 0,
		}
		return nil
	})
	if err != nil {
		return domain.CommitResult{}, classify("commit attempt", err)
	}
	return result, nil
}

func (s *Store) GetAttempt(ctx context.Context, userID, slotID string) (domain.QuizAttempt, error) {
	var doc attemptDoc
	err := s.attempts.FindOne(ctx, bson.M{"_id": attemptID(userID, slotID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.QuizAttempt{}, classify("get attempt", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) ListAttempts(ctx context.Context, userID string, from, to time.Time) ([]domain.QuizAttempt, error) {
	cursor, err := s.attempts.Find(ctx,
		bson.M{"userId": userID, "createdAt": bson.M{"$gte": from, "$lt": to}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, classify("list attempts", err)
	}
	defer cursor.Close(ctx)

	var docs []attemptDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify("list attempts", err)
	}
	out := make([]domain.QuizAttempt, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toDomain())
	}
	return out, nil
}

func (s *Store) MarkReviewed(ctx context.Context, userID, slotID string) error {
	res, err := s.attempts.UpdateOne(ctx,
		bson.M{"_id": attemptID(userID, slotID)},
		bson.M{"$set": bson.M{"reviewed": true}})
	if err != nil {
		return classify("mark reviewed", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

// AddViolations runs read and write in one transaction; a concurrent counter makes it
// hit a write conflict and the driver retries it against the new count.
func (s *Store) AddViolations(ctx context.Context, userID string, n int, now time.Time, cal slot.Calendar) (int, error) {
	var count int
	err := s.inTx(ctx, func(sc mongo.SessionContext) error {
		var doc userDoc
		err := s.users.FindOne(sc, bson.M{"_id": userID}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		acct := doc.toDomain()
		count = acct.RecordViolations(n, now, cal)
		_, err = s.users.UpdateOne(sc,
			bson.M{"_id": userID},
			bson.M{"$set": bson.M{"violationsToday": count, "lastViolationAt": now}})
		return err
	})
	if err != nil {
		return 0, classify("add violations", err)
	}
	return count, nil
}

func (s *Store) TopLeaderboard(ctx context.Context, slotID string, limit int) ([]domain.LeaderboardEntry, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "score", Value: -1},
		{Key: "totalTime", Value: 1},
		{Key: "userId", Value: 1},
	})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.leaderboard.Find(ctx, bson.M{"slotId": slotID}, opts)
	if err != nil {
		return nil, classify("top leaderboard", err)
	}
	defer cursor.Close(ctx)

	var docs []entryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify("top leaderboard", err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, doc.toDomain())
	}
	return entries, nil
}

func (s *Store) GlobalStats(ctx context.Context) (domain.GlobalStats, error) {
	var doc statsDoc
	err := s.stats.FindOne(ctx, bson.M{"_id": statsID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.GlobalStats{}, nil
	}
	if err != nil {
		return domain.GlobalStats{}, classify("global stats", err)
	}
	return domain.GlobalStats{
		TotalQuizzesPlayed: doc.TotalQuizzesPlayed,
		TotalPerfectScores: doc.TotalPerfectScores,
	}, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrAccountExists):
		return err
	case mongo.IsNetworkError(err),
		mongo.IsTimeout(err),
		errors.Is(err, mongo.ErrClientDisconnected),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %v", op, domain.ErrConnectivity, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, domain.ErrBackendRejected, err)
	}
}
