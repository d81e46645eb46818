package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"cricket-trivia-service/internal/app"
	"cricket-trivia-service/internal/domain"
	"cricket-trivia-service/internal/infra/postgres"
	pgmigrations "cricket-trivia-service/internal/infra/postgres/migrations"
	infraredis "cricket-trivia-service/internal/infra/redis"
	"cricket-trivia-service/internal/slot"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var cal = slot.Default()

func TestSubmitEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.Open(pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	quizRepo := infraredis.NewQuizRepository(redisClient, postgres.NewQuizLoader(pool, domain.SourcePrimary), 5*time.Minute)
	now := time.Date(2024, 3, 15, 14, 35, 0, 0, cal.Location())
	service := app.NewAttemptService(postgres.NewStore(db), cal,
		app.WithQuizzes(quizRepo, nil),
		app.WithClock(func() time.Time { return now }),
	)

	alice, _, err := service.EnsureAccount(ctx, domain.Profile{UserID: "u1", DisplayName: "Alice"}, "")
	if err != nil {
		t.Fatalf("ensure alice: %v", err)
	}
	if _, _, err := service.EnsureAccount(ctx, domain.Profile{UserID: "u2", DisplayName: "Bob"}, alice.ReferralCode); err != nil {
		t.Fatalf("ensure bob: %v", err)
	}

	result, err := service.Submit(ctx, app.SubmitAnswers{
		UserID:    "u2",
		QuizID:    "ipl-1",
		Answers:   []string{"o2", "o1"},
		TimingsMs: []int64{1500, 2500},
	})
	if err != nil {
		t.Fatalf("submit bob: %v", err)
	}
	if !result.Perfect || result.Account.CurrentStreak != 1 || result.Replaced {
		t.Fatalf("unexpected bob result %+v", result)
	}
	if _, err := service.Submit(ctx, app.SubmitAnswers{UserID: "u1", QuizID: "ipl-1", Answers: []string{"o2", "o3"}}); err != nil {
		t.Fatalf("submit alice: %v", err)
	}

	lb, err := service.Leaderboard(ctx, "2024-03-15_14-30", 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 2 || lb.Entries[0].UserID != "u2" || lb.Entries[0].DisplayName != "Bob" {
		t.Fatalf("expected bob leading, got %+v", lb.Entries)
	}

	stats, err := service.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalQuizzesPlayed != 2 || stats.TotalPerfectScores != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	referrer, err := service.GetAccount(ctx, "u1")
	if err != nil {
		t.Fatalf("get alice: %v", err)
	}
	if len(referrer.Referrals) != 1 || referrer.Referrals[0] != "u2" {
		t.Fatalf("expected bob in alice's referrals, got %v", referrer.Referrals)
	}

	if err := service.MarkReviewed(ctx, "u2", "2024-03-15_14-30"); err != nil {
		t.Fatalf("mark reviewed: %v", err)
	}
	attempt, err := service.GetAttempt(ctx, "u2", "2024-03-15_14-30")
	if err != nil || !attempt.Reviewed {
		t.Fatalf("expected reviewed attempt, got %+v err=%v", attempt, err)
	}
}

func TestConcurrentCommitsKeepCounters(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := postgres.Open(pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db, sampleQuiz())

	store := postgres.NewStore(db)
	if err := store.CreateAccount(ctx, domain.UserAccount{ID: "u1", ReferralCode: "ABCD2345", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("create account: %v", err)
	}

	start := time.Date(2024, 3, 15, 10, 0, 0, 0, cal.Location())
	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		at := start.Add(time.Duration(i) * slot.Width)
		wg.Add(1)
		go func() {
			defer wg.Done()
			attempt := domain.QuizAttempt{UserID: "u1", SlotID: cal.ID(at), Score: 2, TotalQuestions: 2, Source: domain.SourcePrimary, CreatedAt: at}
			if _, err := store.CommitAttempt(ctx, attempt, at, cal); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("commit: %v", err)
	}

	acct, err := store.GetAccount(ctx, "u1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acct.QuizzesPlayed != n || acct.PerfectScores != n || acct.CurrentStreak != 1 {
		t.Fatalf("lost updates: %+v", acct)
	}
	stats, err := store.GlobalStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalQuizzesPlayed != n {
		t.Fatalf("expected %d quizzes in global stats, got %d", n, stats.TotalQuizzesPlayed)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateAndSeed(t *testing.T, ctx context.Context, db *bun.DB, quiz domain.Quiz) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, bank, data) VALUES (?, ?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, domain.SourcePrimary, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:     "ipl-1",
		Format: "T20",
		Brand:  "ipl",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "Which team won the first IPL season?",
				Options: []domain.Option{
					{ID: "o1", Text: "Chennai Super Kings"},
					{ID: "o2", Text: "Rajasthan Royals", Correct: true},
					{ID: "o3", Text: "Deccan Chargers"},
				},
			},
			{
				ID:     "q2",
				Prompt: "How many overs per side in a T20 match?",
				Options: []domain.Option{
					{ID: "o1", Text: "20", Correct: true},
					{ID: "o2", Text: "40"},
					{ID: "o3", Text: "50"},
				},
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
