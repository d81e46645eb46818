package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cricket-trivia-service/internal/app"
	"cricket-trivia-service/internal/config"
	"cricket-trivia-service/internal/domain"
	"cricket-trivia-service/internal/events"
	"cricket-trivia-service/internal/infra/memory"
	"cricket-trivia-service/internal/infra/mongodb"
	"cricket-trivia-service/internal/infra/postgres"
	rediscache "cricket-trivia-service/internal/infra/redis"
	"cricket-trivia-service/internal/logger"
	"cricket-trivia-service/internal/slot"
	transport "cricket-trivia-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the trivia API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
	cmd.Flags().StringVar(port, "port", "", "port to listen on (overrides config and PORT)")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level)

	offset, err := config.ParseOffset(cfg.Slot.UTCOffset)
	if err != nil {
		return err
	}
	cal := slot.NewCalendar(offset)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	primary, fallback, closeQuizzes, err := openQuizzes(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeQuizzes()

	var publisher app.Publisher = events.Nop{}
	if cfg.NATS.URL != "" {
		natsPublisher, err := events.Connect(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
		log.Info().Str("url", cfg.NATS.URL).Msg("publishing attempt events to nats")
	}

	service := app.NewAttemptService(store, cal,
		app.WithQuizzes(primary, fallback),
		app.WithHub(app.NewHub()),
		app.WithPublisher(publisher),
		app.WithLogger(log),
		app.WithLeaderboardLimit(cfg.Leaderboard.Limit),
	)
	malpractice := app.NewMalpracticeCounter(store, cal, log)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(service, malpractice, log, cfg.Server.CORSOrigins),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: leaderboard streams are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Str("utc_offset", cfg.Slot.UTCOffset).Msg("starting trivia service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStore picks the account store: Postgres when configured, then MongoDB, else an
// in-process store that forgets everything on restart.
func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (app.Store, func(), error) {
	switch {
	case cfg.Postgres.URL != "":
		if err := runMigrations(ctx, cfg, log); err != nil {
			return nil, nil, err
		}
		db := postgres.Open(cfg.Postgres.URL)
		log.Info().Msg("using postgres store")
		return postgres.NewStore(db), func() { _ = db.Close() }, nil
	case cfg.Mongo.URI != "":
		client, err := mongodb.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, nil, err
		}
		store := mongodb.NewStore(client, cfg.Mongo.Database)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		log.Info().Str("database", cfg.Mongo.Database).Msg("using mongodb store")
		return store, func() { _ = client.Disconnect(context.Background()) }, nil
	default:
		log.Warn().Msg("no database configured, using in-memory store")
		return memory.NewStore(), func() {}, nil
	}
}

// openQuizzes builds the cached primary and fallback question banks.
func openQuizzes(ctx context.Context, cfg config.Config, log zerolog.Logger) (app.QuizRepository, app.QuizRepository, func(), error) {
	var primaryLoader, fallbackLoader memory.QuizLoader
	closers := []func(){}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		closers = append(closers, pool.Close)
		primaryLoader = postgres.NewQuizLoader(pool, domain.SourcePrimary)
		fallbackLoader = postgres.NewQuizLoader(pool, domain.SourceFallback)
	} else {
		primaryLoader = memory.NewStaticQuizLoader(sampleQuizzes())
		fallbackLoader = memory.NewStaticQuizLoader(sampleFallbackQuizzes())
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = client.Close() })
		log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", quizTTL).Msg("caching quiz answer keys in redis")
		return rediscache.NewQuizRepository(client, primaryLoader, quizTTL),
			rediscache.NewQuizRepository(client, fallbackLoader, quizTTL).ForBank(domain.SourceFallback),
			closeAll, nil
	}
	return memory.NewQuizRepository(primaryLoader, quizTTL), memory.NewQuizRepository(fallbackLoader, quizTTL), closeAll, nil
}

// sampleQuizzes is served when no database is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"wc-2011-final": {
			ID:     "wc-2011-final",
			Format: "ODI",
			Brand:  "world-cup",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "Who hit the winning six in the 2011 World Cup final?",
					Options: []domain.Option{
						{ID: "a", Text: "Sachin Tendulkar"},
						{ID: "b", Text: "MS Dhoni", Correct: true},
						{ID: "c", Text: "Yuvraj Singh"},
					},
				},
				{
					ID:     "q2",
					Prompt: "Where was the 2011 World Cup final played?",
					Options: []domain.Option{
						{ID: "a", Text: "Wankhede Stadium", Correct: true},
						{ID: "b", Text: "Eden Gardens"},
						{ID: "c", Text: "R. Premadasa Stadium"},
					},
				},
			},
		},
	}
}

func sampleFallbackQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"basics-1": {
			ID:     "basics-1",
			Format: "Test",
			Brand:  "classics",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "How many balls are bowled in a standard over?",
					Options: []domain.Option{
						{ID: "a", Text: "5"},
						{ID: "b", Text: "6", Correct: true},
						{ID: "c", Text: "8"},
					},
				},
			},
		},
	}
}
