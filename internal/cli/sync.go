package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cricket-trivia-service/internal/app"
	"cricket-trivia-service/internal/client"
	"cricket-trivia-service/internal/config"
	"cricket-trivia-service/internal/infra/memory"
	rediscache "cricket-trivia-service/internal/infra/redis"
	"cricket-trivia-service/internal/infra/sqlite"
	"cricket-trivia-service/internal/logger"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewSyncCmd replays the device outbox against the API.
func NewSyncCmd(configPath *string) *cobra.Command {
	var (
		watch   bool
		discard string
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Commit attempts waiting in the device outbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runSync(cmd.Context(), cfg, watch, discard)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and flush on the configured schedule once the API is reachable")
	cmd.Flags().StringVar(&discard, "discard", "", "drop the queued attempt of this slot id instead of syncing")
	return cmd
}

func runSync(ctx context.Context, cfg config.Config, watch bool, discard string) error {
	log := logger.New(cfg.Log.Level).With().Str("namespace", cfg.Outbox.Namespace).Logger()
	if cfg.Outbox.APIURL == "" && discard == "" {
		return fmt.Errorf("outbox api_url not configured")
	}

	outbox, closeOutbox, err := openOutbox(cfg, log)
	if err != nil {
		return err
	}
	defer closeOutbox()

	api := client.New(cfg.Outbox.APIURL, client.WithToken(cfg.Outbox.Token))
	submitter := app.NewSubmitter(api, outbox, log, cfg.Outbox.Parallelism)

	if discard != "" {
		if err := submitter.Discard(ctx, discard); err != nil {
			return err
		}
		log.Info().Str("slot_id", discard).Msg("queued attempt discarded")
		return nil
	}

	if err := flushOutbox(ctx, submitter, log); err != nil {
		return err
	}
	if !watch {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.Outbox.Schedule, func() {
		if !api.Healthy(ctx) {
			log.Debug().Msg("api unreachable, outbox flush skipped")
			return
		}
		if err := flushOutbox(ctx, submitter, log); err != nil {
			log.Error().Err(err).Msg("outbox flush failed")
		}
	}); err != nil {
		return fmt.Errorf("outbox schedule %q: %w", cfg.Outbox.Schedule, err)
	}
	c.Start()
	log.Info().Str("schedule", cfg.Outbox.Schedule).Msg("watching outbox")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}
	<-c.Stop().Done()
	return nil
}

func flushOutbox(ctx context.Context, submitter *app.Submitter, log zerolog.Logger) error {
	report, err := submitter.Flush(ctx)
	if err != nil {
		return err
	}
	for slotID, cause := range report.Failed {
		log.Warn().Err(cause).Str("slot_id", slotID).Msg("attempt still queued")
	}
	return nil
}

func openOutbox(cfg config.Config, log zerolog.Logger) (app.Outbox, func(), error) {
	switch cfg.Outbox.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Outbox.Path, log)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewOutbox(db, cfg.Outbox.Namespace), func() { _ = db.Close() }, nil
	case "redis":
		if cfg.Redis.Addr == "" {
			return nil, nil, fmt.Errorf("outbox driver redis needs redis.addr")
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return rediscache.NewOutbox(rdb, cfg.Outbox.Namespace), func() { _ = rdb.Close() }, nil
	case "memory":
		log.Warn().Msg("memory outbox does not survive restarts")
		return memory.NewOutbox(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown outbox driver %q", cfg.Outbox.Driver)
	}
}
