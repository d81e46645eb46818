package cli

import (
	"context"
	"fmt"

	"cricket-trivia-service/internal/config"
	"cricket-trivia-service/internal/infra/postgres"
	pgmigrations "cricket-trivia-service/internal/infra/postgres/migrations"
	"cricket-trivia-service/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runMigrations(cmd.Context(), cfg, logger.New(cfg.Log.Level))
		},
	}
}

func runMigrations(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := postgres.Open(cfg.Postgres.URL)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Info().Msg("database schema up to date")
		return nil
	}
	log.Info().Str("group", group.String()).Msg("migrations applied")
	return nil
}
