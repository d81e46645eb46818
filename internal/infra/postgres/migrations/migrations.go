package migrations

import (
	"context"
	"embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed *.sql
var sqlFiles embed.FS

// Migrations holds the schema of the relational store. Each step lives in its own
// Go file so that bun derives the version from the file name.
var Migrations = migrate.NewMigrations()

func up(file string) migrate.MigrationFunc {
	return func(ctx context.Context, db *bun.DB) error {
		query, err := sqlFiles.ReadFile(file)
		if err != nil {
			return err
		}
		_, err = db.ExecContext(ctx, string(query))
		return err
	}
}

func dropTables(tables ...string) migrate.MigrationFunc {
	return func(ctx context.Context, db *bun.DB) error {
		for _, table := range tables {
			if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				return err
			}
		}
		return nil
	}
}
