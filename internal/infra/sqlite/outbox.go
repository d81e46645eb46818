package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"cricket-trivia-service/internal/domain"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Open opens the device database at path, tunes it for a single writer and applies
// the outbox migrations.
func Open(path string, logger zerolog.Logger) (*sql.DB, error) {
	logger.Info().Str("path", path).Msg("opening outbox database")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open outbox database: %w", err)
	}
	// One connection keeps writes serialized and pragmas applied.
	db.SetMaxOpenConns(1)

	pragmas := []struct {
		name  string
		value string
	}{
		{"journal_mode", "WAL"},
		{"synchronous", "FULL"},
		{"busy_timeout", "5000"},
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", pragma.name, pragma.value)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set PRAGMA %s: %w", pragma.name, err)
		}
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run outbox migrations: %w", err)
	}
	return db, nil
}

// Outbox stores pending attempts of one device namespace in the pending_attempts table.
type Outbox struct {
	db        *sql.DB
	namespace string
}

func NewOutbox(db *sql.DB, namespace string) *Outbox {
	return &Outbox{db: db, namespace: namespace}
}

func (o *Outbox) Enqueue(ctx context.Context, attempt domain.QuizAttempt) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode attempt %s: %w", attempt.SlotID, err)
	}
	_, err = o.db.ExecContext(ctx, `
		INSERT INTO pending_attempts (namespace, slot_id, user_id, payload, enqueued_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (namespace, slot_id) DO UPDATE SET
			user_id = excluded.user_id,
			payload = excluded.payload,
			enqueued_at = excluded.enqueued_at`,
		o.namespace, attempt.SlotID, attempt.UserID, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", attempt.SlotID, err)
	}
	return nil
}

func (o *Outbox) Dequeue(ctx context.Context, slotID string) error {
	if _, err := o.db.ExecContext(ctx,
		`DELETE FROM pending_attempts WHERE namespace = ? AND slot_id = ?`,
		o.namespace, slotID); err != nil {
		return fmt.Errorf("dequeue %s: %w", slotID, err)
	}
	return nil
}

func (o *Outbox) ListAll(ctx context.Context) ([]domain.QuizAttempt, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT slot_id, payload FROM pending_attempts WHERE namespace = ? ORDER BY slot_id`,
		o.namespace)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	var out []domain.QuizAttempt
	for rows.Next() {
		var slotID, payload string
		if err := rows.Scan(&slotID, &payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		var attempt domain.QuizAttempt
		if err := json.Unmarshal([]byte(payload), &attempt); err != nil {
			return nil, fmt.Errorf("decode outbox entry %s: %w", slotID, err)
		}
		out = append(out, attempt)
	}
	return out, rows.Err()
}
