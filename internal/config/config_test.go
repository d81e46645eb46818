package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte(`
server:
  port: "9000"
postgres:
  url: postgres://file
slot:
  utc_offset: "+00:00"
outbox:
  namespace: phone-1
`)
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("POSTGRES_URL", "postgres://env")
	t.Setenv("PORT", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9000" {
		t.Fatalf("expected port from file, got %q", cfg.Server.Port)
	}
	if cfg.Postgres.URL != "postgres://env" {
		t.Fatalf("expected env override, got %q", cfg.Postgres.URL)
	}
	if cfg.Outbox.Namespace != "phone-1" || cfg.Outbox.Parallelism != 4 || cfg.Leaderboard.Limit != 50 {
		t.Fatalf("unexpected outbox/leaderboard config %+v %+v", cfg.Outbox, cfg.Leaderboard)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("SLOT_UTC_OFFSET", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Slot.UTCOffset == "" || cfg.Outbox.Driver != "sqlite" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestParseOffset(t *testing.T) {
	got, err := ParseOffset("+05:30")
	if err != nil || got != 5*time.Hour+30*time.Minute {
		t.Fatalf("expected 5h30m, got %v (%v)", got, err)
	}
	got, err = ParseOffset("-04:00")
	if err != nil || got != -4*time.Hour {
		t.Fatalf("expected -4h, got %v (%v)", got, err)
	}
	if got, err := ParseOffset("Z"); err != nil || got != 0 {
		t.Fatalf("expected zero offset, got %v (%v)", got, err)
	}
	if _, err := ParseOffset("0530"); err == nil {
		t.Fatalf("expected error for unsigned offset")
	}
}

func TestTTLDuration(t *testing.T) {
	if d := TTLDuration("", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback, got %v", d)
	}
	if d := TTLDuration("bogus", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback for bad value, got %v", d)
	}
	if d := TTLDuration("90s", time.Minute); d != 90*time.Second {
		t.Fatalf("expected 90s, got %v", d)
	}
}
