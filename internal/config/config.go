package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Slot struct {
		// UTCOffset is the zone slots and calendar days are cut in, e.g. "+05:30".
		UTCOffset string `yaml:"utc_offset"`
	} `yaml:"slot"`
	Leaderboard struct {
		Limit int `yaml:"limit"`
	} `yaml:"leaderboard"`
	Outbox struct {
		Driver      string `yaml:"driver"` // sqlite or redis
		Path        string `yaml:"path"`
		Namespace   string `yaml:"namespace"`
		APIURL      string `yaml:"api_url"`
		Token       string `yaml:"token"`
		Schedule    string `yaml:"schedule"`
		Parallelism int    `yaml:"parallelism"`
	} `yaml:"outbox"`
}

// Load reads a .env file when present, the YAML config at path, then applies
// environment overrides. A missing YAML file is not an error when the environment
// supplies everything.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return cfg, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	override(&cfg.Server.Port, "PORT")
	override(&cfg.Log.Level, "LOG_LEVEL")
	override(&cfg.Postgres.URL, "POSTGRES_URL")
	override(&cfg.Redis.Addr, "REDIS_ADDR")
	override(&cfg.Mongo.URI, "MONGO_URI")
	override(&cfg.NATS.URL, "NATS_URL")
	override(&cfg.Slot.UTCOffset, "SLOT_UTC_OFFSET")
	override(&cfg.Outbox.APIURL, "OUTBOX_API_URL")
	override(&cfg.Outbox.Token, "OUTBOX_TOKEN")
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = strings.Split(origins, ",")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = "trivia"
	}
	if cfg.Slot.UTCOffset == "" {
		cfg.Slot.UTCOffset = "+05:30"
	}
	if cfg.Leaderboard.Limit <= 0 {
		cfg.Leaderboard.Limit = 50
	}
	if cfg.Outbox.Driver == "" {
		cfg.Outbox.Driver = "sqlite"
	}
	if cfg.Outbox.Path == "" {
		cfg.Outbox.Path = "outbox.db"
	}
	if cfg.Outbox.Namespace == "" {
		cfg.Outbox.Namespace = "default"
	}
	if cfg.Outbox.Schedule == "" {
		cfg.Outbox.Schedule = "@every 30s"
	}
	if cfg.Outbox.Parallelism <= 0 {
		cfg.Outbox.Parallelism = 4
	}
}

func override(field *string, key string) {
	if v := os.Getenv(key); v != "" {
		*field = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// ParseOffset reads a UTC offset written as "+05:30", "-04:00" or "Z".
func ParseOffset(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "Z" || strings.EqualFold(raw, "UTC") {
		return 0, nil
	}
	sign := time.Duration(1)
	switch raw[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, fmt.Errorf("utc offset %q: missing sign", raw)
	}
	hh, mm, ok := strings.Cut(raw[1:], ":")
	if !ok {
		return 0, fmt.Errorf("utc offset %q: want ±HH:MM", raw)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 14 {
		return 0, fmt.Errorf("utc offset %q: bad hours", raw)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("utc offset %q: bad minutes", raw)
	}
	return sign * (time.Duration(h)*time.Hour + time.Duration(m)*time.Minute), nil
}
