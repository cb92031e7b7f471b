// Package storage is the bot's durable ledger: tracked accounts, daily play
// counts, discovered events with their lineups, the global per-artist check
// throttle, sent-notification dedup rows, shorthand slots and the scheduler
// roster.
//
// All writes are idempotent merges or insert-or-ignore, so re-running a
// pipeline with the same inputs after a crash cannot double-count plays,
// duplicate events or re-send notifications.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"gigbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default

	// DefaultMinListens seeds settings for new users.
	DefaultMinListens int

	// ShorthandMax bounds the per-user shorthand counter.
	ShorthandMax int

	// MaxAccounts bounds tracked accounts per user.
	MaxAccounts int

	// ArtistCheckDelay is the re-scrape throttle window.
	ArtistCheckDelay time.Duration

	// ListenWindow is the rolling window for the listen threshold.
	ListenWindow time.Duration
}

// Store wraps the sqlite database. Methods are safe for concurrent use; the
// connection pool is capped at one writer, which is what sqlite prefers.
type Store struct {
	db  *sql.DB
	cfg Config
	log logx.Logger
}

// Open opens (creating if needed) the database and applies migrations.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if cfg.ShorthandMax <= 0 {
		cfg.ShorthandMax = 99
	}
	if cfg.MaxAccounts <= 0 {
		cfg.MaxAccounts = 3
	}
	if cfg.DefaultMinListens <= 0 {
		cfg.DefaultMinListens = 2
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	s := &Store{db: db, cfg: cfg, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// days converts a duration to fractional days for julianday() comparisons.
func days(d time.Duration) float64 { return d.Hours() / 24 }

// sqlNamed aliases sql.Named for the longer eligibility queries, where
// positional placeholders repeat too often to stay readable.
func sqlNamed(name string, value any) sql.NamedArg { return sql.Named(name, value) }

const (
	sqlDateFormat     = "2006-01-02"
	sqlDatetimeFormat = "2006-01-02 15:04:05"
)

// Day renders a time as the sqlite date string used throughout the schema.
func Day(t time.Time) string { return t.UTC().Format(sqlDateFormat) }
