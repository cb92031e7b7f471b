package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Load reads, strictly decodes and validates the config file, then fills in
// defaults. The returned Config is immutable by convention.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jb, err := asJSON(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Telegram.PollTimeout) == "" {
		cfg.Telegram.PollTimeout = "10s"
	}
	if strings.TrimSpace(cfg.Lastfm.Rate) == "" {
		cfg.Lastfm.Rate = "1s"
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Defaults.MinListens <= 0 {
		cfg.Defaults.MinListens = 2
	}
	if strings.TrimSpace(cfg.Schedule.NoticeTime) == "" {
		cfg.Schedule.NoticeTime = "12:30"
	}
	if strings.TrimSpace(cfg.Throttle.ArtistCheck) == "" {
		cfg.Throttle.ArtistCheck = "48h"
	}
	if strings.TrimSpace(cfg.Throttle.ListenWindow) == "" {
		cfg.Throttle.ListenWindow = "96h"
	}
	if strings.TrimSpace(cfg.Throttle.InitialLookback) == "" {
		cfg.Throttle.InitialLookback = "96h"
	}
	if cfg.Limits.MaxAccounts <= 0 {
		cfg.Limits.MaxAccounts = 3
	}
	if cfg.Limits.ShorthandMax <= 0 {
		cfg.Limits.ShorthandMax = 99
	}
	if cfg.Limits.PageCap <= 0 {
		cfg.Limits.PageCap = 100
	}
	if cfg.Limits.InteractiveConcurrency <= 0 {
		cfg.Limits.InteractiveConcurrency = 2
	}
	if cfg.Limits.ScheduledConcurrency <= 0 {
		cfg.Limits.ScheduledConcurrency = 2
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.TrimSpace(cfg.Lastfm.APIKey) == "" {
		return errors.New("lastfm.api_key is required")
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if _, _, err := ParseHHMM(cfg.Schedule.NoticeTime); err != nil {
		return fmt.Errorf("schedule.notice_time: %w", err)
	}
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"lastfm.rate", cfg.Lastfm.Rate},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"throttle.artist_check", cfg.Throttle.ArtistCheck},
		{"throttle.listen_window", cfg.Throttle.ListenWindow},
		{"throttle.initial_lookback", cfg.Throttle.InitialLookback},
	} {
		if _, err := parseDuration(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}

// parseDuration validates an optional duration-string field. Blank is fine
// and means "use the default"; MustDuration supplies it later.
func parseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseHHMM parses a "HH:MM" wall-clock string.
func ParseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// MustDuration returns the parsed duration for a field already validated by
// Load, or def when the field was left blank.
func MustDuration(raw string, def time.Duration) time.Duration {
	d, err := parseDuration("", raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
