// Package pipeline wires the fetch → filter → scrape → ledger → compose run
// for one user. It is driven by the scheduler's daily trigger and by the
// interactive "check now" command, each under its own concurrency budget.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gigbot/internal/lastfm"
	"gigbot/internal/storage"
	"gigbot/pkg/logx"
)

// RunKind selects which concurrency budget a run draws from, so a burst of
// users pressing "check now" cannot starve the scheduled runs and vice
// versa.
type RunKind int

const (
	KindInteractive RunKind = iota
	KindScheduled
)

// Fetcher is the outbound side of the pipeline; *lastfm.Client satisfies it.
type Fetcher interface {
	RecentTracks(ctx context.Context, account string, from time.Time) (lastfm.History, error)
	ArtistEvents(ctx context.Context, artist string) ([]storage.Event, error)
}

type Config struct {
	// InitialLookback bounds the first fetch for an account with no stored
	// history.
	InitialLookback time.Duration

	// ShorthandMax decides how many digits the short codes are padded to.
	ShorthandMax int

	// Interactive and Scheduled cap simultaneous outbound calls per run
	// kind.
	Interactive int
	Scheduled   int
}

type Service struct {
	cfg     Config
	store   *storage.Store
	fetcher Fetcher
	log     logx.Logger

	semInteractive chan struct{}
	semScheduled   chan struct{}
}

func New(cfg Config, store *storage.Store, fetcher Fetcher, log logx.Logger) *Service {
	if cfg.Interactive <= 0 {
		cfg.Interactive = 2
	}
	if cfg.Scheduled <= 0 {
		cfg.Scheduled = 2
	}
	if cfg.ShorthandMax <= 0 {
		cfg.ShorthandMax = 99
	}
	if cfg.InitialLookback <= 0 {
		cfg.InitialLookback = 96 * time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:            cfg,
		store:          store,
		fetcher:        fetcher,
		log:            log,
		semInteractive: make(chan struct{}, cfg.Interactive),
		semScheduled:   make(chan struct{}, cfg.Scheduled),
	}
}

// RunForUser executes one full pipeline run and returns the composed
// notification text (Telegram HTML). A failing account contributes a single
// diagnostic line and does not abort the user's other accounts.
func (s *Service) RunForUser(ctx context.Context, userID int64, kind RunKind) (string, error) {
	runID := uuid.NewString()[:8]
	log := s.log.With(logx.String("run", runID), logx.Int64("user", userID))
	start := time.Now()

	accounts, err := s.store.Accounts(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", nil
	}
	settings, err := s.store.Settings(ctx, userID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, lfm := range accounts {
		segment, err := s.runAccount(ctx, userID, lfm, kind, log)
		if err != nil {
			log.Warn("account segment failed", logx.String("account", lfm), logx.Err(err))
			b.WriteString(diagnosticLine(lfm, err))
			continue
		}
		if segment == "" && settings.QuietEmpty {
			continue
		}
		if segment == "" {
			segment = "\nNo new events for " + italic(lfm) + "\n"
		}
		b.WriteString(segment)
	}
	log.Info("run finished", logx.Duration("took", time.Since(start)), logx.Int("accounts", len(accounts)))
	return strings.TrimRight(b.String(), "\n"), nil
}

// runAccount handles one tracked account end to end. The returned segment is
// empty when the account produced no notification lines.
func (s *Service) runAccount(ctx context.Context, userID int64, lfm string, kind RunKind, log logx.Logger) (string, error) {
	from, err := s.fromMoment(ctx, userID, lfm)
	if err != nil {
		return "", err
	}

	var hist lastfm.History
	err = s.withSlot(ctx, kind, func() error {
		var ferr error
		hist, ferr = s.fetcher.RecentTracks(ctx, lfm, from)
		return ferr
	})
	if err != nil {
		return "", err
	}

	artists := make([]string, 0, len(hist))
	for artist, byDay := range hist {
		artists = append(artists, artist)
		for day, count := range byDay {
			sc := storage.Scrobble{UserID: userID, LFM: lfm, Artist: artist, Day: day, Count: count}
			if err := s.store.MergeScrobble(ctx, sc); err != nil {
				return "", err
			}
		}
	}
	sort.Strings(artists)

	s.rescanArtists(ctx, userID, artists, kind, log)

	var lines []string
	for _, artist := range artists {
		notify, err := s.store.ShouldNotify(ctx, userID, artist)
		if err != nil {
			return "", err
		}
		if !notify {
			continue
		}
		n, err := s.store.NextShorthand(ctx, userID, artist)
		if err != nil {
			return "", err
		}
		if err := s.store.MarkSent(ctx, userID, artist); err != nil {
			return "", err
		}
		lines = append(lines, formatShorthand(n, s.cfg.ShorthandMax)+" "+escape(artist))
	}
	if len(lines) == 0 {
		return "", nil
	}
	return "\n" + bold("New events for "+lfm) + "\n\n" + strings.Join(lines, "\n") + "\n", nil
}

// rescanArtists scrapes the event pages of all throttle-eligible artists,
// bounded by the run kind's budget. Artist-level failures are logged and do
// not fail the account segment; every attempt, whatever its outcome, stamps
// the artist's global check state so a broken page is not re-hammered every
// run.
func (s *Service) rescanArtists(ctx context.Context, userID int64, artists []string, kind RunKind, log logx.Logger) {
	var wg sync.WaitGroup
	for _, artist := range artists {
		rescan, err := s.store.ShouldRescan(ctx, userID, artist)
		if err != nil {
			log.Warn("rescan check failed", logx.String("artist", artist), logx.Err(err))
			continue
		}
		if !rescan {
			continue
		}
		wg.Add(1)
		go func(artist string) {
			defer wg.Done()
			var events []storage.Event
			err := s.withSlot(ctx, kind, func() error {
				var serr error
				events, serr = s.fetcher.ArtistEvents(ctx, artist)
				return serr
			})
			switch {
			case errors.Is(err, lastfm.ErrMarkupChanged):
				log.Warn("event page markup changed", logx.String("artist", artist))
			case err != nil:
				log.Warn("event scrape failed", logx.String("artist", artist), logx.Err(err))
			case len(events) > 0:
				if err := s.store.AddEvents(ctx, events); err != nil {
					log.Error("event merge failed", logx.String("artist", artist), logx.Err(err))
				}
			}
			if err := s.store.TouchArtistCheck(ctx, artist); err != nil {
				log.Error("artist check stamp failed", logx.String("artist", artist), logx.Err(err))
			}
		}(artist)
	}
	wg.Wait()
}

// fromMoment computes the "load scrobbles no earlier than" moment: the later
// of the fixed initial lookback and the day after the most recent stored
// play count, both at 00:00 UTC. This avoids re-fetching history already
// ingested.
func (s *Service) fromMoment(ctx context.Context, userID int64, lfm string) (time.Time, error) {
	lookback := midnightUTC(time.Now().UTC().Add(-s.cfg.InitialLookback))
	last, ok, err := s.store.LastScrobbleDay(ctx, userID, lfm)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return lookback, nil
	}
	next := midnightUTC(last).AddDate(0, 0, 1)
	if next.After(lookback) {
		return next, nil
	}
	return lookback, nil
}

func (s *Service) withSlot(ctx context.Context, kind RunKind, fn func() error) error {
	sem := s.semInteractive
	if kind == KindScheduled {
		sem = s.semScheduled
	}
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-sem }()
	return fn()
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
