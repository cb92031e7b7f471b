// Package scheduler arms one recurring daily trigger per user with at least
// one tracked account. The roster lives in the ledger; re-arming from it on
// boot is the sole recovery mechanism after a restart.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"gigbot/internal/config"
	"gigbot/internal/storage"
	"gigbot/pkg/logx"
)

type Config struct {
	// NoticeTime is the daily delivery time, "HH:MM" in UTC.
	NoticeTime string
}

// FireFunc runs one user's scheduled pipeline and delivers the result.
type FireFunc func(ctx context.Context, entry storage.ScheduleEntry)

type Service struct {
	cfg   Config
	store *storage.Store
	fire  FireFunc
	log   logx.Logger

	spec string

	mu      sync.Mutex
	c       *cron.Cron
	entries map[int64]cron.EntryID
	runCtx  context.Context
	cancel  context.CancelFunc
}

func New(cfg Config, store *storage.Store, fire FireFunc, log logx.Logger) (*Service, error) {
	hour, minute, err := config.ParseHHMM(cfg.NoticeTime)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		fire:    fire,
		log:     log,
		spec:    fmt.Sprintf("%d %d * * *", minute, hour),
		entries: map[int64]cron.EntryID{},
	}, nil
}

// Start arms the cron runtime and rebuilds all triggers from the roster.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.c != nil {
		s.mu.Unlock()
		return nil
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithLocation(time.UTC))
	s.c.Start()
	s.mu.Unlock()

	return s.rebuild(ctx)
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}
	s.cancel()
	<-s.c.Stop().Done()
	s.c = nil
	s.entries = map[int64]cron.EntryID{}
	s.log.Info("scheduler stopped")
}

// Schedule arms (or re-arms) the user's daily trigger and records the roster
// row. Removing any existing trigger first makes reconnects re-entrant and
// serializes runs for the same user.
func (s *Service) Schedule(ctx context.Context, userID, chatID int64) error {
	entry := storage.ScheduleEntry{UserID: userID, ChatID: chatID}
	if err := s.store.SaveScheduleEntry(ctx, entry); err != nil {
		return err
	}
	return s.arm(entry)
}

// Unschedule removes the user's trigger and roster row; called when the last
// tracked account is disconnected.
func (s *Service) Unschedule(ctx context.Context, userID int64) error {
	s.mu.Lock()
	if id, ok := s.entries[userID]; ok && s.c != nil {
		s.c.Remove(id)
		delete(s.entries, userID)
	}
	s.mu.Unlock()
	return s.store.DeleteScheduleEntry(ctx, userID)
}

// Scheduled reports whether the user currently has an armed trigger.
func (s *Service) Scheduled(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[userID]
	return ok
}

func (s *Service) rebuild(ctx context.Context) error {
	entries, err := s.store.ScheduleEntries(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.arm(e); err != nil {
			return err
		}
	}
	s.log.Info("scheduler started", logx.Int("triggers", len(entries)), logx.String("spec", s.spec))
	return nil
}

func (s *Service) arm(entry storage.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return fmt.Errorf("scheduler: not started")
	}
	if id, ok := s.entries[entry.UserID]; ok {
		s.c.Remove(id)
		delete(s.entries, entry.UserID)
	}
	runCtx := s.runCtx
	id, err := s.c.AddFunc(s.spec, func() {
		s.log.Debug("trigger fired", logx.Int64("user", entry.UserID))
		s.fire(runCtx, entry)
	})
	if err != nil {
		return err
	}
	s.entries[entry.UserID] = id
	return nil
}
