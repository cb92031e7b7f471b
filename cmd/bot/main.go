package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gigbot/internal/config"
	"gigbot/internal/lastfm"
	"gigbot/internal/pipeline"
	"gigbot/internal/scheduler"
	"gigbot/internal/storage"
	"gigbot/internal/transport/telegram"
	"gigbot/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return err
	}
	defer log.Close()

	store, err := storage.Open(storage.Config{
		Path:              cfg.Storage.Path,
		BusyTimeout:       config.MustDuration(cfg.Storage.BusyTimeout, 0),
		DefaultMinListens: cfg.Defaults.MinListens,
		ShorthandMax:      cfg.Limits.ShorthandMax,
		MaxAccounts:       cfg.Limits.MaxAccounts,
		ArtistCheckDelay:  config.MustDuration(cfg.Throttle.ArtistCheck, 48*time.Hour),
		ListenWindow:      config.MustDuration(cfg.Throttle.ListenWindow, 96*time.Hour),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	defer store.Close()

	lfm := lastfm.New(lastfm.Config{
		APIKey:  cfg.Lastfm.APIKey,
		APIBase: cfg.Lastfm.APIBase,
		WebBase: cfg.Lastfm.WebBase,
		Rate:    config.MustDuration(cfg.Lastfm.Rate, 0),
		PageCap: cfg.Limits.PageCap,
	}, log.With(logx.String("comp", "lastfm")))

	pipe := pipeline.New(pipeline.Config{
		InitialLookback: config.MustDuration(cfg.Throttle.InitialLookback, 96*time.Hour),
		ShorthandMax:    cfg.Limits.ShorthandMax,
		Interactive:     cfg.Limits.InteractiveConcurrency,
		Scheduled:       cfg.Limits.ScheduledConcurrency,
	}, store, lfm, log.With(logx.String("comp", "pipeline")))

	// The trigger needs the bot for delivery and the bot needs the
	// scheduler for connect/disconnect, so the send side binds late.
	var bot *telegram.Bot
	fire := func(fctx context.Context, entry storage.ScheduleEntry) {
		text, err := pipe.RunForUser(fctx, entry.UserID, pipeline.KindScheduled)
		if err != nil {
			log.Warn("scheduled run failed", logx.Int64("user", entry.UserID), logx.Err(err))
			return
		}
		if bot != nil {
			bot.SendText(entry.ChatID, text)
		}
	}

	sched, err := scheduler.New(scheduler.Config{NoticeTime: cfg.Schedule.NoticeTime},
		store, fire, log.With(logx.String("comp", "scheduler")))
	if err != nil {
		return err
	}

	bot, err = telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.MustDuration(cfg.Telegram.PollTimeout, 0),
	}, telegram.Deps{Store: store, Pipe: pipe, Sched: sched, Lfm: lfm},
		log.With(logx.String("comp", "telegram")))
	if err != nil {
		return err
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()
	bot.Start(ctx)

	log.Info("bot started")
	<-ctx.Done()
	return nil
}
