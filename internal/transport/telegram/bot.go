// Package telegram is the bot's messaging transport: incoming commands and
// outgoing notification sends. The core never talks to Telegram directly;
// it produces text and this adapter delivers it.
package telegram

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"gigbot/internal/lastfm"
	"gigbot/internal/pipeline"
	"gigbot/internal/scheduler"
	"gigbot/internal/storage"
	"gigbot/pkg/logx"
	"gigbot/pkg/tgui"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Deps struct {
	Store *storage.Store
	Pipe  *pipeline.Service
	Sched *scheduler.Service
	Lfm   *lastfm.Client
}

type Bot struct {
	bot  *tele.Bot
	deps Deps
	log  logx.Logger
}

// shorthand commands look like "/01".."/999"; everything else is a named
// command.
var shorthandRe = regexp.MustCompile(`^/(\d{2,3})$`)

func New(cfg Config, deps Deps, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bot{bot: tb, deps: deps, log: log}, nil
}

// Start registers handlers and begins long-polling. It returns immediately;
// polling stops when ctx is canceled.
func (b *Bot) Start(ctx context.Context) {
	b.bot.Handle("/start", b.wrap(ctx, b.handleStart))
	b.bot.Handle("/help", b.wrap(ctx, b.handleHelp))
	b.bot.Handle("/connect", b.wrap(ctx, b.handleConnect))
	b.bot.Handle("/disconnect", b.wrap(ctx, b.handleDisconnect))
	b.bot.Handle("/getgigs", b.wrap(ctx, b.handleGetGigs))
	b.bot.Handle("/nonewevents", b.wrap(ctx, b.handleNoNewEvents))
	b.bot.Handle("/forgetme", b.wrap(ctx, b.handleForgetMe))
	b.bot.Handle(tele.OnText, b.wrap(ctx, b.handleText))

	go b.bot.Start()
	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	b.log.Info("telegram polling started")
}

// SendText delivers text to a chat in HTML mode, chunked to Telegram's
// message limit. Delivery is fire-and-forget: a failed chunk is logged, not
// retried.
func (b *Bot) SendText(chatID int64, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	to := &tele.Chat{ID: chatID}
	for _, chunk := range tgui.SplitByLines(text, tgui.MaxMessageLen) {
		if _, err := b.bot.Send(to, chunk, sendOpts()); err != nil {
			b.log.Warn("send failed", logx.Int64("chat", chatID), logx.Err(err))
			return
		}
	}
}

func sendOpts() *tele.SendOptions {
	return &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true}
}

// wrap adapts a context-taking handler to telebot's signature and keeps
// handler panics from killing the poller.
func (b *Bot) wrap(ctx context.Context, fn func(ctx context.Context, c tele.Context) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("handler panic", logx.Any("panic", r))
			}
		}()
		if err := fn(ctx, c); err != nil {
			b.log.Warn("handler failed", logx.String("text", tgui.TruncRunes(c.Text(), 64)), logx.Err(err))
		}
		return nil
	}
}
