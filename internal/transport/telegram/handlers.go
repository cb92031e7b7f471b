package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"gigbot/internal/lastfm"
	"gigbot/internal/pipeline"
	"gigbot/internal/storage"
	"gigbot/pkg/logx"
	"gigbot/pkg/tgui"
)

const helpText = `<b>Great gigs, tracked for you.</b>

/connect &lt;username&gt; — track a Last.fm account
/disconnect &lt;username&gt; — stop tracking it
/getgigs — check for new concerts right now
/NN — details for a previously sent short code
/nonewevents — toggle skipping accounts with nothing new
/forgetme — delete your accounts and history
/help — this message

Once an account is connected you get a daily digest of concerts by
artists you actually listen to.`

func (b *Bot) handleStart(ctx context.Context, c tele.Context) error {
	if err := b.saveSender(ctx, c); err != nil {
		return err
	}
	return c.Send(helpText, sendOpts())
}

func (b *Bot) handleHelp(ctx context.Context, c tele.Context) error {
	return c.Send(helpText, sendOpts())
}

func (b *Bot) handleConnect(ctx context.Context, c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /connect <lastfm username>", sendOpts())
	}
	account := strings.TrimSpace(args[0])
	if err := b.saveSender(ctx, c); err != nil {
		return err
	}
	userID := c.Sender().ID

	if err := b.deps.Lfm.ValidateAccount(ctx, account); err != nil {
		return c.Send(validateFailText(account, err), sendOpts())
	}

	added, err := b.deps.Store.AddAccount(ctx, userID, account)
	if errors.Is(err, storage.ErrAccountLimit) {
		return c.Send("You already track the maximum number of accounts.", sendOpts())
	}
	if err != nil {
		return err
	}
	// Arm the daily trigger either way; reconnecting is a no-op on the
	// trigger, only the roster write matters.
	if err := b.deps.Sched.Schedule(ctx, userID, c.Chat().ID); err != nil {
		return err
	}
	if !added {
		return c.Send("Already tracking "+tgui.I(account).String()+".", sendOpts())
	}
	b.log.Info("account connected", logx.Int64("user", userID), logx.String("account", account))
	return c.Send("Connected "+tgui.I(account).String()+". Expect your first digest at the next daily run, or /getgigs now.", sendOpts())
}

func (b *Bot) handleDisconnect(ctx context.Context, c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /disconnect <lastfm username>", sendOpts())
	}
	account := strings.TrimSpace(args[0])
	userID := c.Sender().ID

	remaining, err := b.deps.Store.RemoveAccount(ctx, userID, account)
	if err != nil {
		return err
	}
	if remaining == 0 {
		if err := b.deps.Sched.Unschedule(ctx, userID); err != nil {
			return err
		}
	}
	b.log.Info("account disconnected", logx.Int64("user", userID), logx.String("account", account), logx.Int("remaining", remaining))
	return c.Send("Disconnected "+tgui.I(account).String()+".", sendOpts())
}

func (b *Bot) handleGetGigs(ctx context.Context, c tele.Context) error {
	userID := c.Sender().ID
	accounts, err := b.deps.Store.Accounts(ctx, userID)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return c.Send("No accounts connected yet. Use /connect <lastfm username> first.", sendOpts())
	}
	if err := c.Send("Searching for concerts…", sendOpts()); err != nil {
		return err
	}
	// The run is network-bound and telebot dispatches updates sequentially,
	// so it must not hold up the poll loop.
	chatID := c.Chat().ID
	go func() {
		text, err := b.deps.Pipe.RunForUser(ctx, userID, pipeline.KindInteractive)
		if err != nil {
			b.log.Warn("interactive run failed", logx.Int64("user", userID), logx.Err(err))
			b.SendText(chatID, "Could not finish the check right now, please try again later.")
			return
		}
		if strings.TrimSpace(text) == "" {
			text = "No new concerts"
		}
		b.SendText(chatID, text)
	}()
	return nil
}

// handleNoNewEvents toggles whether empty account segments show up in the
// user's digests.
func (b *Bot) handleNoNewEvents(ctx context.Context, c tele.Context) error {
	if err := b.saveSender(ctx, c); err != nil {
		return err
	}
	set, err := b.deps.Store.Settings(ctx, c.Sender().ID)
	if err != nil {
		return err
	}
	set.QuietEmpty = !set.QuietEmpty
	if err := b.deps.Store.SaveSettings(ctx, set); err != nil {
		return err
	}
	if set.QuietEmpty {
		return c.Send("Got it, accounts with nothing new will be left out of your digests. /nonewevents brings them back.", sendOpts())
	}
	return c.Send("Got it, your digests will mention accounts with nothing new again.", sendOpts())
}

// handleForgetMe deletes the user and everything tied to them. Destructive,
// so it asks for an explicit confirmation argument.
func (b *Bot) handleForgetMe(ctx context.Context, c tele.Context) error {
	userID := c.Sender().ID
	args := c.Args()
	if len(args) != 1 || !strings.EqualFold(args[0], "yes") {
		return c.Send("This removes your tracked accounts, listening history and scheduled digests. Send /forgetme yes to confirm.", sendOpts())
	}
	if err := b.deps.Sched.Unschedule(ctx, userID); err != nil {
		return err
	}
	if err := b.deps.Store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	b.log.Info("user deleted", logx.Int64("user", userID))
	return c.Send("All gone. /start whenever you want to come back.", sendOpts())
}

// handleText catches the dynamic shorthand commands ("/01".."/999") that
// cannot be registered statically.
func (b *Bot) handleText(ctx context.Context, c tele.Context) error {
	m := shorthandRe.FindStringSubmatch(strings.TrimSpace(c.Text()))
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n == 0 {
		return nil
	}
	text, found, err := b.deps.Pipe.DetailForShorthand(ctx, c.Sender().ID, n)
	if err != nil {
		return err
	}
	if !found {
		return c.Send("No events under this shortcut", sendOpts())
	}
	b.SendText(c.Chat().ID, text)
	return nil
}

func (b *Bot) saveSender(ctx context.Context, c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return errors.New("message without sender")
	}
	return b.deps.Store.SaveUser(ctx, storage.User{
		ID:        sender.ID,
		Username:  sender.Username,
		FirstName: sender.FirstName,
		Locale:    sender.LanguageCode,
	})
}

func validateFailText(account string, err error) string {
	switch {
	case errors.Is(err, lastfm.ErrPrivate):
		return "It seems " + tgui.I(account).String() + "'s tracks are private. Change the account's privacy settings and try again."
	case errors.Is(err, lastfm.ErrNotFound):
		return "It seems " + tgui.I(account).String() + " is not a valid Last.fm username."
	default:
		return "Could not reach Last.fm right now, please try again later."
	}
}
