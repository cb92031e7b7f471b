package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gigbot/internal/lastfm"
	"gigbot/pkg/tgui"
)

func escape(s string) string { return tgui.Esc(s).String() }
func bold(s string) string   { return tgui.B(s).String() }
func italic(s string) string { return tgui.I(s).String() }

// formatShorthand renders "/NN", zero-padded to the width of the configured
// maximum so codes sort and align naturally.
func formatShorthand(n, max int) string {
	width := 2
	if max >= 100 {
		width = 3
	}
	return fmt.Sprintf("/%0*d", width, n)
}

// diagnosticLine translates an account-level fetch failure into one
// user-facing line. Transport internals never reach the user.
func diagnosticLine(account string, err error) string {
	switch {
	case errors.Is(err, lastfm.ErrPrivate):
		return "\nOops! It seems " + italic(account) + "'s tracks are private. " +
			"Change the account's privacy settings to use this bot.\n"
	case errors.Is(err, lastfm.ErrNotFound):
		return "\nOops! It seems " + italic(account) + " is not a valid Last.fm username.\n"
	default:
		return "\nCould not load tracks for " + italic(account) + " right now. We'll check that soon.\n"
	}
}

// DetailForShorthand resolves a short code to the full event listing for the
// artist it was assigned to, grouped by country. found is false for an
// unknown or expired code.
func (s *Service) DetailForShorthand(ctx context.Context, userID int64, shorthand int) (text string, found bool, err error) {
	rows, err := s.store.EventsByShorthand(ctx, userID, shorthand)
	if err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}

	var b strings.Builder
	b.WriteString(tgui.Link(rows[0].Artist, rows[0].Link).String() + " events\n")
	prevCountry := ""
	for _, ev := range rows {
		if ev.Country != prevCountry {
			b.WriteString("\nIn " + escape(ev.Country) + "\n")
			prevCountry = ev.Country
		}
		b.WriteString(bold(userDate(ev.Date)) + " in " + escape(ev.Locality) + ", " + escape(ev.Venue) + "\n")
	}
	return strings.TrimRight(b.String(), "\n"), true, nil
}

// userDate reformats a ledger date for display, falling back to the raw
// value if the ledger ever held something unparseable.
func userDate(day string) string {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		return day
	}
	return t.Format("02 Jan 2006")
}
