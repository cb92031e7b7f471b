package lastfm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"gigbot/internal/storage"
	"gigbot/pkg/logx"
)

// eventCap bounds events extracted from one page, mirroring the history
// page cap: a malformed page must not loop forever.
const eventCap = 100

// Markers the event page is recognized by. The page is a third-party
// contract and changes without notice; parsing is best-effort by design.
const (
	markHeader  = "name" // itemprop attribute on the artist header
	markDate    = "events-list-item-date"
	markVenue   = "events-list-item-venue--title"
	markAddress = "events-list-item-venue--address"
)

// ArtistEvents loads the artist's public event page and extracts upcoming
// events, each with a lineup of just this artist.
//
// Failure semantics, in order of precedence:
//   - transport failures come back as the package sentinels (ErrPrivate,
//     ErrNotFound, ErrTransport);
//   - a page that loads but no longer carries the artist header returns
//     ErrMarkupChanged — zero results with a recognizable page is a
//     legitimate outcome, an unrecognizable page is telemetry-worthy;
//   - a recognizable page with no listed events returns an empty slice and
//     no error.
func (c *Client) ArtistEvents(ctx context.Context, artist string) ([]storage.Event, error) {
	link := c.eventPageURL(artist)
	body, err := c.fetch(ctx, link)
	if err != nil {
		return nil, err
	}
	events, err := parseEventPage(bytes.NewReader(body), artist, link)
	if err != nil {
		return nil, err
	}
	c.log.Debug("event page parsed", logx.String("artist", artist), logx.Int("events", len(events)))
	return events, nil
}

func (c *Client) eventPageURL(artist string) string {
	return fmt.Sprintf("%s/music/%s/+events", c.cfg.WebBase, url.PathEscape(artist))
}

// parser states; the page is consumed in document order, one field at a
// time, exactly as the fields appear in the listing.
type scanState int

const (
	wantDate scanState = iota
	wantVenue
	wantAddress
)

func parseEventPage(r io.Reader, artist, link string) ([]storage.Event, error) {
	z := html.NewTokenizer(r)

	var (
		events    []storage.Event
		sawHeader bool
		state     = wantDate
		capture   bool // next text token belongs to the current field
		cur       storage.Event
	)
	for len(events) < eventCap {
		tt := z.Next()
		if tt == html.ErrorToken {
			break // io.EOF or malformed tail; either way we are done
		}
		tok := z.Token()

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if attrVal(tok, "itemprop") == markHeader {
				sawHeader = true
				continue
			}
			if !sawHeader {
				continue
			}
			switch {
			case state == wantDate && hasClass(tok, markDate):
				raw := attrVal(tok, "datetime")
				if len(raw) < 10 {
					continue
				}
				cur = storage.Event{
					Date:   raw[:10],
					Source: "lastfm",
					Link:   link,
					Lineup: []string{artist},
				}
				state = wantVenue
			case state == wantVenue && hasClass(tok, markVenue):
				capture = true
			case state == wantAddress && hasClass(tok, markAddress):
				capture = true
			}

		case html.TextToken:
			if !capture {
				continue
			}
			text := strings.TrimSpace(tok.Data)
			if text == "" {
				continue
			}
			capture = false
			switch state {
			case wantVenue:
				cur.Venue = text
				state = wantAddress
			case wantAddress:
				cur.Locality, cur.Country = splitAddress(text)
				events = append(events, cur)
				state = wantDate
			}
		}
	}

	if !sawHeader {
		return nil, ErrMarkupChanged
	}
	return events, nil
}

// splitAddress separates "City, Region, Country" into locality and country:
// the country is the final comma segment, the locality everything before it.
func splitAddress(addr string) (locality, country string) {
	idx := strings.LastIndex(addr, ", ")
	if idx < 0 {
		return addr, ""
	}
	return addr[:idx], addr[idx+2:]
}

func attrVal(tok html.Token, name string) string {
	for _, a := range tok.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasClass(tok html.Token, class string) bool {
	for _, a := range tok.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}
