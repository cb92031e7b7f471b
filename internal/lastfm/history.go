package lastfm

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"time"

	"gigbot/pkg/logx"
)

// History maps artist name -> calendar day ("2006-01-02", UTC) -> play count.
type History map[string]map[string]int

type lfmResponse struct {
	XMLName xml.Name  `xml:"lfm"`
	Status  string    `xml:"status,attr"`
	Recent  lfmRecent `xml:"recenttracks"`
}

type lfmRecent struct {
	TotalPages int        `xml:"totalPages,attr"`
	Tracks     []lfmTrack `xml:"track"`
}

type lfmTrack struct {
	NowPlaying string `xml:"nowplaying,attr"`
	Artist     string `xml:"artist"`
	Date       struct {
		UTS int64 `xml:"uts,attr"`
	} `xml:"date"`
}

// RecentTracks pages through the account's play feed no earlier than from,
// aggregating into per-artist per-day counts. Paging stops when the provider
// reports no further pages or the configured page cap is hit — the cap
// guards against a runaway loop if the provider misbehaves.
func (c *Client) RecentTracks(ctx context.Context, account string, from time.Time) (History, error) {
	hist := make(History)
	totalPages := 1
	for page := 1; page <= totalPages && page <= c.cfg.PageCap; page++ {
		resp, err := c.historyPage(ctx, account, from, page)
		if err != nil {
			return nil, err
		}
		if resp.Status != "ok" {
			return nil, fmt.Errorf("%w: %q", ErrBadStatus, resp.Status)
		}
		if page == 1 {
			totalPages = resp.Recent.TotalPages
			if totalPages > c.cfg.PageCap {
				c.log.Info("history pagination capped",
					logx.String("account", account),
					logx.Int("total_pages", totalPages),
					logx.Int("cap", c.cfg.PageCap))
			}
		}
		for _, tr := range resp.Recent.Tracks {
			// A currently-playing track has no date yet.
			if tr.NowPlaying == "true" || tr.Date.UTS == 0 {
				continue
			}
			day := time.Unix(tr.Date.UTS, 0).UTC().Format("2006-01-02")
			if hist[tr.Artist] == nil {
				hist[tr.Artist] = make(map[string]int)
			}
			hist[tr.Artist][day]++
		}
	}
	return hist, nil
}

// ValidateAccount probes the account with a minimal request so that connect
// flows can reject private or misspelled accounts up front.
func (c *Client) ValidateAccount(ctx context.Context, account string) error {
	u := fmt.Sprintf("%s/2.0/?method=user.getrecenttracks&limit=1&user=%s&page=1&from=0&api_key=%s",
		c.cfg.APIBase, url.QueryEscape(account), url.QueryEscape(c.cfg.APIKey))
	body, err := c.fetch(ctx, u)
	if err != nil {
		return err
	}
	var resp lfmResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrBadStatus, err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("%w: %q", ErrBadStatus, resp.Status)
	}
	return nil
}

func (c *Client) historyPage(ctx context.Context, account string, from time.Time, page int) (*lfmResponse, error) {
	u := fmt.Sprintf("%s/2.0/?method=user.getrecenttracks&limit=%d&user=%s&page=%d&from=%d&api_key=%s",
		c.cfg.APIBase, pageSize, url.QueryEscape(account), page, from.Unix(), url.QueryEscape(c.cfg.APIKey))
	body, err := c.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	var resp lfmResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadStatus, err)
	}
	return &resp, nil
}
