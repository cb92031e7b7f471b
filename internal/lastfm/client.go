// Package lastfm talks to the listening service: the XML API for scrobble
// history and the public web pages for upcoming artist events.
//
// Both surfaces are third-party contracts this bot does not own. The API is
// versioned and fairly stable; the event pages are not, which is why the
// scraper is deliberately fail-soft (see events.go).
package lastfm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"gigbot/pkg/logx"
)

const (
	defaultAPIBase = "http://ws.audioscrobbler.com"
	defaultWebBase = "https://www.last.fm"

	// pageSize is the per-request scrobble count; 200 is the API maximum.
	pageSize = 200
)

type Config struct {
	APIKey  string
	APIBase string // tests point this at a stub server
	WebBase string

	// Rate spaces outbound requests; every page load is followed by this
	// politeness delay before the next one starts.
	Rate time.Duration

	// PageCap bounds history pagination per fetch.
	PageCap int
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.APIBase) == "" {
		cfg.APIBase = defaultAPIBase
	}
	if strings.TrimSpace(cfg.WebBase) == "" {
		cfg.WebBase = defaultWebBase
	}
	if cfg.Rate <= 0 {
		cfg.Rate = time.Second
	}
	if cfg.PageCap <= 0 {
		cfg.PageCap = 100
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(cfg.Rate), 1),
		log:     log,
	}
}

// fetch performs one rate-limited GET and returns the body. Non-2xx
// responses and network errors come back as the package's typed sentinels.
func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return nil, ErrPrivate
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: http %d", ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return body, nil
}
