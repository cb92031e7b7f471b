package lastfm

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventPageFixture = `<!DOCTYPE html>
<html>
<head><title>Nils Frahm events</title></head>
<body>
<h1 itemprop="name">Nils Frahm</h1>
<ul>
  <li>
    <time class="events-list-item-date" datetime="2026-10-02T20:00:00Z">2 Oct</time>
    <div class="events-list-item-venue--title">Funkhaus</div>
    <div class="events-list-item-venue--address">
      Berlin, Germany
    </div>
  </li>
  <li>
    <time class="events-list-item-date" datetime="2026-11-15T19:30:00+01:00">15 Nov</time>
    <div class="events-list-item-venue--title">Barbican Centre</div>
    <div class="events-list-item-venue--address">London, Greater London, United Kingdom</div>
  </li>
</ul>
</body>
</html>`

func TestParseEventPage(t *testing.T) {
	events, err := parseEventPage(strings.NewReader(eventPageFixture),
		"Nils Frahm", "http://web.test/music/Nils%20Frahm/+events")
	require.NoError(t, err)
	require.Len(t, events, 2)

	first := events[0]
	assert.Equal(t, "2026-10-02", first.Date)
	assert.Equal(t, "Funkhaus", first.Venue)
	assert.Equal(t, "Berlin", first.Locality)
	assert.Equal(t, "Germany", first.Country)
	assert.Equal(t, []string{"Nils Frahm"}, first.Lineup)

	second := events[1]
	assert.Equal(t, "2026-11-15", second.Date)
	assert.Equal(t, "London, Greater London", second.Locality)
	assert.Equal(t, "United Kingdom", second.Country)
}

func TestParseEventPageNoEvents(t *testing.T) {
	page := `<html><body><h1 itemprop="name">Nils Frahm</h1><p>No upcoming events.</p></body></html>`
	events, err := parseEventPage(strings.NewReader(page), "Nils Frahm", "link")
	require.NoError(t, err)
	assert.Empty(t, events, "a recognizable page with no listings is not an error")
}

func TestParseEventPageChangedMarkup(t *testing.T) {
	page := `<html><body><h1 class="artist-title">Nils Frahm</h1></body></html>`
	_, err := parseEventPage(strings.NewReader(page), "Nils Frahm", "link")
	require.ErrorIs(t, err, ErrMarkupChanged)
}

func TestParseEventPageCapsListings(t *testing.T) {
	var page strings.Builder
	page.WriteString(`<html><body><h1 itemprop="name">Nils Frahm</h1><ul>`)
	for i := 0; i < eventCap+20; i++ {
		page.WriteString(`<li>
<time class="events-list-item-date" datetime="2026-10-02T20:00:00Z">2 Oct</time>
<div class="events-list-item-venue--title">Funkhaus</div>
<div class="events-list-item-venue--address">Berlin, Germany</div>
</li>`)
	}
	page.WriteString(`</ul></body></html>`)

	events, err := parseEventPage(strings.NewReader(page.String()), "Nils Frahm", "link")
	require.NoError(t, err)
	assert.Len(t, events, eventCap, "a runaway page must be cut off at the cap")
}

func TestArtistEventsNotFound(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet,
		`=~^http://web\.test/music/.*`,
		httpmock.NewStringResponder(http.StatusNotFound, "gone"))

	_, err := c.ArtistEvents(context.Background(), "No Such Band")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestArtistEventsFetchesEscapedPage(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet,
		"http://web.test/music/Sigur%20R%C3%B3s/+events",
		httpmock.NewStringResponder(http.StatusOK,
			`<html><body><h1 itemprop="name">Sigur Rós</h1></body></html>`))

	events, err := c.ArtistEvents(context.Background(), "Sigur Rós")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSplitAddress(t *testing.T) {
	tests := []struct {
		addr     string
		locality string
		country  string
	}{
		{"Berlin, Germany", "Berlin", "Germany"},
		{"London, Greater London, United Kingdom", "London, Greater London", "United Kingdom"},
		{"Reykjavík", "Reykjavík", ""},
	}
	for _, tt := range tests {
		loc, cty := splitAddress(tt.addr)
		assert.Equal(t, tt.locality, loc, tt.addr)
		assert.Equal(t, tt.country, cty, tt.addr)
	}
}
