package lastfm

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigbot/pkg/logx"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c := New(Config{
		APIKey:  "test-key",
		APIBase: "http://api.test",
		WebBase: "http://web.test",
		Rate:    time.Millisecond,
	}, logx.Nop())
	httpmock.ActivateNonDefault(c.http)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func historyXML(totalPages int, tracks string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<lfm status="ok">
<recenttracks user="alice" totalPages="%d">
%s
</recenttracks>
</lfm>`, totalPages, tracks)
}

func TestRecentTracksAggregatesAcrossPages(t *testing.T) {
	c := newTestClient(t)

	// 2024-03-10 and 2024-03-11 in UTC seconds.
	page1 := historyXML(2, `
<track nowplaying="true"><artist mbid="">Nils Frahm</artist></track>
<track><artist mbid="">Nils Frahm</artist><date uts="1710072000">10 Mar 2024</date></track>
<track><artist mbid="">Nils Frahm</artist><date uts="1710075600">10 Mar 2024</date></track>`)
	page2 := historyXML(2, `
<track><artist mbid="">Kiasmos</artist><date uts="1710158400">11 Mar 2024</date></track>
<track><artist mbid="">Nils Frahm</artist><date uts="1710158400">11 Mar 2024</date></track>`)

	httpmock.RegisterResponder(http.MethodGet, "http://api.test/2.0/",
		func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("page") == "2" {
				return httpmock.NewStringResponse(http.StatusOK, page2), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, page1), nil
		})

	hist, err := c.RecentTracks(context.Background(), "alice", time.Unix(0, 0))
	require.NoError(t, err)

	assert.Equal(t, 2, hist["Nils Frahm"]["2024-03-10"])
	assert.Equal(t, 1, hist["Nils Frahm"]["2024-03-11"])
	assert.Equal(t, 1, hist["Kiasmos"]["2024-03-11"])
	assert.Equal(t, 2, httpmock.GetTotalCallCount(), "one request per page")
}

func TestRecentTracksSkipsUndatedTracks(t *testing.T) {
	c := newTestClient(t)
	body := historyXML(1, `
<track nowplaying="true"><artist mbid="">Nils Frahm</artist></track>
<track><artist mbid="">Nils Frahm</artist><date uts="0">never</date></track>`)
	httpmock.RegisterResponder(http.MethodGet, "http://api.test/2.0/",
		httpmock.NewStringResponder(http.StatusOK, body))

	hist, err := c.RecentTracks(context.Background(), "alice", time.Unix(0, 0))
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestRecentTracksRespectsPageCap(t *testing.T) {
	c := newTestClient(t)
	c.cfg.PageCap = 3
	httpmock.RegisterResponder(http.MethodGet, "http://api.test/2.0/",
		httpmock.NewStringResponder(http.StatusOK, historyXML(50, `
<track><artist mbid="">Nils Frahm</artist><date uts="1710072000">10 Mar 2024</date></track>`)))

	_, err := c.RecentTracks(context.Background(), "alice", time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, 3, httpmock.GetTotalCallCount(), "pagination must stop at the cap")
}

func TestRecentTracksErrorStatus(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, "http://api.test/2.0/",
		httpmock.NewStringResponder(http.StatusOK,
			`<lfm status="failed"><error code="6">User not found</error></lfm>`))

	_, err := c.RecentTracks(context.Background(), "alice", time.Unix(0, 0))
	require.ErrorIs(t, err, ErrBadStatus)
}

func TestValidateAccountClassifiesHTTPErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"private", http.StatusForbidden, ErrPrivate},
		{"unknown", http.StatusNotFound, ErrNotFound},
		{"flaky", http.StatusBadGateway, ErrTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t)
			httpmock.RegisterResponder(http.MethodGet, "http://api.test/2.0/",
				httpmock.NewStringResponder(tt.status, "nope"))

			err := c.ValidateAccount(context.Background(), "alice")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateAccountOK(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, "http://api.test/2.0/",
		httpmock.NewStringResponder(http.StatusOK, historyXML(1, "")))

	require.NoError(t, c.ValidateAccount(context.Background(), "alice"))
}
