package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gigbot/internal/lastfm"
	"gigbot/internal/storage"
	"gigbot/pkg/logx"
)

// stubFetcher serves canned histories and event pages without touching the
// network. Scrapes run concurrently, so the bookkeeping is locked.
type stubFetcher struct {
	history    map[string]lastfm.History
	historyErr map[string]error
	events     map[string][]storage.Event
	eventsErr  map[string]error

	// scrapeHold keeps each scrape in flight for a while so tests can
	// observe overlap.
	scrapeHold time.Duration

	mu          sync.Mutex
	scraped     []string
	inFlight    int
	maxInFlight int
}

func (f *stubFetcher) RecentTracks(_ context.Context, account string, _ time.Time) (lastfm.History, error) {
	if err := f.historyErr[account]; err != nil {
		return nil, err
	}
	return f.history[account], nil
}

func (f *stubFetcher) ArtistEvents(_ context.Context, artist string) ([]storage.Event, error) {
	f.mu.Lock()
	f.scraped = append(f.scraped, artist)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	if f.scrapeHold > 0 {
		time.Sleep(f.scrapeHold)
	}
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	if err := f.eventsErr[artist]; err != nil {
		return nil, err
	}
	return f.events[artist], nil
}

func newTestService(t *testing.T, fetcher Fetcher) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.Open(storage.Config{
		Path:              filepath.Join(t.TempDir(), "test.db"),
		DefaultMinListens: 2,
		ShorthandMax:      99,
		MaxAccounts:       3,
		ArtistCheckDelay:  48 * time.Hour,
		ListenWindow:      96 * time.Hour,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	svc := New(Config{
		InitialLookback: 96 * time.Hour,
		ShorthandMax:    99,
		Interactive:     2,
		Scheduled:       2,
	}, store, fetcher, logx.Nop())
	return svc, store
}

func seedTrackedUser(t *testing.T, store *storage.Store, userID int64, lfm string) {
	t.Helper()
	ctx := context.Background()
	if err := store.SaveUser(ctx, storage.User{ID: userID, Username: "u", FirstName: "U"}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	if _, err := store.AddAccount(ctx, userID, lfm); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
}

func playsToday(artist string, count int) lastfm.History {
	day := time.Now().UTC().Format("2006-01-02")
	return lastfm.History{artist: {day: count}}
}

func concertFor(artist string, daysAhead int) storage.Event {
	day := time.Now().UTC().AddDate(0, 0, daysAhead).Format("2006-01-02")
	return storage.Event{
		Date: day, Venue: "Funkhaus", Locality: "Berlin", Country: "Germany",
		Source: "lastfm", Link: "https://example.org/" + artist, Lineup: []string{artist},
	}
}

func TestRunNotifiesOnceThenGoesQuiet(t *testing.T) {
	fetcher := &stubFetcher{
		history: map[string]lastfm.History{"alice_fm": playsToday("Mogwai", 3)},
		events:  map[string][]storage.Event{"Mogwai": {concertFor("Mogwai", 10)}},
	}
	svc, _ := newTestService(t, fetcher)
	seedTrackedUser(t, svc.store, 1, "alice_fm")
	ctx := context.Background()

	text, err := svc.RunForUser(ctx, 1, KindInteractive)
	if err != nil {
		t.Fatalf("RunForUser: %v", err)
	}
	if !strings.Contains(text, "New events for alice_fm") {
		t.Fatalf("missing header, got:\n%s", text)
	}
	if !strings.Contains(text, "/01 Mogwai") {
		t.Fatalf("missing shorthand line, got:\n%s", text)
	}

	// Same world, second run: events already notified, nothing new to say.
	text, err = svc.RunForUser(ctx, 1, KindInteractive)
	if err != nil {
		t.Fatalf("RunForUser: %v", err)
	}
	if !strings.Contains(text, "No new events for") {
		t.Fatalf("expected the quiet marker, got:\n%s", text)
	}
	if strings.Contains(text, "/0") {
		t.Fatalf("second run must not re-notify, got:\n%s", text)
	}
}

func TestRunBelowThresholdDoesNotScrape(t *testing.T) {
	fetcher := &stubFetcher{
		history: map[string]lastfm.History{"alice_fm": playsToday("Mogwai", 1)},
		events:  map[string][]storage.Event{"Mogwai": {concertFor("Mogwai", 10)}},
	}
	svc, _ := newTestService(t, fetcher)
	seedTrackedUser(t, svc.store, 1, "alice_fm")

	if _, err := svc.RunForUser(context.Background(), 1, KindInteractive); err != nil {
		t.Fatalf("RunForUser: %v", err)
	}
	if len(fetcher.scraped) != 0 {
		t.Fatalf("scraped %v, want nothing below the listen threshold", fetcher.scraped)
	}
}

func TestRunScrapeThrottledAcrossRuns(t *testing.T) {
	fetcher := &stubFetcher{
		history: map[string]lastfm.History{"alice_fm": playsToday("Mogwai", 3)},
	}
	svc, _ := newTestService(t, fetcher)
	seedTrackedUser(t, svc.store, 1, "alice_fm")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.RunForUser(ctx, 1, KindInteractive); err != nil {
			t.Fatalf("RunForUser #%d: %v", i+1, err)
		}
	}
	if len(fetcher.scraped) != 1 {
		t.Fatalf("scraped %d times, want 1 (second run throttled)", len(fetcher.scraped))
	}
}

func TestRunMarkupChangeStillStampsArtist(t *testing.T) {
	fetcher := &stubFetcher{
		history:   map[string]lastfm.History{"alice_fm": playsToday("Mogwai", 3)},
		eventsErr: map[string]error{"Mogwai": lastfm.ErrMarkupChanged},
	}
	svc, store := newTestService(t, fetcher)
	seedTrackedUser(t, store, 1, "alice_fm")
	ctx := context.Background()

	if _, err := svc.RunForUser(ctx, 1, KindInteractive); err != nil {
		t.Fatalf("RunForUser: %v", err)
	}
	ok, err := store.ShouldRescan(ctx, 1, "Mogwai")
	if err != nil {
		t.Fatalf("ShouldRescan: %v", err)
	}
	if ok {
		t.Fatal("failed scrape must still throttle the next attempt")
	}
	n, err := store.CountEvents(ctx)
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if n != 0 {
		t.Fatalf("got %d events, want none stored on markup mismatch", n)
	}
}

func TestRunPrivateAccountDiagnostic(t *testing.T) {
	fetcher := &stubFetcher{
		historyErr: map[string]error{"alice_fm": lastfm.ErrPrivate},
	}
	svc, store := newTestService(t, fetcher)
	seedTrackedUser(t, store, 1, "alice_fm")

	text, err := svc.RunForUser(context.Background(), 1, KindInteractive)
	if err != nil {
		t.Fatalf("RunForUser: %v", err)
	}
	if !strings.Contains(text, "private") {
		t.Fatalf("expected a privacy hint, got:\n%s", text)
	}
	if len(fetcher.scraped) != 0 {
		t.Fatalf("scraped %v for a failing account", fetcher.scraped)
	}
}

func TestRunQuietEmptySuppressesEmptySegments(t *testing.T) {
	fetcher := &stubFetcher{
		history: map[string]lastfm.History{"alice_fm": playsToday("Mogwai", 1)},
	}
	svc, store := newTestService(t, fetcher)
	seedTrackedUser(t, store, 1, "alice_fm")
	ctx := context.Background()
	if err := store.SaveSettings(ctx, storage.Settings{UserID: 1, MinListens: 2, QuietEmpty: true}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	text, err := svc.RunForUser(ctx, 1, KindInteractive)
	if err != nil {
		t.Fatalf("RunForUser: %v", err)
	}
	if text != "" {
		t.Fatalf("got %q, want empty output in quiet mode", text)
	}
}

func TestFromMoment(t *testing.T) {
	svc, store := newTestService(t, &stubFetcher{})
	seedTrackedUser(t, store, 1, "alice_fm")
	ctx := context.Background()

	// No stored history: the fixed lookback applies.
	from, err := svc.fromMoment(ctx, 1, "alice_fm")
	if err != nil {
		t.Fatalf("fromMoment: %v", err)
	}
	want := midnightUTC(time.Now().UTC().Add(-96 * time.Hour))
	if !from.Equal(want) {
		t.Fatalf("from = %v, want lookback %v", from, want)
	}

	// Fresh history: resume the day after the last stored play count.
	today := time.Now().UTC().Format("2006-01-02")
	err = store.MergeScrobble(ctx, storage.Scrobble{
		UserID: 1, LFM: "alice_fm", Artist: "Mogwai", Day: today, Count: 2})
	if err != nil {
		t.Fatalf("MergeScrobble: %v", err)
	}
	from, err = svc.fromMoment(ctx, 1, "alice_fm")
	if err != nil {
		t.Fatalf("fromMoment: %v", err)
	}
	want = midnightUTC(time.Now().UTC()).AddDate(0, 0, 1)
	if !from.Equal(want) {
		t.Fatalf("from = %v, want day after last scrobble %v", from, want)
	}
}

func TestDetailForShorthand(t *testing.T) {
	fetcher := &stubFetcher{
		history: map[string]lastfm.History{"alice_fm": playsToday("Mogwai", 3)},
		events: map[string][]storage.Event{"Mogwai": {
			concertFor("Mogwai", 5),
			{
				Date:   time.Now().UTC().AddDate(0, 0, 8).Format("2006-01-02"),
				Venue:  "Roxy", Locality: "Prague", Country: "Czech Republic",
				Source: "lastfm", Link: "https://example.org/Mogwai", Lineup: []string{"Mogwai"},
			},
		}},
	}
	svc, _ := newTestService(t, fetcher)
	seedTrackedUser(t, svc.store, 1, "alice_fm")
	ctx := context.Background()

	if _, err := svc.RunForUser(ctx, 1, KindInteractive); err != nil {
		t.Fatalf("RunForUser: %v", err)
	}

	text, found, err := svc.DetailForShorthand(ctx, 1, 1)
	if err != nil {
		t.Fatalf("DetailForShorthand: %v", err)
	}
	if !found {
		t.Fatal("shorthand 1 should resolve after the run")
	}
	for _, want := range []string{"Mogwai", "In Germany", "In Czech Republic", "Funkhaus", "Roxy"} {
		if !strings.Contains(text, want) {
			t.Fatalf("detail missing %q:\n%s", want, text)
		}
	}

	_, found, err = svc.DetailForShorthand(ctx, 1, 42)
	if err != nil {
		t.Fatalf("DetailForShorthand: %v", err)
	}
	if found {
		t.Fatal("unassigned shorthand must not resolve")
	}
}

func TestRescanHonorsRunBudget(t *testing.T) {
	day := time.Now().UTC().Format("2006-01-02")
	hist := lastfm.History{}
	for _, artist := range []string{"A", "B", "C", "D", "E"} {
		hist[artist] = map[string]int{day: 3}
	}
	fetcher := &stubFetcher{
		history:    map[string]lastfm.History{"alice_fm": hist},
		scrapeHold: 30 * time.Millisecond,
	}
	svc, _ := newTestService(t, fetcher)
	seedTrackedUser(t, svc.store, 1, "alice_fm")

	if _, err := svc.RunForUser(context.Background(), 1, KindInteractive); err != nil {
		t.Fatalf("RunForUser: %v", err)
	}
	if len(fetcher.scraped) != 5 {
		t.Fatalf("scraped %d artists, want all 5", len(fetcher.scraped))
	}
	if fetcher.maxInFlight > 2 {
		t.Fatalf("%d scrapes in flight, budget is 2", fetcher.maxInFlight)
	}
	if fetcher.maxInFlight < 2 {
		t.Fatalf("max in flight %d, the budget should be used in full", fetcher.maxInFlight)
	}
}

// meetFetcher blocks each history fetch until a second fetch has arrived,
// so the test deadlocks into the timeout unless two runs overlap.
type meetFetcher struct {
	mu      sync.Mutex
	arrived int
	both    chan struct{}
	met     bool
}

func (f *meetFetcher) RecentTracks(_ context.Context, _ string, _ time.Time) (lastfm.History, error) {
	f.mu.Lock()
	f.arrived++
	if f.arrived == 2 {
		close(f.both)
	}
	f.mu.Unlock()
	select {
	case <-f.both:
		f.mu.Lock()
		f.met = true
		f.mu.Unlock()
	case <-time.After(2 * time.Second):
	}
	return lastfm.History{}, nil
}

func (f *meetFetcher) ArtistEvents(_ context.Context, _ string) ([]storage.Event, error) {
	return nil, nil
}

func TestRunsForDifferentUsersOverlap(t *testing.T) {
	fetcher := &meetFetcher{both: make(chan struct{})}
	svc, store := newTestService(t, fetcher)
	seedTrackedUser(t, store, 1, "alice_fm")
	seedTrackedUser(t, store, 2, "bob_fm")

	var wg sync.WaitGroup
	for _, userID := range []int64{1, 2} {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			if _, err := svc.RunForUser(context.Background(), userID, KindInteractive); err != nil {
				t.Errorf("RunForUser(%d): %v", userID, err)
			}
		}(userID)
	}
	wg.Wait()

	if !fetcher.met {
		t.Fatal("the two users' runs never overlapped")
	}
}

func TestFormatShorthand(t *testing.T) {
	tests := []struct {
		n, max int
		want   string
	}{
		{1, 99, "/01"},
		{42, 99, "/42"},
		{7, 999, "/007"},
	}
	for _, tt := range tests {
		if got := formatShorthand(tt.n, tt.max); got != tt.want {
			t.Fatalf("formatShorthand(%d, %d) = %q, want %q", tt.n, tt.max, got, tt.want)
		}
	}
}
