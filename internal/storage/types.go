package storage

import "errors"

// ErrAccountLimit is returned when a user already tracks the configured
// maximum number of listening accounts.
var ErrAccountLimit = errors.New("storage: account limit reached")

// User is a registered bot user.
type User struct {
	ID        int64
	Username  string
	FirstName string
	Locale    string
}

// Settings are per-user notification preferences.
type Settings struct {
	UserID     int64
	MinListens int
	QuietEmpty bool
}

// Scrobble is one per-artist per-day play count for one tracked account.
type Scrobble struct {
	UserID int64
	LFM    string
	Artist string
	Day    string // "2006-01-02"
	Count  int
}

// Event is one discovered live event. Events are deduplicated by
// (Date, Venue, Locality); rediscovery extends the lineup.
type Event struct {
	Date     string // "2006-01-02"
	Venue    string
	Locality string
	Country  string
	Source   string
	Link     string
	Lineup   []string
}

// EventDetail is one row of the shorthand detail view.
type EventDetail struct {
	Artist   string
	Date     string
	Venue    string
	Locality string
	Country  string
	Link     string
}

// ScheduleEntry is one row of the scheduler roster.
type ScheduleEntry struct {
	UserID int64
	ChatID int64
}
