package config

// Config is the whole bot configuration. It is read once at startup and
// never mutated afterwards.
//
// All durations are Go duration strings (e.g. "1s", "48h").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Lastfm   LastfmConfig   `json:"lastfm"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Defaults DefaultsConfig `json:"defaults"`
	Schedule ScheduleConfig `json:"schedule"`
	Throttle ThrottleConfig `json:"throttle"`
	Limits   LimitsConfig   `json:"limits"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is the long-poll timeout. Default "10s".
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LastfmConfig struct {
	APIKey string `json:"api_key"`

	// APIBase and WebBase exist so tests can point the client at a stub
	// server. Empty means the real endpoints.
	APIBase string `json:"api_base,omitempty"`
	WebBase string `json:"web_base,omitempty"`

	// Rate is the minimum spacing between outbound requests (politeness
	// delay after every page load). Default "1s".
	Rate string `json:"rate,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// DefaultsConfig holds per-user settings applied at registration.
type DefaultsConfig struct {
	// MinListens is how many plays within the listen window make an artist
	// interesting. Default 2.
	MinListens int `json:"min_listens,omitempty"`
}

type ScheduleConfig struct {
	// NoticeTime is the daily delivery time, "HH:MM" in UTC. Default "12:30".
	NoticeTime string `json:"notice_time,omitempty"`
}

type ThrottleConfig struct {
	// ArtistCheck is the minimum delay between re-scraping one artist's
	// event page. Default "48h".
	ArtistCheck string `json:"artist_check,omitempty"`

	// ListenWindow is the rolling window the listen threshold is evaluated
	// over. Default "96h".
	ListenWindow string `json:"listen_window,omitempty"`

	// InitialLookback bounds how far back scrobbles are fetched for an
	// account with no stored history. Default "96h".
	InitialLookback string `json:"initial_lookback,omitempty"`
}

type LimitsConfig struct {
	// MaxAccounts bounds tracked listening accounts per user. Default 3.
	MaxAccounts int `json:"max_accounts,omitempty"`

	// ShorthandMax bounds the per-user shorthand counter; the next
	// allocation after it wraps to 1. Default 99.
	ShorthandMax int `json:"shorthand_max,omitempty"`

	// PageCap bounds history pagination per fetch, guarding against a
	// misbehaving provider. Default 100.
	PageCap int `json:"page_cap,omitempty"`

	// InteractiveConcurrency and ScheduledConcurrency cap simultaneous
	// outbound calls for user-triggered and cron-triggered runs. Default 2
	// each.
	InteractiveConcurrency int `json:"interactive_concurrency,omitempty"`
	ScheduledConcurrency   int `json:"scheduled_concurrency,omitempty"`
}
