package lastfm

import "errors"

// Typed fetch-failure codes. Callers translate these to user-facing text at
// the orchestration boundary; transport internals never leak past this
// package.
var (
	// ErrPrivate: the account hides its listening history (HTTP 403).
	ErrPrivate = errors.New("lastfm: account is private")

	// ErrNotFound: no such account or artist page (HTTP 404).
	ErrNotFound = errors.New("lastfm: not found")

	// ErrBadStatus: the API answered but reported a non-ok status.
	ErrBadStatus = errors.New("lastfm: bad api status")

	// ErrTransport: any other network-level failure.
	ErrTransport = errors.New("lastfm: transport failure")

	// ErrMarkupChanged: the event page loaded but its markup no longer
	// matches the expected structure. Distinct from a legitimate zero-event
	// page so a provider change shows up in telemetry instead of silently
	// yielding nothing.
	ErrMarkupChanged = errors.New("lastfm: event page markup changed")
)
