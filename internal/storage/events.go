package storage

import (
	"context"

	"gigbot/pkg/logx"
)

// AddEvents merges discovered events into the ledger. An event already known
// by (date, venue, locality) is not duplicated; its lineup is extended with
// any artists it did not list yet.
func (s *Store) AddEvents(ctx context.Context, events []Event) error {
	const insertEvent = `
	INSERT INTO events (event_date, venue, locality, country, source, link)
	SELECT ?1, ?2, ?3, ?4, ?5, ?6
	WHERE NOT EXISTS (
	    SELECT 1 FROM events WHERE event_date = ?1 AND venue = ?2 AND locality = ?3)`
	const insertLineup = `
	INSERT OR IGNORE INTO lineups (event_id, art_name)
	VALUES ((SELECT event_id FROM events WHERE event_date = ? AND venue = ? AND locality = ?), ?)`

	for _, ev := range events {
		if _, err := s.db.ExecContext(ctx, insertEvent,
			ev.Date, ev.Venue, ev.Locality, ev.Country, ev.Source, ev.Link); err != nil {
			return err
		}
		for _, artist := range ev.Lineup {
			if _, err := s.db.ExecContext(ctx, insertLineup,
				ev.Date, ev.Venue, ev.Locality, artist); err != nil {
				return err
			}
		}
	}
	if len(events) > 0 {
		s.log.Debug("events merged", logx.Int("count", len(events)))
	}
	return nil
}

// CountEvents reports distinct stored events; used in tests and telemetry.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}
