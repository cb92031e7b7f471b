package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NextShorthand advances the user's shorthand counter and assigns the slot
// to the artist. The counter is strictly increasing until ShorthandMax, then
// the next allocation wraps to 1 (never 0); the wrapped-to slot is
// overwritten, which is the only reclamation mechanism.
func (s *Store) NextShorthand(ctx context.Context, userID int64, artist string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var last int
	err = tx.QueryRowContext(ctx,
		`SELECT last FROM shorthand_counters WHERE user_id = ?`, userID).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	next := last + 1
	if next > s.cfg.ShorthandMax {
		next = 1
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO shorthand_counters (user_id, last) VALUES (?,?)
		 ON CONFLICT(user_id) DO UPDATE SET last = excluded.last`,
		userID, next); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO shorthands (user_id, shorthand, art_name, assigned_date)
		 VALUES (?,?,?,?)`,
		userID, next, artist, Day(time.Now())); err != nil {
		return 0, err
	}
	return next, tx.Commit()
}

// EventsByShorthand resolves a short code to the full event detail rows for
// the artist it was assigned to: events dated no earlier than the assignment
// date, ordered by date. An unknown code yields an empty slice.
func (s *Store) EventsByShorthand(ctx context.Context, userID int64, shorthand int) ([]EventDetail, error) {
	const q = `
	SELECT sh.art_name, e.event_date, e.venue, e.locality, e.country, e.link
	FROM shorthands sh
	JOIN lineups l ON l.art_name = sh.art_name
	JOIN events e ON e.event_id = l.event_id
	WHERE sh.user_id = ? AND sh.shorthand = ?
	  AND e.event_date >= sh.assigned_date
	ORDER BY e.country, e.event_date`
	rows, err := s.db.QueryContext(ctx, q, userID, shorthand)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EventDetail
	for rows.Next() {
		var d EventDetail
		if err := rows.Scan(&d.Artist, &d.Date, &d.Venue, &d.Locality, &d.Country, &d.Link); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
