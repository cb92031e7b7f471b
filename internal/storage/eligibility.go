package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gigbot/pkg/logx"
)

// ShouldRescan decides whether an artist's event page is worth (re)loading:
// the global check stamp must be absent or older than the throttle window,
// and the artist must currently meet the user's listen threshold — scraping
// an artist nobody cares about is wasted work.
//
// Both eligibility decisions are recomputed from the ledger on every run;
// there is no cached "artist is hot" flag to get stuck after a crash.
func (s *Store) ShouldRescan(ctx context.Context, userID int64, artist string) (bool, error) {
	const q = `
	SELECT CASE WHEN
	    ((SELECT check_datetime FROM artist_checks WHERE art_name = :art) IS NULL
	     OR julianday('now') -
	        julianday((SELECT check_datetime FROM artist_checks WHERE art_name = :art)) > :delay)
	    AND :art IN (SELECT art_name FROM scrobbles
	                 WHERE julianday('now') - julianday(scrobble_date) <= :window
	                   AND user_id = :user
	                 GROUP BY art_name
	                 HAVING SUM(scrobble_count) >=
	                     (SELECT min_listens FROM settings WHERE user_id = :user))
	THEN 1 ELSE 0 END`
	var yes int
	err := s.db.QueryRowContext(ctx, q,
		sqlNamed("art", artist),
		sqlNamed("delay", days(s.cfg.ArtistCheckDelay)),
		sqlNamed("window", days(s.cfg.ListenWindow)),
		sqlNamed("user", userID),
	).Scan(&yes)
	return yes == 1, err
}

// ShouldNotify decides whether the user should hear about an artist: some
// future-dated event lists the artist, no sent-notification row exists for
// that (user, artist, event) triple, and the listen threshold holds.
func (s *Store) ShouldNotify(ctx context.Context, userID int64, artist string) (bool, error) {
	const q = `
	SELECT CASE WHEN
	    (SELECT COUNT(*) FROM lineups
	     JOIN events ON lineups.event_id = events.event_id
	     WHERE lineups.art_name = :art
	       AND events.event_date >= DATE('now')
	       AND events.event_id NOT IN
	           (SELECT event_id FROM sent_notifications
	            WHERE user_id = :user AND art_name = :art)
	       AND :art IN (SELECT art_name FROM scrobbles
	                    WHERE julianday('now') - julianday(scrobble_date) <= :window
	                      AND user_id = :user
	                    GROUP BY art_name
	                    HAVING SUM(scrobble_count) >=
	                        (SELECT min_listens FROM settings WHERE user_id = :user))) > 0
	THEN 1 ELSE 0 END`
	var yes int
	err := s.db.QueryRowContext(ctx, q,
		sqlNamed("art", artist),
		sqlNamed("window", days(s.cfg.ListenWindow)),
		sqlNamed("user", userID),
	).Scan(&yes)
	return yes == 1, err
}

// TouchArtistCheck stamps the artist's global check state with the current
// time. Every scrape attempt stamps, success or not, so a broken artist page
// is retried no sooner than a healthy one.
func (s *Store) TouchArtistCheck(ctx context.Context, artist string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artist_checks (art_name, check_datetime) VALUES (?,?)
		 ON CONFLICT(art_name) DO UPDATE SET check_datetime = excluded.check_datetime`,
		artist, time.Now().UTC().Format(sqlDatetimeFormat),
	)
	return err
}

// ArtistCheckedAt returns the artist's check stamp, or ok=false when the
// artist has never been checked.
func (s *Store) ArtistCheckedAt(ctx context.Context, artist string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT check_datetime FROM artist_checks WHERE art_name = ?`, artist).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.ParseInLocation(sqlDatetimeFormat, raw, time.UTC)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// MarkSent records sent-notification rows for every event that currently
// qualifies for (user, artist). The insert is set-based and filtered by the
// same conditions as ShouldNotify, so a retry after a crash inserts nothing
// new.
func (s *Store) MarkSent(ctx context.Context, userID int64, artist string) error {
	const q = `
	INSERT INTO sent_notifications (user_id, art_name, event_id, sent_datetime)
	SELECT :user, lineups.art_name, events.event_id, DATETIME('now')
	FROM lineups JOIN events ON lineups.event_id = events.event_id
	WHERE lineups.art_name = :art
	  AND events.event_date >= DATE('now')
	  AND events.event_id NOT IN
	      (SELECT event_id FROM sent_notifications
	       WHERE user_id = :user AND art_name = :art)
	  AND :art IN (SELECT art_name FROM scrobbles
	               WHERE julianday('now') - julianday(scrobble_date) <= :window
	                 AND user_id = :user
	               GROUP BY art_name
	               HAVING SUM(scrobble_count) >=
	                   (SELECT min_listens FROM settings WHERE user_id = :user))`
	_, err := s.db.ExecContext(ctx, q,
		sqlNamed("user", userID),
		sqlNamed("art", artist),
		sqlNamed("window", days(s.cfg.ListenWindow)),
	)
	if err == nil {
		s.log.Debug("sent rows recorded", logx.Int64("user", userID), logx.String("artist", artist))
	}
	return err
}
