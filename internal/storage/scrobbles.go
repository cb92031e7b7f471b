package storage

import (
	"context"
	"database/sql"
	"time"
)

// MergeScrobble records one per-artist per-day play count. Re-ingesting the
// same day replaces the stored count, so repeated fetches converge instead
// of accumulating.
func (s *Store) MergeScrobble(ctx context.Context, sc Scrobble) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO scrobbles (user_id, lfm, art_name, scrobble_date, scrobble_count)
		 VALUES (?,?,?,?,?)`,
		sc.UserID, sc.LFM, sc.Artist, sc.Day, sc.Count,
	)
	return err
}

// LastScrobbleDay returns the most recent stored play-count day for the
// account, or ok=false when the account has no stored history.
func (s *Store) LastScrobbleDay(ctx context.Context, userID int64, lfm string) (time.Time, bool, error) {
	var day sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(scrobble_date) FROM scrobbles WHERE user_id = ? AND lfm = ?`,
		userID, lfm).Scan(&day)
	if err != nil {
		return time.Time{}, false, err
	}
	if !day.Valid || day.String == "" {
		return time.Time{}, false, nil
	}
	t, err := time.ParseInLocation(sqlDateFormat, day.String, time.UTC)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
