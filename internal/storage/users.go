package storage

import (
	"context"
	"database/sql"
	"time"
)

// SaveUser registers a user if unknown and seeds default settings. Calling
// it again for a known user is a no-op.
func (s *Store) SaveUser(ctx context.Context, u User) error {
	if u.Locale == "" {
		u.Locale = "en"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (user_id, username, first_name, locale, reg_datetime)
		 VALUES (?,?,?,?,?)`,
		u.ID, u.Username, u.FirstName, u.Locale, time.Now().UTC().Format(sqlDatetimeFormat),
	)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (user_id, min_listens) VALUES (?,?)`,
		u.ID, s.cfg.DefaultMinListens,
	)
	return err
}

// AddAccount tracks a listening account for the user. It reports false when
// the account was already tracked, and ErrAccountLimit when the per-user
// bound is hit.
func (s *Store) AddAccount(ctx context.Context, userID int64, lfm string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return false, err
	}
	if n >= s.cfg.MaxAccounts {
		return false, ErrAccountLimit
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO accounts (user_id, lfm) VALUES (?,?)`, userID, lfm)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RemoveAccount drops a tracked account together with its scrobbles and the
// sent/shorthand rows that only made sense while it was tracked. It reports
// how many tracked accounts the user has left.
func (s *Store) RemoveAccount(ctx context.Context, userID int64, lfm string) (remaining int, err error) {
	queries := []string{
		`DELETE FROM sent_notifications
		 WHERE user_id = ?1 AND art_name IN
		   (SELECT art_name FROM scrobbles WHERE user_id = ?1 AND lfm = ?2)`,
		`DELETE FROM shorthands
		 WHERE user_id = ?1 AND art_name IN
		   (SELECT art_name FROM scrobbles WHERE user_id = ?1 AND lfm = ?2)`,
		`DELETE FROM scrobbles WHERE user_id = ?1 AND lfm = ?2`,
		`DELETE FROM accounts WHERE user_id = ?1 AND lfm = ?2`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q, userID, lfm); err != nil {
			return 0, err
		}
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE user_id = ?`, userID).Scan(&remaining)
	return remaining, err
}

// Accounts lists the user's tracked accounts in insertion order.
func (s *Store) Accounts(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lfm FROM accounts WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var lfm string
		if err := rows.Scan(&lfm); err != nil {
			return nil, err
		}
		out = append(out, lfm)
	}
	return out, rows.Err()
}

// Settings returns the user's settings, or defaults when none are stored.
func (s *Store) Settings(ctx context.Context, userID int64) (Settings, error) {
	set := Settings{UserID: userID, MinListens: s.cfg.DefaultMinListens}
	var quiet int
	err := s.db.QueryRowContext(ctx,
		`SELECT min_listens, quiet_empty FROM settings WHERE user_id = ?`, userID).
		Scan(&set.MinListens, &quiet)
	if err == sql.ErrNoRows {
		return set, nil
	}
	if err != nil {
		return set, err
	}
	set.QuietEmpty = quiet != 0
	return set, nil
}

// SaveSettings overwrites the user's settings.
func (s *Store) SaveSettings(ctx context.Context, set Settings) error {
	quiet := 0
	if set.QuietEmpty {
		quiet = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (user_id, min_listens, quiet_empty)
		 VALUES (?,?,?)`,
		set.UserID, set.MinListens, quiet,
	)
	return err
}

// DeleteUser removes the user and, through foreign keys, their accounts,
// settings and schedule entry. Per-account data is removed explicitly.
func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	accs, err := s.Accounts(ctx, userID)
	if err != nil {
		return err
	}
	for _, lfm := range accs {
		if _, err := s.RemoveAccount(ctx, userID, lfm); err != nil {
			return err
		}
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, userID)
	return err
}
