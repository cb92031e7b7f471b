package storage

import "context"

// SaveScheduleEntry records (or re-records) the user's delivery channel in
// the scheduler roster.
func (s *Store) SaveScheduleEntry(ctx context.Context, e ScheduleEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedule_entries (user_id, chat_id) VALUES (?,?)
		 ON CONFLICT(user_id) DO UPDATE SET chat_id = excluded.chat_id`,
		e.UserID, e.ChatID,
	)
	return err
}

// DeleteScheduleEntry drops the user from the roster.
func (s *Store) DeleteScheduleEntry(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM schedule_entries WHERE user_id = ?`, userID)
	return err
}

// ScheduleEntries returns the full roster; the scheduler re-arms one trigger
// per entry on boot.
func (s *Store) ScheduleEntries(ctx context.Context) ([]ScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, chat_id FROM schedule_entries ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScheduleEntry
	for rows.Next() {
		var e ScheduleEntry
		if err := rows.Scan(&e.UserID, &e.ChatID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
