package store

import (
	"context"
	"errors"
	"time"
)

// MinInterval keeps recurring schedules from flooding the browser.
const MinInterval = 60 * time.Second

var ErrIntervalTooShort = errors.New("interval must be 0 (run once) or at least 60s")

// AddSchedule stores command for chatID. It becomes due immediately.
func (h *HistoryStore) AddSchedule(ctx context.Context, chatID, command string, interval time.Duration) (int64, error) {
	if interval != 0 && interval < MinInterval {
		return 0, ErrIntervalTooShort
	}
	res, err := h.DB.ExecContext(ctx,
		`INSERT INTO schedules (chat_id, command, interval_seconds, last_run) VALUES (?, ?, ?, 0)`,
		chatID, command, int64(interval/time.Second))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DueSchedules returns active schedules whose interval has elapsed at now.
func (h *HistoryStore) DueSchedules(ctx context.Context, now time.Time) ([]Schedule, error) {
	return h.querySchedules(ctx,
		`SELECT id, chat_id, command, interval_seconds, last_run, status FROM schedules
		 WHERE status = 'active' AND last_run + interval_seconds <= ? ORDER BY id`,
		now.Unix())
}

// ListSchedules returns the schedules of chatID, or of every chat when chatID is empty.
func (h *HistoryStore) ListSchedules(ctx context.Context, chatID string) ([]Schedule, error) {
	return h.querySchedules(ctx,
		`SELECT id, chat_id, command, interval_seconds, last_run, status FROM schedules
		 WHERE (? = '' OR chat_id = ?) ORDER BY id`,
		chatID, chatID)
}

func (h *HistoryStore) querySchedules(ctx context.Context, query string, args ...any) ([]Schedule, error) {
	rows, err := h.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		var s Schedule
		var interval, lastRun int64
		if err := rows.Scan(&s.ID, &s.ChatID, &s.Command, &interval, &lastRun, &s.Status); err != nil {
			return nil, err
		}
		s.Interval = time.Duration(interval) * time.Second
		if lastRun > 0 {
			s.LastRun = time.Unix(lastRun, 0)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkScheduleRun records that id ran at now.
func (h *HistoryStore) MarkScheduleRun(ctx context.Context, id int64, now time.Time) error {
	_, err := h.DB.ExecContext(ctx, `UPDATE schedules SET last_run = ? WHERE id = ?`, now.Unix(), id)
	return err
}

// DeleteSchedule removes one schedule. An empty chatID matches any chat.
// It reports whether a row was deleted.
func (h *HistoryStore) DeleteSchedule(ctx context.Context, chatID string, id int64) (bool, error) {
	res, err := h.DB.ExecContext(ctx, `DELETE FROM schedules WHERE id = ? AND (? = '' OR chat_id = ?)`, id, chatID, chatID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ClearSchedules removes every schedule of chatID.
func (h *HistoryStore) ClearSchedules(ctx context.Context, chatID string) error {
	_, err := h.DB.ExecContext(ctx, `DELETE FROM schedules WHERE chat_id = ?`, chatID)
	return err
}
