package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
)

// Busy-class SQLite result codes. Returned when the write lock could not be
// acquired within busy_timeout.
const (
	codeBusy   = 5
	codeLocked = 6
)

// wrapBusy converts lock-wait timeouts into ErrBusy so callers can map them
// to a request-level failure without string matching.
func wrapBusy(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && (se.Code() == codeBusy || se.Code() == codeLocked) {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return err
}

// GetOrCreate returns the window currently containing "now" for postID,
// creating one spanning [now, now+period] when none exists. With extend set,
// an existing window's end is pushed to now+period.
//
// The read-then-write sequence runs in one immediate-mode transaction:
// concurrent callers for the same postID serialize on SQLite's write lock,
// so exactly one window satisfies time-containment at any instant. The
// transaction never spans a network call.
func (s *Store) GetOrCreate(ctx context.Context, postID string, extend bool, period time.Duration) (Window, error) {
	if period <= 0 {
		return Window{}, fmt.Errorf("store: non-positive window period %s", period)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Window{}, fmt.Errorf("store: begin get-or-create: %w", wrapBusy(err))
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	nowStr := formatTime(now)

	var (
		w        Window
		startStr string
		endStr   string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, post_id, window_start, window_end
		FROM windows
		WHERE post_id = ? AND window_start <= ? AND window_end >= ?
		ORDER BY id DESC
		LIMIT 1`,
		postID, nowStr, nowStr,
	).Scan(&w.ID, &w.PostID, &startStr, &endStr)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No open window: create one. Closed windows for the same post
		// are left untouched for history.
		end := now.Add(period)
		res, err := tx.ExecContext(ctx, `
			INSERT INTO windows (post_id, window_start, window_end)
			VALUES (?, ?, ?)`,
			postID, nowStr, formatTime(end),
		)
		if err != nil {
			return Window{}, fmt.Errorf("store: insert window: %w", wrapBusy(err))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return Window{}, fmt.Errorf("store: window insert id: %w", err)
		}
		w = Window{ID: id, PostID: postID, WindowStart: now, WindowEnd: end}

	case err != nil:
		return Window{}, fmt.Errorf("store: find open window: %w", wrapBusy(err))

	default:
		if w.WindowStart, err = parseTime(startStr); err != nil {
			return Window{}, fmt.Errorf("store: parse window_start: %w", err)
		}
		if w.WindowEnd, err = parseTime(endStr); err != nil {
			return Window{}, fmt.Errorf("store: parse window_end: %w", err)
		}
		if extend {
			end := now.Add(period)
			if _, err := tx.ExecContext(ctx, `
				UPDATE windows SET window_end = ? WHERE id = ?`,
				formatTime(end), w.ID,
			); err != nil {
				return Window{}, fmt.Errorf("store: extend window %d: %w", w.ID, wrapBusy(err))
			}
			w.WindowEnd = end
		}
	}

	if err := tx.Commit(); err != nil {
		return Window{}, fmt.Errorf("store: commit get-or-create: %w", wrapBusy(err))
	}
	return w, nil
}

// Get returns the window with the given id, or ErrWindowNotFound.
func (s *Store) Get(ctx context.Context, windowID int64) (Window, error) {
	var (
		w        Window
		startStr string
		endStr   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, post_id, window_start, window_end
		FROM windows
		WHERE id = ?`,
		windowID,
	).Scan(&w.ID, &w.PostID, &startStr, &endStr)
	if errors.Is(err, sql.ErrNoRows) {
		return Window{}, ErrWindowNotFound
	}
	if err != nil {
		return Window{}, fmt.Errorf("store: get window %d: %w", windowID, wrapBusy(err))
	}

	if w.WindowStart, err = parseTime(startStr); err != nil {
		return Window{}, fmt.Errorf("store: parse window_start: %w", err)
	}
	if w.WindowEnd, err = parseTime(endStr); err != nil {
		return Window{}, fmt.Errorf("store: parse window_end: %w", err)
	}
	return w, nil
}

// IsExpired reports whether the window's end has passed. A window that no
// longer exists counts as expired: polling a dangling reference must stop
// rather than run forever.
func (s *Store) IsExpired(ctx context.Context, windowID int64) (bool, error) {
	var endStr string
	err := s.db.QueryRowContext(ctx,
		"SELECT window_end FROM windows WHERE id = ?", windowID,
	).Scan(&endStr)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: check expiry of window %d: %w", windowID, wrapBusy(err))
	}

	end, err := parseTime(endStr)
	if err != nil {
		return false, fmt.Errorf("store: parse window_end: %w", err)
	}
	return s.now().UTC().After(end), nil
}

// ListOpen returns all windows whose end lies in the future, ordered by id.
// Used by the reconciler to rebuild the job set after a restart.
func (s *Store) ListOpen(ctx context.Context) ([]Window, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, post_id, window_start, window_end
		FROM windows
		WHERE window_end > ?
		ORDER BY id ASC`,
		formatTime(s.now()),
	)
	if err != nil {
		return nil, fmt.Errorf("store: list open windows: %w", wrapBusy(err))
	}
	defer func() { _ = rows.Close() }()

	var windows []Window
	for rows.Next() {
		var (
			w        Window
			startStr string
			endStr   string
		)
		if err := rows.Scan(&w.ID, &w.PostID, &startStr, &endStr); err != nil {
			return nil, fmt.Errorf("store: scan window: %w", err)
		}
		if w.WindowStart, err = parseTime(startStr); err != nil {
			return nil, fmt.Errorf("store: parse window_start: %w", err)
		}
		if w.WindowEnd, err = parseTime(endStr); err != nil {
			return nil, fmt.Errorf("store: parse window_end: %w", err)
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list open windows rows: %w", err)
	}
	return windows, nil
}
