package store

import (
	"context"
	"fmt"
	"time"
)

// Append inserts one sample for windowID with CapturedAt assigned at
// insertion time. Samples carry no uniqueness constraint: a window may
// accumulate arbitrarily many over its life.
func (s *Store) Append(ctx context.Context, windowID int64, stats Stats) (Sample, error) {
	if stats.Likes < 0 || stats.Comments < 0 || stats.Reposts < 0 || stats.Views < 0 {
		return Sample{}, fmt.Errorf("%w: %+v", ErrNegativeCounter, stats)
	}

	capturedAt := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO samples (window_id, likes, comments, reposts, views, captured_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		windowID, stats.Likes, stats.Comments, stats.Reposts, stats.Views,
		formatTime(capturedAt),
	)
	if err != nil {
		return Sample{}, fmt.Errorf("store: append sample for window %d: %w", windowID, wrapBusy(err))
	}

	return Sample{WindowID: windowID, Stats: stats, CapturedAt: capturedAt}, nil
}

// ListByWindow returns all samples for windowID ascending by captured_at.
func (s *Store) ListByWindow(ctx context.Context, windowID int64) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT window_id, likes, comments, reposts, views, captured_at
		FROM samples
		WHERE window_id = ?
		ORDER BY captured_at ASC`,
		windowID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list samples for window %d: %w", windowID, wrapBusy(err))
	}
	defer func() { _ = rows.Close() }()

	var samples []Sample
	for rows.Next() {
		var (
			smp   Sample
			atStr string
		)
		if err := rows.Scan(&smp.WindowID, &smp.Stats.Likes, &smp.Stats.Comments,
			&smp.Stats.Reposts, &smp.Stats.Views, &atStr); err != nil {
			return nil, fmt.Errorf("store: scan sample: %w", err)
		}
		if smp.CapturedAt, err = parseTime(atStr); err != nil {
			return nil, fmt.Errorf("store: parse captured_at: %w", err)
		}
		samples = append(samples, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list samples rows: %w", err)
	}
	return samples, nil
}

// HasRecent reports whether windowID has any sample captured within the
// last `since`.
func (s *Store) HasRecent(ctx context.Context, windowID int64, since time.Duration) (bool, error) {
	cutoff := s.now().UTC().Add(-since)

	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM samples
			WHERE window_id = ? AND captured_at > ?
		)`,
		windowID, formatTime(cutoff),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: check recent sample for window %d: %w", windowID, wrapBusy(err))
	}
	return exists == 1, nil
}
