// Package store persists observation windows and their metric samples in
// SQLite. Window creation and extension run inside immediate-mode
// transactions so racing callers serialize through the database's own write
// lock rather than through an in-process mutex.
package store

import (
	"errors"
	"time"
)

// Sentinel errors for store operations.
var (
	// ErrWindowNotFound is returned when a window id does not exist.
	ErrWindowNotFound = errors.New("store: window not found")

	// ErrBusy is returned when the database write lock could not be
	// acquired within the busy timeout. Callers decide whether to retry.
	ErrBusy = errors.New("store: database busy")

	// ErrNegativeCounter is returned when a sample carries a counter
	// below zero.
	ErrNegativeCounter = errors.New("store: negative counter value")
)

// Window is one observation period for a single VK post. WindowStart never
// changes after creation; WindowEnd only moves forward, via extension.
type Window struct {
	ID          int64
	PostID      string
	WindowStart time.Time
	WindowEnd   time.Time
}

// Contains reports whether t falls inside the window's interval.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.WindowStart) && !t.After(w.WindowEnd)
}

// Stats is the fixed set of engagement counters sampled from a post.
type Stats struct {
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	Reposts  int64 `json:"reposts"`
	Views    int64 `json:"views"`
}

// IsZero reports whether every counter is zero. The gateway treats an
// all-zero result as "post not found" when deciding whether to open a
// window; once a window is polling, an all-zero sample is a valid
// observation and is stored unmodified.
func (s Stats) IsZero() bool {
	return s.Likes == 0 && s.Comments == 0 && s.Reposts == 0 && s.Views == 0
}

// Sample is one timestamped metrics snapshot belonging to a window.
// Samples are append-only and never mutated.
type Sample struct {
	WindowID   int64
	Stats      Stats
	CapturedAt time.Time
}

// timeLayout is a fixed-width RFC 3339 variant (nanoseconds always padded
// to nine digits, UTC only). Fixed width keeps lexicographic order of the
// stored TEXT values identical to chronological order, so SQL range
// comparisons against timestamps are safe.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
