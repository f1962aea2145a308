package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file" (default): JSON snapshot at Path
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL reachable via DSN
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the reminder state persistence API.
type Store interface {
	// LoadReminders returns threshold id -> notified deadline ids.
	// Nothing saved yet yields an empty map.
	LoadReminders(ctx context.Context) (map[string][]int64, error)
	// SaveReminders replaces the stored state with the full snapshot.
	SaveReminders(ctx context.Context, state map[string][]int64) error
	Ping(ctx context.Context) error
	Close() error
}

// CorruptError means stored state exists but cannot be read back.
// The stored data is left in place.
type CorruptError struct {
	Where string
	Err   error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("reminder state corrupt (%s): %v", e.Where, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

type stateRow struct {
	threshold string
	deadline  int64
	seq       int
}

// rows flattens state into insertable rows, dropping repeated ids per threshold.
func rows(state map[string][]int64) []stateRow {
	var out []stateRow
	for th, ids := range state {
		seen := make(map[int64]struct{}, len(ids))
		seq := 0
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, stateRow{threshold: th, deadline: id, seq: seq})
			seq++
		}
	}
	return out
}
