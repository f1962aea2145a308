package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

type Config struct {
	// Location for cron evaluation; nil means time.Local.
	Location    *time.Location
	HistorySize int
}

// runState guards a job against overlapping runs.
type runState struct {
	running atomic.Bool
}

func (r *runState) tryAcquire() bool { return r.running.CompareAndSwap(false, true) }
func (r *runState) release()         { r.running.Store(false) }

type scheduleDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	state   *runState
	skipped atomic.Uint64
}

type ScheduleInfo struct {
	Name    string        `json:"name"`
	Spec    string        `json:"spec"`
	Timeout time.Duration `json:"timeout"`
	Next    time.Time     `json:"next"`
	Prev    time.Time     `json:"prev"`
	Running bool          `json:"running"`
	Skipped uint64        `json:"skipped"`
}

// HistoryItem is one finished run.
type HistoryItem struct {
	Name     string        `json:"name"`
	RunID    string        `json:"run_id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

type Snapshot struct {
	Running   bool           `json:"running"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
	History   []HistoryItem  `json:"history"`
}
