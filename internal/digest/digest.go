// Package digest builds the daily and weekly deadline summaries.
// Digests never touch reminder state; the same inputs give the same batches.
package digest

import (
	"time"

	"remindbot/internal/deadline"
)

const (
	TodayTitle    = "‼️ Today's deadlines:"
	NextWeekTitle = "‼️ Next week's deadlines:"

	// WeekHorizon reaches past Sunday evening into Monday morning.
	WeekHorizon = 7*24*time.Hour + 4*time.Hour
)

type Config struct {
	DefaultChatID int64
	// Location decides calendar dates; nil means UTC.
	Location *time.Location
}

type Builder struct {
	cfg Config
}

func New(cfg Config) *Builder {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Builder{cfg: cfg}
}

// Today keeps active deadlines that fall on now's calendar date.
func (b *Builder) Today(ds []deadline.Deadline, now time.Time) []deadline.Batch {
	return deadline.GroupByChat(b.TodayList(ds, now), b.cfg.DefaultChatID, TodayTitle)
}

// NextWeek keeps active deadlines due before now + WeekHorizon.
func (b *Builder) NextWeek(ds []deadline.Deadline, now time.Time) []deadline.Batch {
	return deadline.GroupByChat(b.NextWeekList(ds, now), b.cfg.DefaultChatID, NextWeekTitle)
}

func (b *Builder) TodayList(ds []deadline.Deadline, now time.Time) []deadline.Deadline {
	local := now.In(b.cfg.Location)
	y, m, d := local.Date()
	var out []deadline.Deadline
	for _, dl := range deadline.Active(ds, now) {
		dy, dm, dd := dl.Due.In(b.cfg.Location).Date()
		if dy == y && dm == m && dd == d {
			out = append(out, dl)
		}
	}
	return out
}

func (b *Builder) NextWeekList(ds []deadline.Deadline, now time.Time) []deadline.Deadline {
	horizon := now.Add(WeekHorizon)
	var out []deadline.Deadline
	for _, dl := range deadline.Active(ds, now) {
		if dl.Due.Before(horizon) {
			out = append(out, dl)
		}
	}
	return out
}

// ForChat narrows batches to one chat, used by on-demand commands.
func ForChat(bs []deadline.Batch, chatID int64) []deadline.Deadline {
	for _, b := range bs {
		if b.ChatID == chatID {
			return b.Deadlines
		}
	}
	return nil
}
