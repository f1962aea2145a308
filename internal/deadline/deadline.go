// Package deadline holds the deadline model shared by the reminder engine,
// the digest jobs and the delivery sink, plus the records API adapter.
package deadline

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// Deadline is one record from the deadline source. Identity is ID.
type Deadline struct {
	ID      int64
	Name    string
	Subject string
	Due     time.Time
	Comment string
	Link    string
	// ChatID is the target chat; 0 means the configured default chat.
	ChatID int64
}

// Batch is a group of deadlines bound for one chat under one title.
type Batch struct {
	ChatID    int64
	Title     string
	Deadlines []Deadline
}

// Source yields the current deadline set.
type Source interface {
	FetchDeadlines(ctx context.Context) ([]Deadline, error)
}

// SourceUnavailableError wraps a failure to reach or read the records API.
type SourceUnavailableError struct {
	Op  string
	Err error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("deadline source unavailable (%s): %v", e.Op, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// SortByDue orders ds in place by due time, ties broken by ID.
func SortByDue(ds []Deadline) {
	slices.SortStableFunc(ds, func(a, b Deadline) int {
		if c := a.Due.Compare(b.Due); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// Active returns the deadlines due strictly after now, sorted by due time.
func Active(ds []Deadline, now time.Time) []Deadline {
	out := make([]Deadline, 0, len(ds))
	for _, d := range ds {
		if d.Due.After(now) {
			out = append(out, d)
		}
	}
	SortByDue(out)
	return out
}

// GroupByChat splits ds into one batch per resolved chat, chats ascending.
// Deadlines without a chat go to defaultChat. Each batch is sorted by due time.
func GroupByChat(ds []Deadline, defaultChat int64, title string) []Batch {
	if len(ds) == 0 {
		return nil
	}
	byChat := make(map[int64][]Deadline)
	for _, d := range ds {
		chat := d.ChatID
		if chat == 0 {
			chat = defaultChat
		}
		byChat[chat] = append(byChat[chat], d)
	}
	chats := make([]int64, 0, len(byChat))
	for c := range byChat {
		chats = append(chats, c)
	}
	slices.Sort(chats)

	out := make([]Batch, 0, len(chats))
	for _, c := range chats {
		items := byChat[c]
		SortByDue(items)
		out = append(out, Batch{ChatID: c, Title: title, Deadlines: items})
	}
	return out
}
