package digest

import (
	"reflect"
	"testing"
	"time"

	"remindbot/internal/deadline"
)

func ids(ds []deadline.Deadline) []int64 {
	out := []int64{}
	for _, d := range ds {
		out = append(out, d.ID)
	}
	return out
}

func TestToday(t *testing.T) {
	t.Parallel()
	msk := time.FixedZone("MSK", 3*3600)
	now := time.Date(2025, 4, 7, 10, 0, 0, 0, msk)
	ds := []deadline.Deadline{
		{ID: 1, Due: time.Date(2025, 4, 7, 18, 0, 0, 0, msk)},
		{ID: 2, Due: time.Date(2025, 4, 7, 9, 0, 0, 0, msk)},       // already passed
		{ID: 3, Due: time.Date(2025, 4, 8, 0, 30, 0, 0, msk)},      // tomorrow locally
		{ID: 4, Due: time.Date(2025, 4, 7, 22, 0, 0, 0, time.UTC)}, // 01:00 next day in MSK
		{ID: 5, Due: time.Date(2025, 4, 7, 12, 0, 0, 0, msk), ChatID: 7},
	}
	b := New(Config{DefaultChatID: 1, Location: msk})

	got := b.Today(ds, now)
	if len(got) != 2 {
		t.Fatalf("batches = %d, want 2", len(got))
	}
	if got[0].ChatID != 1 || !reflect.DeepEqual(ids(got[0].Deadlines), []int64{1}) {
		t.Fatalf("default chat batch = %+v", got[0])
	}
	if got[1].ChatID != 7 || !reflect.DeepEqual(ids(got[1].Deadlines), []int64{5}) {
		t.Fatalf("chat 7 batch = %+v", got[1])
	}
	if got[0].Title != TodayTitle {
		t.Fatalf("title = %q", got[0].Title)
	}
}

func TestTodayIsIdempotent(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 4, 7, 10, 0, 0, 0, time.UTC)
	ds := []deadline.Deadline{{ID: 1, Due: now.Add(time.Hour)}, {ID: 2, Due: now.Add(2 * time.Hour)}}
	b := New(Config{DefaultChatID: 1})
	first := b.Today(ds, now)
	second := b.Today(ds, now)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("digest differs between runs: %v vs %v", first, second)
	}
}

func TestNextWeek(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 4, 6, 20, 0, 0, 0, time.UTC) // Sunday
	ds := []deadline.Deadline{
		{ID: 1, Due: now.Add(-time.Minute)},
		{ID: 2, Due: now.Add(24 * time.Hour)},
		{ID: 3, Due: now.Add(WeekHorizon - time.Minute)},
		{ID: 4, Due: now.Add(WeekHorizon)},
		{ID: 5, Due: now.Add(time.Minute)},
	}
	got := New(Config{DefaultChatID: 9}).NextWeek(ds, now)
	if len(got) != 1 {
		t.Fatalf("batches = %d, want 1", len(got))
	}
	if !reflect.DeepEqual(ids(got[0].Deadlines), []int64{5, 2, 3}) {
		t.Fatalf("ids = %v, want [5 2 3]", ids(got[0].Deadlines))
	}
	if got[0].Title != NextWeekTitle || got[0].ChatID != 9 {
		t.Fatalf("batch = %+v", got[0])
	}
}

func TestEmptyDigestHasNoBatches(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 4, 7, 10, 0, 0, 0, time.UTC)
	b := New(Config{DefaultChatID: 1})
	if got := b.Today(nil, now); len(got) != 0 {
		t.Fatalf("Today(nil) = %v", got)
	}
	if got := b.NextWeek([]deadline.Deadline{{ID: 1, Due: now.Add(-time.Hour)}}, now); len(got) != 0 {
		t.Fatalf("NextWeek(past only) = %v", got)
	}
}

func TestForChat(t *testing.T) {
	t.Parallel()
	bs := []deadline.Batch{{ChatID: 1, Deadlines: []deadline.Deadline{{ID: 1}}}, {ChatID: 2, Deadlines: []deadline.Deadline{{ID: 2}}}}
	if got := ids(ForChat(bs, 2)); !reflect.DeepEqual(got, []int64{2}) {
		t.Fatalf("ForChat = %v", got)
	}
	if got := ForChat(bs, 3); got != nil {
		t.Fatalf("ForChat(missing) = %v", got)
	}
}
