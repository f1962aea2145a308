package deadline

import (
	"strconv"
	"testing"
	"time"
)

func TestGroupByChat(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ds := []Deadline{
		{ID: 3, Due: base.Add(2 * time.Hour), ChatID: 20},
		{ID: 1, Due: base.Add(time.Hour)},
		{ID: 2, Due: base, ChatID: 20},
		{ID: 4, Due: base.Add(30 * time.Minute), ChatID: 0},
	}

	got := GroupByChat(ds, 10, "title")
	if len(got) != 2 {
		t.Fatalf("batches = %d, want 2", len(got))
	}
	if got[0].ChatID != 10 || got[1].ChatID != 20 {
		t.Fatalf("chat order = %d,%d, want 10,20", got[0].ChatID, got[1].ChatID)
	}
	if ids := idsOf(got[0].Deadlines); ids != "4,1" {
		t.Fatalf("default chat ids = %s, want 4,1", ids)
	}
	if ids := idsOf(got[1].Deadlines); ids != "2,3" {
		t.Fatalf("chat 20 ids = %s, want 2,3", ids)
	}
	if got[0].Title != "title" {
		t.Fatalf("title = %q", got[0].Title)
	}
}

func TestGroupByChatEmpty(t *testing.T) {
	t.Parallel()
	if got := GroupByChat(nil, 1, "x"); got != nil {
		t.Fatalf("GroupByChat(nil) = %v, want nil", got)
	}
}

func TestSortByDueTiesByID(t *testing.T) {
	t.Parallel()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ds := []Deadline{{ID: 9, Due: at}, {ID: 2, Due: at}, {ID: 5, Due: at.Add(-time.Minute)}}
	SortByDue(ds)
	if ids := idsOf(ds); ids != "5,2,9" {
		t.Fatalf("order = %s, want 5,2,9", ids)
	}
}

func TestActiveExcludesPastAndNow(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	ds := []Deadline{
		{ID: 1, Due: now},
		{ID: 2, Due: now.Add(-time.Second)},
		{ID: 3, Due: now.Add(time.Second)},
	}
	if ids := idsOf(Active(ds, now)); ids != "3" {
		t.Fatalf("active = %s, want 3", ids)
	}
}

func idsOf(ds []Deadline) string {
	s := ""
	for i, d := range ds {
		if i > 0 {
			s += ","
		}
		s += strconv.FormatInt(d.ID, 10)
	}
	return s
}
