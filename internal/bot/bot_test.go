package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/deadline"
	"remindbot/internal/digest"
	"remindbot/internal/task/scheduler"
	"remindbot/internal/transport"
)

var now = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

type recSender struct {
	mu    sync.Mutex
	texts []string
	to    []transport.ChatTarget
}

func (s *recSender) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	s.to = append(s.to, to)
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (s *recSender) last(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.texts) == 0 {
		t.Fatal("nothing was sent")
	}
	return s.texts[len(s.texts)-1]
}

type fakeSource struct {
	ds  []deadline.Deadline
	err error
}

func (f fakeSource) FetchDeadlines(context.Context) ([]deadline.Deadline, error) { return f.ds, f.err }

type fakeState map[string][]int64

func (f fakeState) LoadReminders(context.Context) (map[string][]int64, error) { return f, nil }

type fakeJobs struct{}

func (fakeJobs) Snapshot() scheduler.Snapshot {
	return scheduler.Snapshot{Schedules: []scheduler.ScheduleInfo{{Name: "reminders", Spec: "* * * * *", Next: now.Add(time.Minute)}}}
}

func manyDeadlines(n int) []deadline.Deadline {
	out := make([]deadline.Deadline, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, deadline.Deadline{ID: int64(i), Name: "task " + strconv.Itoa(i), Subject: "Math", Due: now.Add(time.Duration(i) * time.Hour)})
	}
	return out
}

func newBot(t *testing.T, src deadline.Source, d Deps) (*Bot, *recSender) {
	t.Helper()
	sender := &recSender{}
	d.Sender = sender
	d.Source = src
	d.Digest = digest.New(digest.Config{DefaultChatID: 1})
	d.Now = func() time.Time { return now }
	b, err := New(Config{DefaultChatID: 1, CountPerPage: 2}, d)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b, sender
}

func msg(text string) transport.Message {
	return transport.Message{ChatID: 1, FromID: 7, Text: text}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		word string
		args int
		ok   bool
	}{
		{"/deadlines 2", "deadlines", 1, true},
		{"/Today@remind_bot", "today", 0, true},
		{"hello", "", 0, false},
		{"/", "", 0, false},
	}
	for _, tt := range tests {
		w, a, ok := parseCommand(tt.in)
		if w != tt.word || len(a) != tt.args || ok != tt.ok {
			t.Fatalf("parseCommand(%q) = %q %v %v", tt.in, w, a, ok)
		}
	}
}

func TestDeadlinesPagination(t *testing.T) {
	t.Parallel()
	b, sender := newBot(t, fakeSource{ds: manyDeadlines(5)}, Deps{})

	b.Handle(context.Background(), msg("/deadlines 2"))
	text := sender.last(t)
	if !strings.Contains(text, "3. <b>Math</b> - task 3") || !strings.Contains(text, "4. <b>Math</b> - task 4") {
		t.Fatalf("page 2 numbering:\n%s", text)
	}
	if strings.Contains(text, "task 5") || !strings.Contains(text, "page 2/3") || !strings.Contains(text, "next: /deadlines 3") {
		t.Fatalf("page 2 text:\n%s", text)
	}

	b.Handle(context.Background(), msg("/deadlines 9"))
	if text := sender.last(t); !strings.Contains(text, "5. <b>Math</b> - task 5") || strings.Contains(text, "next:") {
		t.Fatalf("clamped last page:\n%s", text)
	}

	b.Handle(context.Background(), msg("/deadlines zero"))
	if text := sender.last(t); !strings.HasPrefix(text, "usage:") {
		t.Fatalf("bad arg reply = %q", text)
	}
}

func TestDeadlinesOnlyForRequestingChat(t *testing.T) {
	t.Parallel()
	ds := manyDeadlines(1)
	ds = append(ds, deadline.Deadline{ID: 9, Name: "other chat", Due: now.Add(time.Hour), ChatID: 55})
	b, sender := newBot(t, fakeSource{ds: ds}, Deps{})
	b.Handle(context.Background(), msg("/deadlines"))
	if text := sender.last(t); strings.Contains(text, "other chat") {
		t.Fatalf("leaked another chat's deadline:\n%s", text)
	}
}

func TestTodayAndWeek(t *testing.T) {
	t.Parallel()
	ds := []deadline.Deadline{
		{ID: 1, Name: "soon", Due: now.Add(2 * time.Hour)},
		{ID: 2, Name: "friday", Due: now.Add(4 * 24 * time.Hour)},
	}
	b, sender := newBot(t, fakeSource{ds: ds}, Deps{})

	b.Handle(context.Background(), msg("/today"))
	text := sender.last(t)
	if !strings.Contains(text, digest.TodayTitle) || !strings.Contains(text, "soon") || strings.Contains(text, "friday") {
		t.Fatalf("/today:\n%s", text)
	}

	b.Handle(context.Background(), msg("/week"))
	if text := sender.last(t); !strings.Contains(text, "friday") || !strings.Contains(text, "soon") {
		t.Fatalf("/week:\n%s", text)
	}
}

func TestSourceDownReplies(t *testing.T) {
	t.Parallel()
	b, sender := newBot(t, fakeSource{err: &deadline.SourceUnavailableError{Op: "fetch", Err: errors.New("503")}}, Deps{})
	b.Handle(context.Background(), msg("/today"))
	if len(sender.texts) != 2 || !strings.Contains(sender.texts[0], "unavailable") {
		t.Fatalf("replies = %q", sender.texts)
	}
}

func TestStatusAndHelp(t *testing.T) {
	t.Parallel()
	b, sender := newBot(t, fakeSource{}, Deps{
		State:      fakeState{"0_minute": {1, 2}, "1_hour": {1, 2, 3}},
		Thresholds: []string{"0_minute", "1_hour"},
		Jobs:       fakeJobs{},
	})
	b.Handle(context.Background(), msg("/status"))
	text := sender.last(t)
	for _, want := range []string{"<code>0_minute</code>: 2 notified", "<code>1_hour</code>: 3 notified", "reminders (* * * * *) next 03.03 09:01"} {
		if !strings.Contains(text, want) {
			t.Fatalf("/status missing %q:\n%s", want, text)
		}
	}

	b.Handle(context.Background(), msg("/help"))
	if text := sender.last(t); !strings.Contains(text, "<code>/deadlines [page]</code>") {
		t.Fatalf("/help:\n%s", text)
	}
	if len(b.Menu()) != 6 {
		t.Fatalf("menu = %+v", b.Menu())
	}
}

func TestUnknownCommandAndPlainText(t *testing.T) {
	t.Parallel()
	b, sender := newBot(t, fakeSource{}, Deps{})
	b.Handle(context.Background(), msg("just chatting"))
	if len(sender.texts) != 0 {
		t.Fatal("plain text must be ignored")
	}
	b.Handle(context.Background(), msg("/nope"))
	if text := sender.last(t); !strings.Contains(text, "/help") {
		t.Fatalf("unknown reply = %q", text)
	}
}

func TestDispatchLoop(t *testing.T) {
	t.Parallel()
	b, sender := newBot(t, fakeSource{}, Deps{})
	in := make(chan transport.Message, 2)
	in <- msg("/help")
	in <- msg("not a command")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.DispatchLoop(ctx, in) }()

	deadlineAt := time.Now().Add(2 * time.Second)
	for {
		sender.mu.Lock()
		n := len(sender.texts)
		sender.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadlineAt) {
			t.Fatal("help reply not sent")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("DispatchLoop = %v", err)
	}
}
