package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"remindbot/internal/deadline"
	"remindbot/internal/digest"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/report"
	"remindbot/internal/task/scheduler"
	"remindbot/pkg/logx"
)

var now = time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

type fakeTicker struct {
	batches []deadline.Batch
	err     error
}

func (f fakeTicker) RunTick(context.Context, time.Time) ([]deadline.Batch, error) {
	return f.batches, f.err
}

type fakeSource struct {
	ds  []deadline.Deadline
	err error
}

func (f fakeSource) FetchDeadlines(context.Context) ([]deadline.Deadline, error) { return f.ds, f.err }

type recSink struct {
	mu     sync.Mutex
	sent   []deadline.Batch
	failOn int64
}

func (s *recSink) Send(_ context.Context, b deadline.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ChatID == s.failOn {
		return &notifier.DeliveryError{ChatID: b.ChatID, Title: b.Title, Err: errors.New("bot was kicked")}
	}
	s.sent = append(s.sent, b)
	return nil
}

type recReporter struct {
	mu   sync.Mutex
	jobs []string
	errs []error
}

func (r *recReporter) Report(_ context.Context, job, _ string, err error) report.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	r.errs = append(r.errs, err)
	return report.Report{Job: job, Kind: report.KindOf(err), Cause: err}
}

type recTexts struct{ texts []string }

func (r *recTexts) SendText(_ context.Context, _ int64, text string) error {
	r.texts = append(r.texts, text)
	return nil
}

type fakeTimetable struct {
	text string
	ok   bool
}

func (f fakeTimetable) Today(context.Context, time.Time) (string, bool, error) {
	return f.text, f.ok, nil
}

func newRunner(t *testing.T, cfg Config, d Deps) *Runner {
	t.Helper()
	if d.Ticker == nil {
		d.Ticker = fakeTicker{}
	}
	if d.Source == nil {
		d.Source = fakeSource{}
	}
	if d.Digest == nil {
		d.Digest = digest.New(digest.Config{DefaultChatID: 1})
	}
	d.Now = func() time.Time { return now }
	r, err := New(cfg, d)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRemindersDeliversRemainingBatchesAfterFailure(t *testing.T) {
	t.Parallel()
	sink := &recSink{failOn: 2}
	rep := &recReporter{}
	r := newRunner(t, Config{}, Deps{
		Ticker: fakeTicker{batches: []deadline.Batch{
			{ChatID: 1, Title: "a"}, {ChatID: 2, Title: "b"}, {ChatID: 3, Title: "c"},
		}},
		Sink:     sink,
		Reporter: rep,
	})

	err := r.Reminders(context.Background())
	var de *notifier.DeliveryError
	if !errors.As(err, &de) || de.ChatID != 2 {
		t.Fatalf("err = %v", err)
	}
	if len(sink.sent) != 2 || sink.sent[1].ChatID != 3 {
		t.Fatalf("sent = %+v", sink.sent)
	}
	if len(rep.jobs) != 1 || rep.jobs[0] != Reminders || report.KindOf(rep.errs[0]) != report.KindDelivery {
		t.Fatalf("reports = %v %v", rep.jobs, rep.errs)
	}
}

func TestRemindersTickInProgressIsNotReported(t *testing.T) {
	t.Parallel()
	rep := &recReporter{}
	r := newRunner(t, Config{}, Deps{Ticker: fakeTicker{err: reminder.ErrTickInProgress}, Sink: &recSink{}, Reporter: rep})
	if err := r.Reminders(context.Background()); err != nil {
		t.Fatalf("err = %v", err)
	}
	if len(rep.jobs) != 0 {
		t.Fatalf("reports = %v", rep.jobs)
	}
}

func TestDigestReportsSourceFailure(t *testing.T) {
	t.Parallel()
	rep := &recReporter{}
	sink := &recSink{}
	r := newRunner(t, Config{}, Deps{
		Source:   fakeSource{err: &deadline.SourceUnavailableError{Op: "fetch", Err: errors.New("503")}},
		Sink:     sink,
		Reporter: rep,
	})
	if err := r.DailyDigest(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(sink.sent) != 0 || len(rep.jobs) != 1 || rep.jobs[0] != DailyDigest {
		t.Fatalf("sent=%v reports=%v", sink.sent, rep.jobs)
	}
	if report.KindOf(rep.errs[0]) != report.KindSourceUnavailable {
		t.Fatalf("kind = %s", report.KindOf(rep.errs[0]))
	}
}

func TestDigestsFilterByHorizon(t *testing.T) {
	t.Parallel()
	ds := []deadline.Deadline{
		{ID: 1, Name: "today", Due: now.Add(3 * time.Hour)},
		{ID: 2, Name: "in five days", Due: now.Add(5 * 24 * time.Hour), ChatID: 9},
		{ID: 3, Name: "past", Due: now.Add(-time.Hour)},
	}
	sink := &recSink{}
	r := newRunner(t, Config{}, Deps{Source: fakeSource{ds: ds}, Sink: sink, Reporter: &recReporter{}})

	if err := r.DailyDigest(context.Background()); err != nil {
		t.Fatalf("daily: %v", err)
	}
	if len(sink.sent) != 1 || sink.sent[0].Title != digest.TodayTitle || len(sink.sent[0].Deadlines) != 1 {
		t.Fatalf("daily sent = %+v", sink.sent)
	}

	sink.sent = nil
	if err := r.WeeklyDigest(context.Background()); err != nil {
		t.Fatalf("weekly: %v", err)
	}
	if len(sink.sent) != 2 || sink.sent[0].ChatID != 1 || sink.sent[1].ChatID != 9 {
		t.Fatalf("weekly sent = %+v", sink.sent)
	}
}

func TestScheduleSkipsEmptyDay(t *testing.T) {
	t.Parallel()
	texts := &recTexts{}
	r := newRunner(t, Config{ScheduleEnabled: true, DefaultChatID: 5}, Deps{
		Sink: &recSink{}, Reporter: &recReporter{}, Texts: texts, Timetable: fakeTimetable{},
	})
	if err := r.Schedule(context.Background()); err != nil || len(texts.texts) != 0 {
		t.Fatalf("err=%v texts=%v", err, texts.texts)
	}

	r.d.Timetable = fakeTimetable{text: "classes", ok: true}
	if err := r.Schedule(context.Background()); err != nil || len(texts.texts) != 1 {
		t.Fatalf("err=%v texts=%v", err, texts.texts)
	}
}

type recRegistrar struct{ specs map[string]string }

func (r *recRegistrar) AddCron(name, spec string, _ time.Duration, _ scheduler.Job) error {
	r.specs[name] = spec
	return nil
}

func TestRegister(t *testing.T) {
	t.Parallel()
	reg := &recRegistrar{specs: map[string]string{}}
	r := newRunner(t, Config{}, Deps{Sink: &recSink{}, Reporter: &recReporter{}})
	if err := r.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	want := map[string]string{Reminders: ReminderSpec, DailyDigest: DailySpec, WeeklyDigest: WeeklySpec}
	if len(reg.specs) != len(want) {
		t.Fatalf("specs = %v", reg.specs)
	}
	for k, v := range want {
		if reg.specs[k] != v {
			t.Fatalf("%s = %q, want %q", k, reg.specs[k], v)
		}
	}

	// every spec must parse with the scheduler's parser
	s := scheduler.New(scheduler.Config{}, logx.Nop(), nil)
	for _, spec := range []string{ReminderSpec, DailySpec, WeeklySpec, ScheduleSpec} {
		if err := s.Validate(spec); err != nil {
			t.Fatalf("Validate(%q): %v", spec, err)
		}
	}
}
