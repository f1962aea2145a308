// Package jobs holds the scheduled units of work and their trigger schedule.
// Every job catches its own errors, hands them to the reporter and returns
// them so the scheduler history records the failure.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindbot/internal/deadline"
	"remindbot/internal/digest"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/report"
	"remindbot/internal/task/scheduler"
	"remindbot/pkg/logx"
)

const (
	Reminders    = "reminders"
	DailyDigest  = "digest.daily"
	WeeklyDigest = "digest.weekly"
	Schedule     = "schedule.daily"

	ReminderSpec = "* * * * *"
	DailySpec    = "0 10 * * *"
	WeeklySpec   = "0 20 * * 0"
	ScheduleSpec = "0 8 * * 1-6"
)

// Ticker is the reminder engine seen from a job.
type Ticker interface {
	RunTick(ctx context.Context, now time.Time) ([]deadline.Batch, error)
}

// Timetable produces the formatted class schedule for a day.
type Timetable interface {
	Today(ctx context.Context, now time.Time) (string, bool, error)
}

type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type Reporter interface {
	Report(ctx context.Context, job, runID string, err error) report.Report
}

type Registrar interface {
	AddCron(name, spec string, timeout time.Duration, job scheduler.Job) error
}

type Config struct {
	// DefaultChatID receives the class schedule.
	DefaultChatID int64
	// ScheduleEnabled registers the class schedule job.
	ScheduleEnabled bool
}

type Deps struct {
	Ticker    Ticker
	Source    deadline.Source
	Digest    *digest.Builder
	Sink      notifier.Sink
	Timetable Timetable
	Texts     TextSender
	Reporter  Reporter
	Log       logx.Logger
	Now       func() time.Time
}

type Runner struct {
	cfg Config
	d   Deps
	log logx.Logger
}

func New(cfg Config, d Deps) (*Runner, error) {
	if d.Ticker == nil || d.Source == nil || d.Digest == nil || d.Sink == nil || d.Reporter == nil {
		return nil, errors.New("jobs: ticker, source, digest, sink and reporter are required")
	}
	if cfg.ScheduleEnabled && (d.Timetable == nil || d.Texts == nil) {
		return nil, errors.New("jobs: schedule needs a timetable and a text sender")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{cfg: cfg, d: d, log: log.With(logx.String("comp", "jobs"))}, nil
}

// Register adds every job to the scheduler with its fixed trigger.
func (r *Runner) Register(s Registrar) error {
	type entry struct {
		name, spec string
		timeout    time.Duration
		job        scheduler.Job
	}
	list := []entry{
		{Reminders, ReminderSpec, 50 * time.Second, r.Reminders},
		{DailyDigest, DailySpec, 2 * time.Minute, r.DailyDigest},
		{WeeklyDigest, WeeklySpec, 2 * time.Minute, r.WeeklyDigest},
	}
	if r.cfg.ScheduleEnabled {
		list = append(list, entry{Schedule, ScheduleSpec, 2 * time.Minute, r.Schedule})
	}
	for _, e := range list {
		if err := s.AddCron(e.name, e.spec, e.timeout, e.job); err != nil {
			return fmt.Errorf("register %s: %w", e.name, err)
		}
	}
	return nil
}

// Reminders runs one engine tick and delivers what fired.
func (r *Runner) Reminders(ctx context.Context) error {
	ctx = notifier.WithJob(ctx, Reminders)
	batches, err := r.d.Ticker.RunTick(ctx, r.d.Now())
	if errors.Is(err, reminder.ErrTickInProgress) {
		r.log.Warn("tick skipped, previous tick still running", logx.String("run_id", scheduler.RunID(ctx)))
		return nil
	}
	if err != nil {
		return r.fail(ctx, Reminders, err)
	}
	return r.deliver(ctx, Reminders, batches)
}

func (r *Runner) DailyDigest(ctx context.Context) error {
	return r.digest(ctx, DailyDigest, r.d.Digest.Today)
}

func (r *Runner) WeeklyDigest(ctx context.Context) error {
	return r.digest(ctx, WeeklyDigest, r.d.Digest.NextWeek)
}

func (r *Runner) digest(ctx context.Context, job string, build func([]deadline.Deadline, time.Time) []deadline.Batch) error {
	ctx = notifier.WithJob(ctx, job)
	ds, err := r.d.Source.FetchDeadlines(ctx)
	if err != nil {
		return r.fail(ctx, job, err)
	}
	return r.deliver(ctx, job, build(ds, r.d.Now()))
}

// Schedule posts today's classes to the default chat. A day without
// classes posts nothing.
func (r *Runner) Schedule(ctx context.Context) error {
	if r.d.Timetable == nil {
		return nil
	}
	text, ok, err := r.d.Timetable.Today(ctx, r.d.Now())
	if err != nil {
		return r.fail(ctx, Schedule, err)
	}
	if !ok {
		r.log.Debug("no classes today")
		return nil
	}
	if err := r.d.Texts.SendText(ctx, r.cfg.DefaultChatID, text); err != nil {
		return r.fail(ctx, Schedule, &notifier.DeliveryError{ChatID: r.cfg.DefaultChatID, Title: "schedule", Err: err})
	}
	return nil
}

// deliver sends every batch; a failed batch is reported and the rest still go out.
func (r *Runner) deliver(ctx context.Context, job string, batches []deadline.Batch) error {
	var errs []error
	for _, b := range batches {
		if err := r.d.Sink.Send(ctx, b); err != nil {
			r.d.Reporter.Report(ctx, job, scheduler.RunID(ctx), err)
			errs = append(errs, err)
		}
	}
	if len(batches) > 0 {
		r.log.Info("batches delivered",
			logx.String("job", job),
			logx.Int("batches", len(batches)),
			logx.Int("failed", len(errs)),
		)
	}
	return errors.Join(errs...)
}

func (r *Runner) fail(ctx context.Context, job string, err error) error {
	r.d.Reporter.Report(ctx, job, scheduler.RunID(ctx), err)
	return err
}
