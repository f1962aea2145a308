package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	"remindbot/pkg/logx"
)

var (
	ErrUnknownJob = errors.New("scheduler: unknown job")
	ErrBusy       = errors.New("scheduler: job already running")
)

type runIDKey struct{}

// RunID returns the id of the run ctx belongs to.
func RunID(ctx context.Context) string {
	s, _ := ctx.Value(runIDKey{}).(string)
	return s
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	bus eventbus.Bus

	parser cron.Parser
	c      *cron.Cron
	defs   []*scheduleDef

	runCtx    context.Context
	runCancel context.CancelFunc
	runWG     sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	return &Service{
		cfg: cfg,
		log: log.With(logx.String("comp", "scheduler")),
		bus: bus,
		// SecondOptional allows both 5-field and 6-field (with seconds) specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Validate checks a spec without registering it.
func (s *Service) Validate(spec string) error {
	_, err := s.parser.Parse(spec)
	return err
}

// AddCron registers job under name, replacing any job with that name.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if err := s.Validate(spec); err != nil {
		return fmt.Errorf("schedule %s: invalid spec %q: %w", name, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &scheduleDef{name: name, spec: spec, timeout: timeout, job: job, state: &runState{}}
	s.defs = append(s.defs, d)
	if s.c != nil {
		if err := s.registerLocked(d); err != nil {
			return err
		}
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec), logx.String("next", s.previewLocked(spec, 3)))
	return nil
}

func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	for i, d := range s.defs {
		if d.name != name {
			continue
		}
		if s.c != nil && d.entryID != 0 {
			s.c.Remove(d.entryID)
		}
		s.defs = slices.Delete(s.defs, i, i+1)
		return true
	}
	return false
}

func (s *Service) registerLocked(d *scheduleDef) error {
	id, err := s.c.AddFunc(d.spec, func() { s.trigger(d) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", d.name, err)
	}
	d.entryID = id
	return nil
}

// Start begins triggering. Jobs get contexts derived from ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.cfg.Location))
	for _, d := range s.defs {
		if err := s.registerLocked(d); err != nil {
			s.log.Error("schedule register failed", logx.String("name", d.name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", s.cfg.Location.String()), logx.Int("schedules", len(s.defs)))
}

// Stop stops triggering, cancels running jobs and waits for them or ctx.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c, cancel := s.c, s.runCancel
	s.c = nil
	for _, d := range s.defs {
		d.entryID = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}

	stopped := c.Stop()
	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		s.runWG.Wait()
		close(done)
	}()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("stop timed out with jobs still running")
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// RunNow runs a registered job immediately in the background, honoring the
// overlap guard.
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	var def *scheduleDef
	for _, d := range s.defs {
		if d.name == name {
			def = d
		}
	}
	started := s.c != nil
	s.mu.Unlock()
	if def == nil {
		return ErrUnknownJob
	}
	if !started {
		return errors.New("scheduler: not started")
	}
	if def.state.running.Load() {
		return ErrBusy
	}
	s.trigger(def)
	return nil
}

func (s *Service) trigger(d *scheduleDef) {
	if !d.state.tryAcquire() {
		d.skipped.Add(1)
		s.log.Warn("previous run still in progress; skipping", logx.String("name", d.name))
		return
	}
	s.mu.Lock()
	parent := s.runCtx
	s.mu.Unlock()
	if parent == nil {
		d.state.release()
		return
	}

	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()
		defer d.state.release()
		s.run(parent, d)
	}()
}

func (s *Service) run(parent context.Context, d *scheduleDef) {
	runID := uuid.NewString()
	ctx := context.WithValue(parent, runIDKey{}, runID)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	started := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("job panicked", logx.String("name", d.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return d.job(ctx)
	}()
	took := time.Since(started)

	item := HistoryItem{Name: d.name, RunID: runID, Started: started, Duration: took}
	ev := eventbus.JobEvent{Job: d.name, RunID: runID, Took: took}
	if err != nil {
		item.Error = err.Error()
		ev.Error = err.Error()
		s.log.Warn("job failed", logx.String("name", d.name), logx.String("run_id", runID), logx.Duration("took", took), logx.Err(err))
	} else {
		s.log.Debug("job done", logx.String("name", d.name), logx.String("run_id", runID), logx.Duration("took", took))
	}
	s.appendHistory(item)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeJobFinished, Data: ev})
	}
}

func (s *Service) appendHistory(h HistoryItem) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, h)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
}

func (s *Service) previewLocked(spec string, n int) string {
	sch, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	t := time.Now().In(s.cfg.Location)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		t = sch.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t.Format("2006-01-02 15:04"))
	}
	return strings.Join(out, ", ")
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	c := s.c
	items := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout, Running: d.state.running.Load(), Skipped: d.skipped.Load()}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		items = append(items, it)
	}
	s.mu.Unlock()

	s.hmu.Lock()
	hist := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()

	return Snapshot{Running: c != nil, Timezone: s.cfg.Location.String(), Schedules: items, History: hist}
}
