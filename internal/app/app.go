// Package app wires configuration, transport, storage and jobs into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/deadline"
	"remindbot/internal/digest"
	"remindbot/internal/eventbus"
	"remindbot/internal/events"
	"remindbot/internal/httpapi"
	"remindbot/internal/jobs"
	"remindbot/internal/metrics"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/report"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/schedule"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	"remindbot/internal/transport"
	"remindbot/internal/transport/telegram"
	"remindbot/pkg/logx"
	"remindbot/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	adapter  *telegram.Adapter
	store    storage.Store
	metrics  *metrics.Metrics
	notif    *notifier.Service
	sched    *scheduler.Service
	runner   *jobs.Runner
	bot      *bot.Bot
	consumer *events.Consumer
	reader   events.Reader
	http     *httpapi.Server

	updates chan transport.Message
}

// New loads configuration and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.DurationOr(cfg.Telegram.PollTimeout, 10*time.Second),
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// set the operator target before enabling the telegram sink
	logCfg := mapLogConfig(cfg)
	tgEnabled := logCfg.Telegram.Enabled
	logCfg.Telegram.Enabled = false
	logSvc, root := logx.New(logCfg, ad)
	logSvc.SetTelegramTarget(cfg.Telegram.OperatorChatID, cfg.Logging.Telegram.ThreadID)
	logCfg.Telegram.Enabled = tgEnabled
	logSvc.Apply(logCfg)
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	bus := eventbus.New()
	m := metrics.New()

	store, err := storage.Open(ctx, mapStorageConfig(cfg), root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", cfg.Storage.Driver))

	registry, err := buildRegistry(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	source := deadline.NewClient(mapClientConfig(cfg), deadline.WithLogger(root.With(logx.String("comp", "deadline"))))
	engine, err := reminder.NewEngine(reminder.Config{DefaultChatID: cfg.Telegram.ChatID}, registry, source, store,
		reminder.WithLogger(root.With(logx.String("comp", "reminder"))),
		reminder.WithObserver(m),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	notif := notifier.New(mapNotifierConfig(cfg, loc), ad, root, bus)
	reporter := report.New(root, notif, cfg.Telegram.OperatorChatID, m)
	dg := digest.New(digest.Config{DefaultChatID: cfg.Telegram.ChatID, Location: loc})

	var timetable *schedule.Service
	if cfg.Schedule.Enabled {
		timetable = schedule.NewService(schedule.NewClient(mapScheduleConfig(cfg)), loc)
	}

	jobDeps := jobs.Deps{
		Ticker:   engine,
		Source:   source,
		Digest:   dg,
		Sink:     notif,
		Texts:    notif,
		Reporter: reporter,
		Log:      root,
	}
	if timetable != nil {
		jobDeps.Timetable = timetable
	}
	runner, err := jobs.New(jobs.Config{DefaultChatID: cfg.Telegram.ChatID, ScheduleEnabled: cfg.Schedule.Enabled}, jobDeps)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sched := scheduler.New(scheduler.Config{Location: loc}, root.With(logx.String("comp", "scheduler")), bus)
	if err := runner.Register(sched); err != nil {
		_ = store.Close()
		return nil, err
	}

	botDeps := bot.Deps{
		Sender:     ad,
		Source:     source,
		Digest:     dg,
		State:      store,
		Jobs:       sched,
		Thresholds: registry.IDs(),
		Log:        root,
	}
	if timetable != nil {
		botDeps.Timetable = timetable
	}
	b, err := bot.New(bot.Config{DefaultChatID: cfg.Telegram.ChatID, CountPerPage: cfg.Bot.CountPerPage, Location: loc}, botDeps)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		adapter: ad,
		store:   store,
		metrics: m,
		notif:   notif,
		sched:   sched,
		runner:  runner,
		bot:     b,
		updates: make(chan transport.Message, 256),
	}

	if cfg.Events.Enabled {
		ecfg := mapEventsConfig(cfg)
		r, err := events.NewReader(ecfg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.reader = r
		a.consumer = events.NewConsumer(ecfg, r, notif, root,
			events.WithObserver(m),
			events.WithReporter(func(ctx context.Context, job string, err error) {
				reporter.Report(ctx, job, "", err)
			}),
		)
	}

	if cfg.HTTP.Enabled {
		h := httpapi.NewRouter(httpapi.Deps{
			Source:     source,
			Store:      store,
			Jobs:       sched,
			Deliveries: notif,
			Metrics:    m.Handler(),
			Observer:   m,
			Log:        root,
			Location:   loc,
			Pprof:      cfg.HTTP.Pprof,
		})
		a.http = httpapi.NewServer(cfg.HTTP.Addr, h, root)
	}
	return a, nil
}

// Done is closed when the app context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	c := a.sup.Context()

	if err := a.adapter.Start(c, a.updates); err != nil {
		return err
	}
	a.sup.Go0("telegram.menu", func(context.Context) {
		if err := a.adapter.SetCommands(a.bot.Menu()); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
	})

	busEvents, unsub := a.bus.Subscribe(256)
	a.sup.Go0("metrics.events", func(c context.Context) {
		defer unsub()
		a.metrics.Consume(c, busEvents)
	})

	a.sched.Start(c)
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.bot.DispatchLoop(c, a.updates)
	})

	if a.consumer != nil {
		a.sup.GoRestart("events.consume", a.consumer.Run, supervisor.WithRestartBackoff(time.Second, time.Minute))
	}
	if a.http != nil {
		a.sup.GoRestart("http.serve", a.http.Run, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	}

	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(time.Second, time.Minute))

	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		systemd.Watchdog(c, a.log, a.store.Ping)
	})
	systemd.Ready(a.log)
	a.log.Info("app started")
	return nil
}

// reloadLoop applies live-reloadable sections and warns about the rest.
func (a *App) reloadLoop(c context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			systemd.Reloading(a.log)
			a.applyConfig(last, newCfg)
			last = newCfg
			systemd.Ready(a.log)
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.SetTelegramTarget(newCfg.Telegram.OperatorChatID, newCfg.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogConfig(newCfg))

	loc, err := newCfg.Location()
	if err != nil {
		loc = a.notif.Location()
	}
	a.notif.Apply(mapNotifierConfig(newCfg, loc))
	a.bot.SetPageSize(newCfg.Bot.CountPerPage)

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	systemd.Stopping(a.log)
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("supervisor", 5*time.Second, a.sup.Wait)
	if a.reader != nil {
		step("events.reader", time.Second, func(context.Context) error { return a.reader.Close() })
	}
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
