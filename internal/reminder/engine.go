package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"remindbot/internal/deadline"
	"remindbot/pkg/logx"
)

// ErrTickInProgress is returned by RunTick while another tick is running.
var ErrTickInProgress = errors.New("reminder: tick already in progress")

// StateStore persists threshold id -> notified deadline ids.
// LoadReminders returns an empty map when nothing was saved yet.
type StateStore interface {
	LoadReminders(ctx context.Context) (map[string][]int64, error)
	SaveReminders(ctx context.Context, state map[string][]int64) error
}

type Config struct {
	// DefaultChatID receives deadlines that carry no chat of their own.
	DefaultChatID int64
}

// TickObserver is told about every finished tick. Optional.
type TickObserver interface {
	ObserveTick(result string, took time.Duration, state map[string][]int64)
}

type Engine struct {
	cfg      Config
	registry *Registry
	source   deadline.Source
	store    StateStore
	log      logx.Logger
	observer TickObserver

	running atomic.Bool
}

type Option func(*Engine)

func WithLogger(log logx.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithObserver(o TickObserver) Option {
	return func(e *Engine) { e.observer = o }
}

func NewEngine(cfg Config, registry *Registry, source deadline.Source, store StateStore, opts ...Option) (*Engine, error) {
	if registry == nil || source == nil || store == nil {
		return nil, errors.New("reminder: registry, source and store are required")
	}
	e := &Engine{cfg: cfg, registry: registry, source: source, store: store}
	for _, o := range opts {
		o(e)
	}
	if e.log.IsZero() {
		e.log = logx.Nop()
	}
	e.log = e.log.With(logx.String("comp", "reminder"))
	return e, nil
}

func (e *Engine) Registry() *Registry { return e.registry }

// RunTick fires every threshold crossed by now exactly once per deadline.
// State is saved once, before any batch is returned; on any error nothing
// is returned and the next tick starts over from the stored state.
func (e *Engine) RunTick(ctx context.Context, now time.Time) ([]deadline.Batch, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrTickInProgress
	}
	defer e.running.Store(false)

	started := time.Now()
	batches, state, err := e.tick(ctx, now)
	if e.observer != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		e.observer.ObserveTick(result, time.Since(started), state)
	}
	return batches, err
}

func (e *Engine) tick(ctx context.Context, now time.Time) ([]deadline.Batch, map[string][]int64, error) {
	deadlines, err := e.source.FetchDeadlines(ctx)
	if err != nil {
		return nil, nil, err
	}
	state, err := e.store.LoadReminders(ctx)
	if err != nil {
		return nil, nil, err
	}
	if state == nil {
		state = make(map[string][]int64)
	}

	var batches []deadline.Batch
	for _, t := range e.registry.items {
		fired := candidates(deadlines, state[t.ID()], now.Add(t.Lookahead()))
		if len(fired) == 0 {
			continue
		}
		ids := state[t.ID()]
		for _, d := range fired {
			ids = append(ids, d.ID)
		}
		state[t.ID()] = ids
		batches = append(batches, deadline.GroupByChat(fired, e.cfg.DefaultChatID, t.Title)...)
		e.log.Debug("threshold crossed", logx.String("threshold", t.ID()), logx.Int("deadlines", len(fired)))
	}

	if err := e.store.SaveReminders(ctx, state); err != nil {
		return nil, nil, fmt.Errorf("save reminder state: %w", err)
	}
	return batches, state, nil
}

// candidates returns deadlines due at or before horizon that are not in fired.
func candidates(ds []deadline.Deadline, fired []int64, horizon time.Time) []deadline.Deadline {
	skip := make(map[int64]struct{}, len(fired)+len(ds))
	for _, id := range fired {
		skip[id] = struct{}{}
	}
	var out []deadline.Deadline
	for _, d := range ds {
		if d.Due.After(horizon) {
			continue
		}
		if _, ok := skip[d.ID]; ok {
			continue
		}
		skip[d.ID] = struct{}{}
		out = append(out, d)
	}
	return out
}
