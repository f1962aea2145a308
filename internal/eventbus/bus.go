// Package eventbus is an in-process fanout of job and delivery events.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	TypeDelivered      = "delivery.sent"
	TypeDeliveryFailed = "delivery.failed"
	TypeJobFinished    = "job.finished"
)

// Event is a small signal. Data is one of the payload types below.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type DeliveryEvent struct {
	Job       string `json:"job,omitempty"`
	ChatID    int64  `json:"chat_id"`
	Title     string `json:"title"`
	Deadlines int    `json:"deadlines"`
	Error     string `json:"error,omitempty"`
}

type JobEvent struct {
	Job   string        `json:"job"`
	RunID string        `json:"run_id"`
	Took  time.Duration `json:"took"`
	Error string        `json:"error,omitempty"`
}

// Bus never blocks publishers; a full subscriber buffer drops the event.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[uint64]*sub{}}
}

type sub struct {
	ch      chan Event
	dropped atomic.Uint64
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]*sub
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// sends happen under the read lock so unsubscribe cannot close a channel mid-send
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &sub{ch: make(chan Event, buffer)}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
		})
	}
}
