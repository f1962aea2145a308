// Package events announces newly created deadlines read from a Kafka topic.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"remindbot/internal/deadline"
	"remindbot/internal/notifier"
	"remindbot/pkg/logx"
)

const (
	NewDeadlineTitle = "🆕 New deadline:"

	EventCreated = "created"
)

const job = "events.announce"

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Observer counts consumed messages by outcome. Optional.
type Observer interface {
	ObserveEvent(outcome string)
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
	// DefaultChatID receives deadlines that carry no chat of their own.
	DefaultChatID int64
}

// NewReader opens a consumer group reader for cfg.
func NewReader(cfg Config) (*kafka.Reader, error) {
	if len(cfg.Brokers) == 0 || strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("events: brokers and topic are required")
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        5 * time.Second,
		CommitInterval: 0,
	}), nil
}

// Message is one deadline event on the wire.
type Message struct {
	Event    string  `json:"event"`
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Subject  string  `json:"subject"`
	Datetime string  `json:"datetime"`
	Comment  *string `json:"comment"`
	Link     *string `json:"link"`
	ChatID   *int64  `json:"chat_id"`
}

// Deadline converts the event payload.
func (m Message) Deadline() (deadline.Deadline, error) {
	due, err := time.Parse(time.RFC3339, m.Datetime)
	if err != nil {
		return deadline.Deadline{}, fmt.Errorf("deadline %d: datetime %q: %w", m.ID, m.Datetime, err)
	}
	d := deadline.Deadline{ID: m.ID, Name: m.Name, Subject: m.Subject, Due: due}
	if m.Comment != nil {
		d.Comment = *m.Comment
	}
	if m.Link != nil {
		d.Link = *m.Link
	}
	if m.ChatID != nil {
		d.ChatID = *m.ChatID
	}
	return d, nil
}

type Consumer struct {
	cfg      Config
	reader   Reader
	sink     notifier.Sink
	reporter func(ctx context.Context, err error)
	observer Observer
	log      logx.Logger
	now      func() time.Time
}

type Option func(*Consumer)

func WithObserver(o Observer) Option { return func(c *Consumer) { c.observer = o } }

// WithReporter routes delivery failures to report.
func WithReporter(report func(ctx context.Context, job string, err error)) Option {
	return func(c *Consumer) {
		c.reporter = func(ctx context.Context, err error) { report(ctx, job, err) }
	}
}

func NewConsumer(cfg Config, reader Reader, sink notifier.Sink, log logx.Logger, opts ...Option) *Consumer {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Consumer{
		cfg:    cfg,
		reader: reader,
		sink:   sink,
		log:    log.With(logx.String("comp", "events"), logx.String("topic", cfg.Topic)),
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run consumes until ctx is canceled or the reader fails. Every message is
// committed once handled, including malformed ones.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("deadline events consumer started")
	ctx = notifier.WithJob(ctx, job)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return ctx.Err()
			}
			return fmt.Errorf("fetch message: %w", err)
		}
		outcome := c.handle(ctx, msg)
		if c.observer != nil {
			c.observer.ObserveEvent(outcome)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) string {
	log := c.log.With(logx.Int("partition", msg.Partition), logx.Int64("offset", msg.Offset))

	var m Message
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		log.Warn("malformed deadline event skipped", logx.Err(err))
		return "malformed"
	}
	if m.Event != EventCreated {
		log.Debug("deadline event ignored", logx.String("event", m.Event))
		return "ignored"
	}
	d, err := m.Deadline()
	if err != nil {
		log.Warn("malformed deadline event skipped", logx.Err(err))
		return "malformed"
	}
	if !d.Due.After(c.now()) {
		log.Debug("created deadline already passed", logx.Int64("deadline_id", d.ID))
		return "ignored"
	}

	chat := d.ChatID
	if chat == 0 {
		chat = c.cfg.DefaultChatID
	}
	b := deadline.Batch{ChatID: chat, Title: NewDeadlineTitle, Deadlines: []deadline.Deadline{d}}
	if err := c.sink.Send(ctx, b); err != nil {
		if c.reporter != nil {
			c.reporter(ctx, err)
		} else {
			log.Error("announcement failed", logx.Err(err))
		}
		return "failed"
	}
	log.Info("new deadline announced", logx.Int64("deadline_id", d.ID), logx.Int64("chat_id", chat))
	return "announced"
}
