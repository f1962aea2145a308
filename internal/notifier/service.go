package notifier

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/deadline"
	"remindbot/internal/eventbus"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

const historyLimit = 300

type jobKey struct{}

// WithJob tags ctx with the job name carried on delivery events.
func WithJob(ctx context.Context, job string) context.Context {
	return context.WithValue(ctx, jobKey{}, job)
}

func jobFrom(ctx context.Context) string {
	s, _ := ctx.Value(jobKey{}).(string)
	return s
}

// Service is a rate-limited Sink on top of a transport sender.
// It is safe for concurrent use.
type Service struct {
	log    logx.Logger
	sender transport.Sender
	bus    eventbus.Bus
	now    func() time.Time

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender transport.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log.With(logx.String("comp", "notifier")), bus: bus, now: time.Now}
	s.Apply(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s.mu.Lock()
	s.cfg = cfg
	// burst = rate so a tick with a few chats goes out at once
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

func (s *Service) Send(ctx context.Context, b deadline.Batch) error {
	s.mu.Lock()
	cfg, limiter := s.cfg, s.limiter
	s.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return s.failed(ctx, b, err)
	}
	text := RenderBatch(b, s.now(), cfg.Location)
	_, err := s.sender.SendText(ctx, transport.ChatTarget{ChatID: b.ChatID}, text, &transport.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: cfg.DisablePreview,
	})
	if err != nil {
		return s.failed(ctx, b, err)
	}

	s.record(HistoryItem{At: s.now(), ChatID: b.ChatID, Title: b.Title, Deadlines: len(b.Deadlines)})
	s.publish(ctx, eventbus.TypeDelivered, b, "")
	s.log.Debug("batch delivered", logx.Int64("chat_id", b.ChatID), logx.Int("deadlines", len(b.Deadlines)))
	return nil
}

// SendText delivers a free-form HTML message, used for digests of other kinds
// and command replies.
func (s *Service) SendText(ctx context.Context, chatID int64, text string) error {
	s.mu.Lock()
	limiter, preview := s.limiter, s.cfg.DisablePreview
	s.mu.Unlock()
	if err := limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := s.sender.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: preview})
	return err
}

func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Location
}

func (s *Service) failed(ctx context.Context, b deadline.Batch, err error) error {
	s.record(HistoryItem{At: s.now(), ChatID: b.ChatID, Title: b.Title, Deadlines: len(b.Deadlines), Error: err.Error()})
	s.publish(ctx, eventbus.TypeDeliveryFailed, b, err.Error())
	return &DeliveryError{ChatID: b.ChatID, Title: b.Title, Err: err}
}

func (s *Service) publish(ctx context.Context, typ string, b deadline.Batch, errText string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: eventbus.DeliveryEvent{
		Job:       jobFrom(ctx),
		ChatID:    b.ChatID,
		Title:     b.Title,
		Deadlines: len(b.Deadlines),
		Error:     errText,
	}})
}

func (s *Service) record(h HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, h)
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
	s.hmu.Unlock()
}

// Snapshot returns recent deliveries, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}
