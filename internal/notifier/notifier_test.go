package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/deadline"
	"remindbot/internal/eventbus"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMsg
	err  error
}

type sentMsg struct {
	chat int64
	text string
	mode string
}

func (f *fakeSender) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return transport.MessageRef{}, f.err
	}
	f.sent = append(f.sent, sentMsg{chat: to.ChatID, text: text, mode: opt.ParseMode})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(sender transport.Sender, bus eventbus.Bus) *Service {
	s := New(Config{RatePerSec: 100}, sender, logx.Nop(), bus)
	s.now = func() time.Time { return now }
	return s
}

func TestSendDeliversAndRecords(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	s := newTestService(sender, bus)

	b := deadline.Batch{ChatID: 42, Title: "Soon:", Deadlines: []deadline.Deadline{{ID: 1, Name: "Lab", Subject: "Math", Due: now.Add(2 * time.Hour)}}}
	if err := s.Send(WithJob(context.Background(), "reminders"), b); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].chat != 42 || sender.sent[0].mode != "HTML" {
		t.Fatalf("sent = %+v", sender.sent)
	}
	if !strings.HasPrefix(sender.sent[0].text, "<b>Soon:</b>\n1. <b>Math</b> - Lab") {
		t.Fatalf("text = %q", sender.sent[0].text)
	}
	h := s.Snapshot()
	if len(h) != 1 || h[0].Error != "" || h[0].Deadlines != 1 {
		t.Fatalf("history = %+v", h)
	}
	e := <-events
	de, ok := e.Data.(eventbus.DeliveryEvent)
	if e.Type != eventbus.TypeDelivered || !ok || de.Job != "reminders" || de.ChatID != 42 {
		t.Fatalf("event = %+v", e)
	}
}

func TestSendFailureIsDeliveryError(t *testing.T) {
	t.Parallel()
	cause := errors.New("chat not found")
	s := newTestService(&fakeSender{err: cause}, nil)

	err := s.Send(context.Background(), deadline.Batch{ChatID: 7, Title: "x"})
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DeliveryError", err)
	}
	if de.ChatID != 7 || !errors.Is(err, cause) {
		t.Fatalf("delivery error = %+v", de)
	}
	if h := s.Snapshot(); len(h) != 1 || h[0].Error == "" {
		t.Fatalf("history = %+v", h)
	}
}

func TestSendCanceledContext(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	s := New(Config{RatePerSec: 1}, sender, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	// drain the single token so the next Wait has to block
	_ = s.limiter.Wait(ctx)
	cancel()
	err := s.Send(ctx, deadline.Batch{ChatID: 1, Title: "t"})
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DeliveryError", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("sent despite canceled context: %+v", sender.sent)
	}
}
