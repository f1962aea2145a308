package transport

import "context"

// Message is an incoming chat message, normalized away from the platform SDK.
type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender is the outbound half of an adapter.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Adapter is a running chat transport.
type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error
}

// BotCommand is one entry of the platform command menu.
type BotCommand struct {
	Command     string
	Description string
}
