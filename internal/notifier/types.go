package notifier

import (
	"context"
	"fmt"
	"time"

	"remindbot/internal/deadline"
)

// Sink delivers one batch to its chat.
type Sink interface {
	Send(ctx context.Context, b deadline.Batch) error
}

type Config struct {
	RatePerSec int
	// Location is used for printed dates; nil means UTC.
	Location       *time.Location
	DisablePreview bool
}

type HistoryItem struct {
	At        time.Time `json:"at"`
	ChatID    int64     `json:"chat_id"`
	Title     string    `json:"title"`
	Deadlines int       `json:"deadlines"`
	Error     string    `json:"error,omitempty"`
}

// DeliveryError is a failed send of one batch. The batch is not retried.
type DeliveryError struct {
	ChatID int64
	Title  string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %q to chat %d: %v", e.Title, e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
