// Package report turns job failures into structured operator reports.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/deadline"
	"remindbot/internal/notifier"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

type Kind string

const (
	KindSourceUnavailable Kind = "source_unavailable"
	KindStorageCorrupt    Kind = "storage_corrupt"
	KindDelivery          Kind = "delivery"
	KindInternal          Kind = "internal"
)

// Report describes one failure at a job boundary.
type Report struct {
	ID    string
	Kind  Kind
	Job   string
	RunID string
	Cause error
	At    time.Time
}

// KindOf classifies err by the error types in its chain.
func KindOf(err error) Kind {
	var (
		unavailable *deadline.SourceUnavailableError
		corrupt     *storage.CorruptError
		delivery    *notifier.DeliveryError
	)
	switch {
	case errors.As(err, &unavailable):
		return KindSourceUnavailable
	case errors.As(err, &corrupt):
		return KindStorageCorrupt
	case errors.As(err, &delivery):
		return KindDelivery
	}
	return KindInternal
}

// TextSender posts a message to the operator chat.
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Counter is told about every report. Optional.
type Counter interface {
	ObserveReport(kind string)
}

type Reporter struct {
	log     logx.Logger
	sender  TextSender
	chatID  int64
	counter Counter
	now     func() time.Time
}

func New(log logx.Logger, sender TextSender, operatorChat int64, counter Counter) *Reporter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reporter{log: log.With(logx.String("comp", "report")), sender: sender, chatID: operatorChat, counter: counter, now: time.Now}
}

// Report logs err and forwards it to the operator chat. It never fails;
// a failed forward is only logged.
func (r *Reporter) Report(ctx context.Context, job, runID string, err error) Report {
	rep := Report{ID: uuid.NewString(), Kind: KindOf(err), Job: job, RunID: runID, Cause: err, At: r.now()}
	r.log.Error("job error",
		logx.String("report_id", rep.ID),
		logx.String("kind", string(rep.Kind)),
		logx.String("job", job),
		logx.String("run_id", runID),
		logx.Err(err),
	)
	if r.counter != nil {
		r.counter.ObserveReport(string(rep.Kind))
	}
	if r.sender == nil || r.chatID == 0 {
		return rep
	}
	// the job context may already be canceled; reports still go out
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if serr := r.sender.SendText(sctx, r.chatID, Format(rep)); serr != nil {
		r.log.Warn("report delivery failed", logx.String("report_id", rep.ID), logx.Err(serr))
	}
	return rep
}

// Format renders a report for the operator chat.
func Format(rep Report) string {
	cause := "<nil>"
	if rep.Cause != nil {
		cause = rep.Cause.Error()
	}
	head := fmt.Sprintf("⚠️ %s in %s", strings.ReplaceAll(string(rep.Kind), "_", " "), rep.Job)
	meta := "report " + rep.ID
	if rep.RunID != "" {
		meta += " • run " + rep.RunID
	}
	return string(tgui.Lines(
		tgui.B(head),
		tgui.Code(tgui.TruncRunes(cause, 1500)),
		tgui.I(meta),
	))
}
