package notifier

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"remindbot/internal/deadline"
	"remindbot/pkg/tgui"
)

const (
	unknownSubject = "unknown subject"
	emptyList      = "nothing here..."
	dueLayout      = "02.01.06 15:04"
)

// RenderBatch renders the title followed by the numbered deadlines.
func RenderBatch(b deadline.Batch, now time.Time, loc *time.Location) string {
	return string(tgui.Lines(tgui.B(b.Title), tgui.Raw(RenderList(b.Deadlines, 0, now, loc))))
}

// RenderList numbers entries starting at offset+1, separated by a blank line.
func RenderList(ds []deadline.Deadline, offset int, now time.Time, loc *time.Location) string {
	if len(ds) == 0 {
		return emptyList
	}
	parts := make([]string, 0, len(ds))
	for i, d := range ds {
		parts = append(parts, strconv.Itoa(offset+i+1)+". "+RenderDeadline(d, now, loc))
	}
	return strings.Join(parts, "\n\n")
}

// RenderDeadline renders one entry:
//
//	<b>Math</b> - Lab 1
//	⏰ 01.03.25 15:00 <i>(in 2 hours)</i>
//	🔗 <a href="...">Link</a>
//	comment
func RenderDeadline(d deadline.Deadline, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	subject := d.Subject
	if strings.TrimSpace(subject) == "" {
		subject = unknownSubject
	}
	head := tgui.B(subject) + " - " + tgui.Esc(d.Name)
	due := tgui.Raw("⏰ ") + tgui.Esc(d.Due.In(loc).Format(dueLayout)) + " " + tgui.I("("+Relative(d.Due, now)+")")
	var link tgui.H
	if d.Link != "" {
		link = "🔗 " + tgui.Link("Link", d.Link)
	}
	return string(tgui.Lines(head, due, link, RenderComment(d.Comment)))
}

// Relative describes t as seen from now: "5 minutes from now", "2 days ago".
func Relative(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}
