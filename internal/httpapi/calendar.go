package httpapi

import (
	"bytes"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"remindbot/internal/deadline"
	"remindbot/pkg/logx"
)

// eventLength is how long a deadline occupies in calendar clients.
const eventLength = 30 * time.Minute

// Calendar builds a VCALENDAR with one VEVENT per deadline.
func Calendar(ds []deadline.Deadline, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//remindbot//deadlines//EN")
	cal.Props.SetText("X-WR-CALNAME", "Deadlines")

	for _, d := range ds {
		ev := ical.NewEvent()
		ev.Props.SetText(ical.PropUID, "deadline-"+strconv.FormatInt(d.ID, 10)+"@remindbot")
		ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		ev.Props.SetDateTime(ical.PropDateTimeStart, d.Due.UTC())
		ev.Props.SetDateTime(ical.PropDateTimeEnd, d.Due.Add(eventLength).UTC())

		summary := d.Name
		if d.Subject != "" {
			summary = d.Subject + " - " + d.Name
		}
		ev.Props.SetText(ical.PropSummary, summary)
		if d.Comment != "" {
			ev.Props.SetText(ical.PropDescription, d.Comment)
		}
		if u, err := url.Parse(strings.TrimSpace(d.Link)); err == nil && d.Link != "" && u.Scheme != "" {
			ev.Props.SetURI(ical.PropURL, u)
		}
		cal.Children = append(cal.Children, ev.Component)
	}
	return cal
}

func (h *handler) calendar(w http.ResponseWriter, r *http.Request) {
	if h.d.Source == nil {
		http.Error(w, "no deadline source", http.StatusNotFound)
		return
	}
	ds, err := h.d.Source.FetchDeadlines(r.Context())
	if err != nil {
		h.log.Warn("calendar fetch failed", logx.Err(err))
		http.Error(w, "deadline source unavailable", http.StatusBadGateway)
		return
	}
	now := h.d.Now()

	cal := Calendar(deadline.Active(ds, now), now)
	cal.Props.SetText("X-WR-TIMEZONE", h.d.Location.String())

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		h.log.Error("calendar encode failed", logx.Err(err))
		http.Error(w, "encode calendar", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="deadlines.ics"`)
	_, _ = w.Write(buf.Bytes())
}
