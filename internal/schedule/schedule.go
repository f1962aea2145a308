// Package schedule builds the daily class timetable message.
package schedule

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"remindbot/pkg/tgui"
)

// Lesson is one rendered timetable row.
type Lesson struct {
	Subject    string
	Type       string
	Teacher    string
	Form       string
	Auditorium string
	Start      string
	End        string
}

// Source returns the current week parity and the group's schedule objects.
type Source interface {
	FetchParams(ctx context.Context) (Params, error)
	FetchSchedule(ctx context.Context) ([]Object, error)
}

var slotTimes = map[string]string{
	"100":  "08:00",
	"1100": "09:30",
	"101":  "09:50",
	"1101": "11:20",
	"102":  "11:40",
	"1102": "13:10",
	"103":  "13:40",
	"1103": "15:10",
	"104":  "15:30",
	"1104": "17:00",
	"105":  "17:20",
	"1105": "18:50",
	"106":  "19:05",
	"1106": "20:35",
	"107":  "20:50",
	"1107": "22:20",
}

var formLabels = map[string]string{
	"online":   "remote",
	"standard": "in person",
}

var typeLabels = map[string]string{
	"Пр":  "practice",
	"Лек": "lecture",
	"Лаб": "lab",
}

// WeekdayCode is the API spelling of a weekday, e.g. "MON".
func WeekdayCode(d time.Weekday) string {
	return strings.ToUpper(d.String()[:3])
}

// electiveNumber reads N from a block path like "Б1.В.ДВ.3.1"; without a
// ДВ/ДЭ marker the last segment is used.
func electiveNumber(block string) string {
	if block == "" {
		return ""
	}
	parts := strings.Split(block, ".")
	idx := -1
	for i, p := range parts {
		if p == "ДВ" || p == "ДЭ" {
			idx = i
			break
		}
	}
	raw := parts[len(parts)-1]
	if idx >= 0 {
		raw = ""
		if idx+1 < len(parts) {
			raw = parts[idx+1]
		}
	}
	if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
		return strconv.Itoa(n)
	}
	return strings.TrimSpace(raw)
}

type richLesson struct {
	Lesson
	block string
}

type slot struct{ start, end string }

// Build keeps the objects scheduled for week and weekday, folds parallel
// electives into one row and sorts the result by start time.
func Build(objs []Object, week, weekday string) []Lesson {
	var lessons []richLesson
	for _, o := range objs {
		rt := o.Lesson.AuditoriumReservation.ReservationTime
		if string(rt.Week) != week || rt.WeekDay != weekday {
			continue
		}
		l := richLesson{
			Lesson: Lesson{
				Subject:    o.Lesson.Subject.ShortTitle,
				Type:       o.Lesson.Subject.SubjectType,
				Form:       o.Form,
				Auditorium: o.Lesson.AuditoriumReservation.AuditoriumNumber,
				Start:      string(rt.StartTime),
				End:        string(rt.EndTime),
			},
			block: o.Block,
		}
		if o.Lesson.Teacher != nil {
			l.Teacher = o.Lesson.Teacher.Initials
		}
		lessons = append(lessons, l)
	}

	groups := map[slot][]richLesson{}
	var order []slot
	for _, l := range lessons {
		k := slot{l.Start, l.End}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], l)
	}

	out := make([]Lesson, 0, len(lessons))
	var merged []Lesson
	for _, k := range order {
		g := groups[k]
		if len(g) > 1 {
			m := g[0].Lesson
			m.Subject = "elective " + electiveNumber(g[0].block)
			m.Teacher = ""
			merged = append(merged, m)
			continue
		}
		l := g[0].Lesson
		if g[0].block != "" {
			l.Subject += " (elective " + electiveNumber(g[0].block) + ")"
		}
		out = append(out, l)
	}
	out = append(out, merged...)

	for i := range out {
		out[i] = prettify(out[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func prettify(l Lesson) Lesson {
	l.Type = label(typeLabels, l.Type, "unknown type: ")
	l.Form = label(formLabels, l.Form, "unknown form: ")
	l.Start = label(slotTimes, l.Start, "unknown time: ")
	l.End = label(slotTimes, l.End, "unknown time: ")
	return l
}

func label(m map[string]string, k, fallback string) string {
	if v, ok := m[k]; ok {
		return v
	}
	return fallback + k
}

// Format renders the day's lessons. Week "2" is the even week.
func Format(day time.Time, week string, lessons []Lesson) string {
	parity := "odd week"
	if week == "2" {
		parity = "even week"
	}
	parts := []tgui.H{
		tgui.Raw("😸 Today's classes"),
		tgui.Esc(day.Weekday().String() + ", " + parity),
		"",
	}
	for _, l := range lessons {
		parts = append(parts, formatLesson(l), "")
	}
	return strings.TrimSpace(tgui.Lines(parts...).String())
}

func formatLesson(l Lesson) tgui.H {
	info := []string{l.Subject, l.Type, l.Form}
	if l.Teacher != "" {
		info = append(info, l.Teacher)
	}
	if l.Auditorium != "" {
		info = append(info, "room "+l.Auditorium)
	}
	return tgui.Lines(
		tgui.B(l.Start+" – "+l.End+":"),
		tgui.Esc(strings.Join(info, ", ")),
	)
}

// Service combines a Source with the timetable formatting.
type Service struct {
	src Source
	loc *time.Location
}

func NewService(src Source, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{src: src, loc: loc}
}

// Today returns the formatted timetable for now's date. ok is false
// when there are no classes.
func (s *Service) Today(ctx context.Context, now time.Time) (text string, ok bool, err error) {
	params, err := s.src.FetchParams(ctx)
	if err != nil {
		return "", false, err
	}
	objs, err := s.src.FetchSchedule(ctx)
	if err != nil {
		return "", false, err
	}
	day := now.In(s.loc)
	week := string(params.Week)
	lessons := Build(objs, week, WeekdayCode(day.Weekday()))
	if len(lessons) == 0 {
		return "", false, nil
	}
	return Format(day, week, lessons), true, nil
}
