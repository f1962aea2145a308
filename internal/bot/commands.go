package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/deadline"
	"remindbot/internal/digest"
	"remindbot/internal/notifier"
	"remindbot/pkg/tgui"
)

const activeTitle = "‼️ Active deadlines:"

func (b *Bot) builtin() []Command {
	return []Command{
		{Name: "deadlines", Aliases: []string{"list"}, Description: "list active deadlines", Usage: "/deadlines [page]", Timeout: 30 * time.Second, Handle: b.cmdDeadlines},
		{Name: "today", Description: "deadlines due today", Usage: "/today", Timeout: 30 * time.Second, Handle: b.cmdToday},
		{Name: "week", Description: "deadlines for the next week", Usage: "/week", Timeout: 30 * time.Second, Handle: b.cmdWeek},
		{Name: "schedule", Description: "today's classes", Usage: "/schedule", Timeout: 30 * time.Second, Handle: b.cmdSchedule},
		{Name: "status", Description: "bot status", Usage: "/status", Timeout: 10 * time.Second, Handle: b.cmdStatus},
		{Name: "help", Aliases: []string{"start"}, Description: "show help", Usage: "/help", Handle: b.cmdHelp},
	}
}

// chatDeadlines returns the active deadlines that belong to chat.
func (b *Bot) chatDeadlines(ctx context.Context, chat int64) ([]deadline.Deadline, time.Time, error) {
	ds, err := b.d.Source.FetchDeadlines(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	now := b.d.Now()
	groups := deadline.GroupByChat(deadline.Active(ds, now), b.cfg.DefaultChatID, activeTitle)
	return digest.ForChat(groups, chat), now, nil
}

func (b *Bot) sourceDown(ctx context.Context, req *Request, err error) error {
	b.reply(ctx, req.Chat, "the deadline service is unavailable, try again later")
	return err
}

func (b *Bot) cmdDeadlines(ctx context.Context, req *Request) error {
	page := 1
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n < 1 {
			b.reply(ctx, req.Chat, "usage: "+string(tgui.Code("/deadlines [page]")))
			return nil
		}
		page = n
	}
	ds, now, err := b.chatDeadlines(ctx, req.Chat.ChatID)
	if err != nil {
		return b.sourceDown(ctx, req, err)
	}

	p := tgui.Paginate(ds, page-1, b.pageSize())
	parts := []tgui.H{
		tgui.B(activeTitle),
		tgui.Raw(notifier.RenderList(p.Items, p.Offset, now, b.cfg.Location)),
		"",
		tgui.I(p.Label()),
	}
	if p.HasNext() {
		parts = append(parts, tgui.Esc(fmt.Sprintf("next: /deadlines %d", p.Index+2)))
	}
	b.reply(ctx, req.Chat, tgui.Lines(parts...).String())
	return nil
}

func (b *Bot) cmdToday(ctx context.Context, req *Request) error {
	return b.digest(ctx, req, digest.TodayTitle, b.d.Digest.Today)
}

func (b *Bot) cmdWeek(ctx context.Context, req *Request) error {
	return b.digest(ctx, req, digest.NextWeekTitle, b.d.Digest.NextWeek)
}

func (b *Bot) digest(ctx context.Context, req *Request, title string, build func([]deadline.Deadline, time.Time) []deadline.Batch) error {
	ds, err := b.d.Source.FetchDeadlines(ctx)
	if err != nil {
		return b.sourceDown(ctx, req, err)
	}
	now := b.d.Now()
	batch := deadline.Batch{ChatID: req.Chat.ChatID, Title: title, Deadlines: digest.ForChat(build(ds, now), req.Chat.ChatID)}
	b.reply(ctx, req.Chat, notifier.RenderBatch(batch, now, b.cfg.Location))
	return nil
}

func (b *Bot) cmdSchedule(ctx context.Context, req *Request) error {
	if b.d.Timetable == nil {
		b.reply(ctx, req.Chat, "the class schedule is not configured")
		return nil
	}
	text, ok, err := b.d.Timetable.Today(ctx, b.d.Now())
	if err != nil {
		b.reply(ctx, req.Chat, "the schedule service is unavailable, try again later")
		return err
	}
	if !ok {
		b.reply(ctx, req.Chat, "no classes today 🎉")
		return nil
	}
	b.reply(ctx, req.Chat, text)
	return nil
}

func (b *Bot) cmdStatus(ctx context.Context, req *Request) error {
	now := b.d.Now()
	lines := []tgui.H{
		tgui.B("status"),
		tgui.Esc("uptime: " + now.Sub(b.started).Truncate(time.Second).String()),
	}

	if b.d.State != nil {
		state, err := b.d.State.LoadReminders(ctx)
		if err != nil {
			lines = append(lines, tgui.Esc("reminder state: unavailable ("+err.Error()+")"))
		} else {
			ids := b.d.Thresholds
			if len(ids) == 0 {
				for id := range state {
					ids = append(ids, id)
				}
				sort.Strings(ids)
			}
			for _, id := range ids {
				lines = append(lines, tgui.Raw("• ")+tgui.Code(id)+tgui.Esc(": "+strconv.Itoa(len(state[id]))+" notified"))
			}
		}
	}

	if b.d.Jobs != nil {
		snap := b.d.Jobs.Snapshot()
		lines = append(lines, "", tgui.B("jobs"))
		for _, s := range snap.Schedules {
			line := s.Name + " (" + s.Spec + ")"
			if !s.Next.IsZero() {
				line += " next " + s.Next.In(b.cfg.Location).Format("02.01 15:04")
			}
			if s.Running {
				line += " running"
			}
			lines = append(lines, tgui.Raw("• ")+tgui.Esc(line))
		}
	}
	b.reply(ctx, req.Chat, tgui.Lines(lines...).String())
	return nil
}

func (b *Bot) cmdHelp(ctx context.Context, req *Request) error {
	b.mu.RLock()
	lines := make([]tgui.H, 0, len(b.order)+1)
	lines = append(lines, tgui.B("commands"))
	for _, c := range b.order {
		lines = append(lines, tgui.Code(c.Usage)+tgui.Esc(" - "+c.Description))
	}
	b.mu.RUnlock()
	b.reply(ctx, req.Chat, strings.TrimSpace(tgui.Lines(lines...).String()))
	return nil
}
