// Package bot answers chat commands: deadline listings, on-demand digests,
// the class schedule and a status summary.
package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/deadline"
	"remindbot/internal/digest"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/task/scheduler"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

const (
	defaultWorkers  = 4
	defaultQueueCap = 64
)

type Request struct {
	Msg     transport.Message
	Chat    transport.ChatTarget
	Command string
	Args    []string
	ReqID   string
	Log     logx.Logger
}

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Timeout     time.Duration
	Handle      HandlerFunc
}

// Timetable produces the formatted class schedule for a day.
type Timetable interface {
	Today(ctx context.Context, now time.Time) (string, bool, error)
}

type StateLoader interface {
	LoadReminders(ctx context.Context) (map[string][]int64, error)
}

type JobsSnapshot interface {
	Snapshot() scheduler.Snapshot
}

type Config struct {
	DefaultChatID int64
	CountPerPage  int
	Location      *time.Location
}

type Deps struct {
	Sender    transport.Sender
	Source    deadline.Source
	Digest    *digest.Builder
	Timetable Timetable
	State     StateLoader
	Jobs      JobsSnapshot
	// Thresholds lists registered threshold ids for /status.
	Thresholds []string
	Log        logx.Logger
	Now        func() time.Time
}

type Bot struct {
	cfg Config
	d   Deps
	log logx.Logger

	mu       sync.RWMutex
	commands map[string]*Command
	order    []*Command
	started  time.Time

	jobs chan func()
}

func New(cfg Config, d Deps) (*Bot, error) {
	if d.Sender == nil || d.Source == nil || d.Digest == nil {
		return nil, errors.New("bot: sender, source and digest are required")
	}
	if cfg.CountPerPage <= 0 {
		cfg.CountPerPage = 20
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{
		cfg:     cfg,
		d:       d,
		log:     log.With(logx.String("comp", "bot")),
		started: d.Now(),
		jobs:    make(chan func(), defaultQueueCap),
	}
	b.setCommands(b.builtin())
	return b, nil
}

// SetPageSize updates the /deadlines page size after a config reload.
func (b *Bot) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	b.cfg.CountPerPage = n
	b.mu.Unlock()
}

func (b *Bot) pageSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg.CountPerPage
}

func (b *Bot) setCommands(cmds []Command) {
	m := map[string]*Command{}
	order := make([]*Command, 0, len(cmds))
	for i := range cmds {
		c := &cmds[i]
		m[c.Name] = c
		for _, a := range c.Aliases {
			m[a] = c
		}
		order = append(order, c)
	}
	b.mu.Lock()
	b.commands = m
	b.order = order
	b.mu.Unlock()
}

// Menu is the command list published to the chat platform.
func (b *Bot) Menu() []transport.BotCommand {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]transport.BotCommand, 0, len(b.order))
	for _, c := range b.order {
		out = append(out, transport.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

// parseCommand splits "/cmd@bot a b" into "cmd" and its args.
func parseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", nil, false
	}
	return strings.ToLower(word), parts[1:], true
}

// Handle routes one message synchronously. Non-command text is ignored.
func (b *Bot) Handle(ctx context.Context, msg transport.Message) {
	word, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	chat := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	b.mu.RLock()
	cmd := b.commands[word]
	b.mu.RUnlock()
	if cmd == nil {
		b.reply(ctx, chat, "unknown command, try /help")
		return
	}

	rid := uuid.NewString()[:8]
	req := &Request{
		Msg:     msg,
		Chat:    chat,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Log: b.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	final := Chain(cmd.Handle, MWPanicRecover(), MWRequestLog(), MWTimeout(cmd.Timeout))
	if err := final(ctx, req); err != nil {
		b.reply(ctx, chat, "something went wrong, the error has been logged")
	}
}

// DispatchLoop feeds incoming messages to a bounded worker pool until ctx
// is canceled or in is closed.
func (b *Bot) DispatchLoop(ctx context.Context, in <-chan transport.Message) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(b.log))
	for i := 0; i < defaultWorkers; i++ {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-b.jobs:
					job()
				}
			}
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	b.log.Info("command dispatcher started", logx.Int("workers", defaultWorkers))

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		b.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			if _, _, isCmd := parseCommand(msg.Text); !isCmd {
				continue
			}
			select {
			case b.jobs <- func() { b.Handle(sup.Context(), msg) }:
			default:
				b.reply(ctx, transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, "busy, try again")
			}
		}
	}
}

func (b *Bot) reply(ctx context.Context, to transport.ChatTarget, html string) {
	if _, err := b.d.Sender.SendText(ctx, to, html, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
		b.log.Warn("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}
