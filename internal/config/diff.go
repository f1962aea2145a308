package config

import (
	"reflect"
	"strings"

	"remindbot/pkg/logx"
)

// SummarizeConfigChange lists changed sections plus safe attrs for logging.
// Tokens and DSNs are reported only as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var changed []string
	var attrs []logx.Field
	section := func(name string, differs bool, fields ...logx.Field) {
		if differs {
			changed = append(changed, name)
			attrs = append(attrs, fields...)
		}
	}

	section("telegram",
		oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID ||
			oldCfg.Telegram.OperatorChatID != newCfg.Telegram.OperatorChatID ||
			oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout ||
			oldCfg.Telegram.Token != newCfg.Telegram.Token,
		logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
		logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
	)
	section("api",
		oldCfg.API.URL != newCfg.API.URL || oldCfg.API.Token != newCfg.API.Token ||
			oldCfg.API.DeadlinesPath != newCfg.API.DeadlinesPath || oldCfg.API.PageSize != newCfg.API.PageSize ||
			oldCfg.API.Timeout != newCfg.API.Timeout,
		logx.String("api.url", newCfg.API.URL),
		logx.Bool("api.token_set", strings.TrimSpace(newCfg.API.Token) != ""),
	)
	section("reminders", !reflect.DeepEqual(oldCfg.Reminders, newCfg.Reminders),
		logx.Int("reminders.thresholds", len(newCfg.Reminders.Thresholds)),
	)
	section("bot", oldCfg.Bot != newCfg.Bot, logx.Int("bot.count_per_page", newCfg.Bot.CountPerPage))
	section("schedule", oldCfg.Schedule != newCfg.Schedule, logx.Bool("schedule.enabled", newCfg.Schedule.Enabled))
	section("notifier", oldCfg.Notifier != newCfg.Notifier, logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec))
	section("storage",
		oldCfg.Storage.Driver != newCfg.Storage.Driver || oldCfg.Storage.Path != newCfg.Storage.Path ||
			oldCfg.Storage.DSN != newCfg.Storage.DSN || oldCfg.Storage.BusyTimeout != newCfg.Storage.BusyTimeout,
		logx.String("storage.driver", newCfg.Storage.Driver),
		logx.String("storage.path", newCfg.Storage.Path),
		logx.Bool("storage.dsn_set", newCfg.Storage.DSN != ""),
	)
	section("events", !reflect.DeepEqual(oldCfg.Events, newCfg.Events),
		logx.Bool("events.enabled", newCfg.Events.Enabled),
		logx.String("events.topic", newCfg.Events.Topic),
	)
	section("http", oldCfg.HTTP != newCfg.HTTP,
		logx.Bool("http.enabled", newCfg.HTTP.Enabled),
		logx.String("http.addr", newCfg.HTTP.Addr),
	)
	section("logging", oldCfg.Logging != newCfg.Logging,
		logx.String("logging.level", newCfg.Logging.Level),
		logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
	)
	section("timezone", oldCfg.Timezone != newCfg.Timezone, logx.String("timezone", newCfg.Timezone))
	return changed, attrs
}

// RestartRequired reports sections that only take effect after a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "telegram", "api", "reminders", "schedule", "storage", "events", "http", "timezone":
			out = append(out, s)
		}
	}
	return out
}
