package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var validUnits = map[string]bool{"minute": true, "hour": true, "day": true}

// Validate checks a parsed config. All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add("telegram.token (BOT_TOKEN) is required")
	}
	if cfg.Telegram.ChatID == 0 {
		add("telegram.chat_id (CHAT_ID) is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(cfg.API.URL) == "" {
		add("api.url (API_URL) is required")
	}
	if _, err := ParseDurationField("api.timeout", cfg.API.Timeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Location(); err != nil {
		errs = append(errs, err)
	}

	seen := map[string]bool{}
	for i, t := range cfg.Reminders.Thresholds {
		if t.Value < 0 {
			add("reminders.thresholds[%d]: value must be >= 0", i)
		}
		if !validUnits[t.Unit] {
			add("reminders.thresholds[%d]: unknown unit %q", i, t.Unit)
		}
		if strings.TrimSpace(t.Title) == "" {
			add("reminders.thresholds[%d]: title is required", i)
		}
		id := fmt.Sprintf("%d_%s", t.Value, t.Unit)
		if seen[id] {
			add("reminders.thresholds[%d]: duplicate id %q", i, id)
		}
		seen[id] = true
	}

	switch strings.ToLower(cfg.Storage.Driver) {
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add("storage.path is required for driver %q", cfg.Storage.Driver)
		}
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			add("storage.dsn (DATABASE_URL) is required for postgres")
		}
	default:
		add("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}

	if cfg.Schedule.Enabled && (cfg.Schedule.ParamsURL == "" || cfg.Schedule.ScheduleURL == "") {
		add("schedule: params_url and schedule_url are required when enabled")
	}
	if cfg.Events.Enabled && len(cfg.Events.Brokers) == 0 {
		add("events.brokers (KAFKA_BROKERS) is required when events are enabled")
	}
	if cfg.Notifier.RatePerSec < 0 {
		add("notifier.rate_per_sec must be >= 0")
	}
	return errors.Join(errs...)
}

// Location resolves Timezone; empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", tz, err)
	}
	return loc, nil
}
