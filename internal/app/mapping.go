package app

import (
	"fmt"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/deadline"
	"remindbot/internal/events"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/schedule"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DSN:         cfg.Storage.DSN,
		BusyTimeout: config.DurationOr(cfg.Storage.BusyTimeout, 0),
	}
}

func mapNotifierConfig(cfg *config.Config, loc *time.Location) notifier.Config {
	return notifier.Config{
		RatePerSec:     cfg.Notifier.RatePerSec,
		Location:       loc,
		DisablePreview: cfg.Notifier.DisablePreview,
	}
}

func mapClientConfig(cfg *config.Config) deadline.ClientConfig {
	return deadline.ClientConfig{
		BaseURL:  cfg.API.URL,
		Token:    cfg.API.Token,
		Path:     cfg.API.DeadlinesPath,
		PageSize: cfg.API.PageSize,
		Timeout:  config.DurationOr(cfg.API.Timeout, 30*time.Second),
	}
}

func mapScheduleConfig(cfg *config.Config) schedule.ClientConfig {
	return schedule.ClientConfig{
		ParamsURL:   cfg.Schedule.ParamsURL,
		ScheduleURL: cfg.Schedule.ScheduleURL,
	}
}

func mapEventsConfig(cfg *config.Config) events.Config {
	return events.Config{
		Brokers:       cfg.Events.Brokers,
		Topic:         cfg.Events.Topic,
		GroupID:       cfg.Events.GroupID,
		DefaultChatID: cfg.Telegram.ChatID,
	}
}

// buildRegistry uses the configured thresholds, or the defaults when none are set.
func buildRegistry(cfg *config.Config) (*reminder.Registry, error) {
	if len(cfg.Reminders.Thresholds) == 0 {
		return reminder.NewRegistry(reminder.DefaultThresholds()...)
	}
	ts := make([]reminder.Threshold, 0, len(cfg.Reminders.Thresholds))
	for _, t := range cfg.Reminders.Thresholds {
		ts = append(ts, reminder.Threshold{Value: t.Value, Unit: reminder.Unit(t.Unit), Title: t.Title})
	}
	reg, err := reminder.NewRegistry(ts...)
	if err != nil {
		return nil, fmt.Errorf("reminders.thresholds: %w", err)
	}
	return reg, nil
}
