package config

// Config is the full bot configuration. File values are overlaid by
// environment variables (see env.go) before validation.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	API       APIConfig       `json:"api"`
	Reminders RemindersConfig `json:"reminders"`
	Bot       BotConfig       `json:"bot"`
	Schedule  ScheduleConfig  `json:"schedule"`
	Notifier  NotifierConfig  `json:"notifier"`
	Storage   StorageConfig   `json:"storage"`
	Events    EventsConfig    `json:"events"`
	HTTP      HTTPConfig      `json:"http"`
	Logging   LoggingConfig   `json:"logging"`

	// Timezone names the location used for calendar dates and cron triggers.
	Timezone string `json:"timezone,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// ChatID receives deadlines that carry no chat of their own.
	ChatID int64 `json:"chat_id"`
	// OperatorChatID receives error reports; 0 falls back to ChatID.
	OperatorChatID int64 `json:"operator_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// APIConfig points at the records API that serves deadlines.
type APIConfig struct {
	URL           string `json:"url"`
	Token         string `json:"token"`
	DeadlinesPath string `json:"deadlines_path,omitempty"` // default "/api/deadlines"
	PageSize      int    `json:"page_size,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
}

// RemindersConfig overrides the threshold list. Empty means the defaults
// (0 minute, 1 hour). Changing ids orphans their stored history.
type RemindersConfig struct {
	Thresholds []ThresholdConfig `json:"thresholds,omitempty"`
}

type ThresholdConfig struct {
	Value int    `json:"value"`
	Unit  string `json:"unit"`
	Title string `json:"title"`
}

type BotConfig struct {
	// CountPerPage is the /deadlines page size.
	CountPerPage int `json:"count_per_page,omitempty"`
}

// ScheduleConfig enables the class timetable feature.
type ScheduleConfig struct {
	Enabled bool `json:"enabled"`
	// ParamsURL returns the current week parity.
	ParamsURL string `json:"params_url,omitempty"`
	// ScheduleURL returns the group's lesson list.
	ScheduleURL string `json:"schedule_url,omitempty"`
}

type NotifierConfig struct {
	RatePerSec     int  `json:"rate_per_sec,omitempty"`
	DisablePreview bool `json:"disable_preview,omitempty"`
}

// StorageConfig selects the reminder state backend.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/remind.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // postgres
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite, Go duration string
}

// EventsConfig enables the new-deadline announcements consumer.
type EventsConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers,omitempty"`
	Topic   string   `json:"topic,omitempty"`
	GroupID string   `json:"group_id,omitempty"`
}

// HTTPConfig controls the ops HTTP server. Prefer a loopback address.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:9090"
	// Pprof mounts the runtime profiler under /debug.
	Pprof bool `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

const (
	DefaultCountPerPage = 20
	DefaultHTTPAddr     = "127.0.0.1:9090"
	DefaultStoragePath  = "./data/remind.json"
	DefaultKafkaTopic   = "deadlines"
	DefaultKafkaGroup   = "remindbot"
)

// ApplyDefaults fills zero values in place.
func (c *Config) ApplyDefaults() {
	if c.Bot.CountPerPage <= 0 {
		c.Bot.CountPerPage = DefaultCountPerPage
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Path == "" && c.Storage.Driver != "postgres" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.Events.Topic == "" {
		c.Events.Topic = DefaultKafkaTopic
	}
	if c.Events.GroupID == "" {
		c.Events.GroupID = DefaultKafkaGroup
	}
	if c.Telegram.OperatorChatID == 0 {
		c.Telegram.OperatorChatID = c.Telegram.ChatID
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
