package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv reads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// overlayEnv copies recognised variables onto cfg.
func overlayEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var firstErr error
	i64 := func(key string, dst *int64) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", key, err)
			return
		}
		*dst = n
	}
	num := func(key string, dst *int) {
		n := int64(*dst)
		i64(key, &n)
		*dst = int(n)
	}

	str("BOT_TOKEN", &cfg.Telegram.Token)
	i64("CHAT_ID", &cfg.Telegram.ChatID)
	i64("OPERATOR_CHAT_ID", &cfg.Telegram.OperatorChatID)
	str("API_URL", &cfg.API.URL)
	str("API_TOKEN", &cfg.API.Token)
	num("COUNT_PER_PAGE", &cfg.Bot.CountPerPage)
	str("TIMEZONE", &cfg.Timezone)
	str("STORAGE_DRIVER", &cfg.Storage.Driver)
	str("STORAGE_PATH", &cfg.Storage.Path)
	str("DATABASE_URL", &cfg.Storage.DSN)
	str("KAFKA_TOPIC", &cfg.Events.Topic)
	if v, ok := lookup("KAFKA_BROKERS"); ok && strings.TrimSpace(v) != "" {
		cfg.Events.Brokers = splitList(v)
		cfg.Events.Enabled = true
	}
	str("HTTP_ADDR", &cfg.HTTP.Addr)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("ETU_PARAMS_URL", &cfg.Schedule.ParamsURL)
	str("ETU_SCHEDULE_URL", &cfg.Schedule.ScheduleURL)
	return firstErr
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
