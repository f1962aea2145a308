package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerWithAppliesFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := FromZerolog(zerolog.New(&buf)).With(String("comp", "reminder"))
	log.Info("tick done", Int("batches", 2))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if m["comp"] != "reminder" {
		t.Fatalf("comp = %v, want reminder", m["comp"])
	}
	if m["batches"] != float64(2) {
		t.Fatalf("batches = %v, want 2", m["batches"])
	}
	if m["message"] != "tick done" {
		t.Fatalf("message = %v", m["message"])
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Error("ignored")
	if l.With(String("k", "v")).IsZero() {
		t.Fatal("logger with fields is not zero")
	}
}

func TestFormatTelegramLine(t *testing.T) {
	t.Parallel()
	line := `{"level":"error","time":"x","message":"tick failed","job":"reminders","err":"boom"}`
	got := formatTelegramLine([]byte(line))
	want := "[ERROR] tick failed\n- err=boom\n- job=reminders"
	if got != want {
		t.Fatalf("formatTelegramLine = %q, want %q", got, want)
	}

	raw := formatTelegramLine([]byte("  not json  "))
	if raw != "not json" {
		t.Fatalf("raw fallback = %q", raw)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	if parseLevel("warning", zerolog.InfoLevel) != zerolog.WarnLevel {
		t.Fatal("warning should map to warn")
	}
	if parseLevel("bogus", zerolog.DebugLevel) != zerolog.DebugLevel {
		t.Fatal("unknown level should use default")
	}
	if !strings.EqualFold(parseLevel(" debug ", zerolog.InfoLevel).String(), "debug") {
		t.Fatal("whitespace should be trimmed")
	}
}
