package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"remindbot/pkg/logx"
)

func openTestStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	out := map[string]Store{}

	fs, err := Open(ctx, Config{Driver: "file", Path: filepath.Join(dir, "remind.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	out["file"] = fs

	ss, err := Open(ctx, Config{Driver: "sqlite", Path: filepath.Join(dir, "remind.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	out["sqlite"] = ss

	if dsn := os.Getenv("REMINDBOT_TEST_POSTGRES_DSN"); dsn != "" {
		ps, err := Open(ctx, Config{Driver: "postgres", DSN: dsn}, logx.Nop())
		if err != nil {
			t.Fatalf("open postgres store: %v", err)
		}
		out["postgres"] = ps
	}
	t.Cleanup(func() {
		for _, s := range out {
			_ = s.Close()
		}
	})
	return out
}

func TestStoresRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, s := range openTestStores(t) {
		empty, err := s.LoadReminders(ctx)
		if err != nil {
			t.Fatalf("%s: load empty: %v", name, err)
		}
		if len(empty) != 0 {
			t.Fatalf("%s: fresh store = %v, want empty", name, empty)
		}

		want := map[string][]int64{
			"0_minute": {30, 10, 20},
			"1_hour":   {10},
			"legacy":   {999},
		}
		if err := s.SaveReminders(ctx, want); err != nil {
			t.Fatalf("%s: save: %v", name, err)
		}
		got, err := s.LoadReminders(ctx)
		if err != nil {
			t.Fatalf("%s: load: %v", name, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("%s: round trip = %v, want %v", name, got, want)
		}

		next := map[string][]int64{"0_minute": {30}}
		if err := s.SaveReminders(ctx, next); err != nil {
			t.Fatalf("%s: overwrite: %v", name, err)
		}
		got, _ = s.LoadReminders(ctx)
		if !reflect.DeepEqual(got, next) {
			t.Fatalf("%s: overwrite = %v, want full replace %v", name, got, next)
		}
		if err := s.Ping(ctx); err != nil {
			t.Fatalf("%s: ping: %v", name, err)
		}
	}
}

func TestFileStoreReadsLegacyFormat(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data", "remind.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"0_minute":[1,2],"1_hour":[]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Open(context.Background(), Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := s.LoadReminders(context.Background())
	if err != nil {
		t.Fatalf("LoadReminders: %v", err)
	}
	want := map[string][]int64{"0_minute": {1, 2}, "1_hour": {}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("state = %v, want %v", got, want)
	}
}

func TestFileStoreCorrupt(t *testing.T) {
	t.Parallel()
	for _, body := range []string{"{not json", "", `{"0_minute":"x"}`} {
		path := filepath.Join(t.TempDir(), "remind.json")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		s, err := Open(context.Background(), Config{Driver: "file", Path: path}, logx.Nop())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		_, err = s.LoadReminders(context.Background())
		var corrupt *CorruptError
		if !errors.As(err, &corrupt) {
			t.Fatalf("body %q: err = %v, want CorruptError", body, err)
		}
		b, _ := os.ReadFile(path)
		if string(b) != body {
			t.Fatalf("corrupt file was modified: %q", b)
		}
	}
}

func TestFileStoreSaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := Open(context.Background(), Config{Path: filepath.Join(dir, "remind.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.SaveReminders(context.Background(), map[string][]int64{"0_minute": {int64(i)}}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "remind.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("dir entries = %v, want only remind.json", names)
	}
}

func TestSQLStoresDropRepeatedIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "r.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if err := s.SaveReminders(ctx, map[string][]int64{"1_hour": {5, 6, 5}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := s.LoadReminders(ctx)
	if !reflect.DeepEqual(got, map[string][]int64{"1_hour": {5, 6}}) {
		t.Fatalf("state = %v", got)
	}
}

func TestOpenDrivers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	if _, err := Open(ctx, Config{Driver: "none"}, logx.Nop()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("none: err = %v, want ErrDisabled", err)
	}
	if _, err := Open(ctx, Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should fail")
	}
	if _, err := Open(ctx, Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("file driver without path should fail")
	}
	if _, err := Open(ctx, Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("postgres driver without dsn should fail")
	}
}
