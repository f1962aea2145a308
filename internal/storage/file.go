package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"remindbot/pkg/logx"
)

// fileStore keeps the whole state in one JSON object:
//
//	{"0_minute":[12,15],"1_hour":[12,15,16]}
//
// Saves go to a temp file in the same directory which is synced and
// renamed over the target, so readers see either the old or the new state.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) LoadReminders(ctx context.Context) (map[string][]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string][]int64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reminder state: %w", err)
	}
	state := map[string][]int64{}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil, &CorruptError{Where: s.path, Err: errors.New("empty file")}
	}
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, &CorruptError{Where: s.path, Err: err}
	}
	if state == nil {
		// literal "null"
		state = map[string][]int64{}
	}
	return state, nil
}

func (s *fileStore) SaveReminders(ctx context.Context, state map[string][]int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state == nil {
		state = map[string][]int64{}
	}
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace state: %w", err)
	}
	if d, err := os.Open(dir); err == nil {
		if err := d.Sync(); err != nil {
			s.log.Debug("state dir sync failed", logx.Err(err))
		}
		_ = d.Close()
	}
	return nil
}

func (s *fileStore) Ping(ctx context.Context) error {
	_ = ctx
	_, err := os.Stat(filepath.Dir(s.path))
	return err
}

func (s *fileStore) Close() error { return nil }
