package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"remindbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsSQL string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = FULL")

	if _, err := db.ExecContext(ctx, migrationsSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) LoadReminders(ctx context.Context) (map[string][]int64, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rs, err := s.db.QueryContext(ctx, `SELECT threshold_id, deadline_id FROM reminder_sent ORDER BY threshold_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("load reminder state: %w", err)
	}
	defer rs.Close()

	state := map[string][]int64{}
	for rs.Next() {
		var th string
		var id int64
		if err := rs.Scan(&th, &id); err != nil {
			return nil, &CorruptError{Where: "sqlite reminder_sent", Err: err}
		}
		state[th] = append(state[th], id)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("load reminder state: %w", err)
	}
	return state, nil
}

func (s *sqliteStore) SaveReminders(ctx context.Context, state map[string][]int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reminder_sent`); err != nil {
		return fmt.Errorf("clear reminder state: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO reminder_sent(threshold_id, deadline_id, seq) VALUES(?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows(state) {
		if _, err := stmt.ExecContext(ctx, r.threshold, r.deadline, r.seq); err != nil {
			return fmt.Errorf("insert reminder state: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
