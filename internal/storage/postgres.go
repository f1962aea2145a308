package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"remindbot/pkg/logx"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS reminder_sent (
	threshold_id TEXT   NOT NULL,
	deadline_id  BIGINT NOT NULL,
	seq          INT    NOT NULL,
	PRIMARY KEY (threshold_id, deadline_id)
)`

type postgresStore struct {
	db  *pgxpool.Pool
	log logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return &postgresStore{db: pool, log: log}, nil
}

func (s *postgresStore) LoadReminders(ctx context.Context) (map[string][]int64, error) {
	const query = `
		SELECT threshold_id, deadline_id
		FROM reminder_sent
		ORDER BY threshold_id, seq
	`
	rs, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rs.Close()

	state := map[string][]int64{}
	for rs.Next() {
		var th string
		var id int64
		if err := rs.Scan(&th, &id); err != nil {
			return nil, &CorruptError{Where: "postgres reminder_sent", Err: err}
		}
		state[th] = append(state[th], id)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return state, nil
}

func (s *postgresStore) SaveReminders(ctx context.Context, state map[string][]int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM reminder_sent`); err != nil {
		return fmt.Errorf("clear reminder state: %w", err)
	}
	rs := rows(state)
	src := make([][]any, 0, len(rs))
	for _, r := range rs {
		src = append(src, []any{r.threshold, r.deadline, r.seq})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"reminder_sent"}, []string{"threshold_id", "deadline_id", "seq"}, pgx.CopyFromRows(src)); err != nil {
		return fmt.Errorf("copy reminder state: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *postgresStore) Close() error {
	s.db.Close()
	return nil
}
