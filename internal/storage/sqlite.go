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
	"sync/atomic"
	"time"

	logx "slotwatch/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrations string

// runsKeep bounds the runs table; older rows are pruned every pruneEvery inserts.
const runsKeep = 5000

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 100}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migrations)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Exists(ctx context.Context) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshot WHERE id = 1`).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) Load(ctx context.Context) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM snapshot WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (s *sqliteStore) Save(ctx context.Context, doc []byte) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if doc == nil {
		doc = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshot(id, body, saved_at) VALUES(1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET body=excluded.body, saved_at=excluded.saved_at`,
		doc, time.Now().Format(time.RFC3339Nano),
	)
	if err == nil {
		s.log.Debug("snapshot saved", logx.Int("bytes", len(doc)))
	}
	return err
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(at, took_ms, first_run, dry_run, doc_hash, old_slots, new_slots, added, notifiable, messages, chunks, failed, saved, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.At.Format(time.RFC3339Nano), r.TookMS, r.FirstRun, r.DryRun, nullStr(r.DocHash),
		r.OldSlots, r.NewSlots, r.Added, r.Notifiable, r.Messages, r.Chunks, r.Failed, r.Saved, nullStr(r.Error),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		if perr := s.pruneRuns(pctx); perr != nil {
			s.log.Debug("runs prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

// Runs returns the most recent run records, newest first.
func (s *sqliteStore) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, took_ms, first_run, dry_run, COALESCE(doc_hash, ''), old_slots, new_slots, added, notifiable, messages, chunks, failed, saved, COALESCE(err, '')
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r  RunRecord
			at string
		)
		if err := rows.Scan(&at, &r.TookMS, &r.FirstRun, &r.DryRun, &r.DocHash, &r.OldSlots, &r.NewSlots,
			&r.Added, &r.Notifiable, &r.Messages, &r.Chunks, &r.Failed, &r.Saved, &r.Error); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) pruneRuns(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id <= (SELECT COALESCE(MAX(id), 0) FROM runs) - ?`, runsKeep)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
