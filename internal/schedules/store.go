package schedules

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_schedules (
	chat_id    INTEGER PRIMARY KEY,
	weekday    INTEGER NOT NULL,
	hour       INTEGER NOT NULL,
	minute     INTEGER NOT NULL,
	timezone   TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS job_runs (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id   INTEGER NOT NULL,
	action    TEXT NOT NULL,
	week      TEXT NOT NULL,
	status    TEXT NOT NULL,
	detail    TEXT NOT NULL DEFAULT '',
	run_at    DATETIME NOT NULL,
	run_count INTEGER NOT NULL DEFAULT 1,
	UNIQUE(chat_id, action, week)
);
CREATE INDEX IF NOT EXISTS idx_job_runs_run_at ON job_runs(run_at);
`

const (
	StatusDone    = "done"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Run is the latest outcome of one action for a chat and week.
type Run struct {
	ChatID   int64
	Action   string
	Week     string
	Status   string
	Detail   string
	RunAt    time.Time
	RunCount int
}

// Store persists chat schedules and the job-run ledger.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure schedule db dir: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open schedule db: %w", err)
	}
	// one connection keeps writes serialised inside the process
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Upsert stores sc, replacing any schedule of the same chat.
func (s *Store) Upsert(sc Schedule) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	if sc.UpdatedAt.IsZero() {
		sc.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO chat_schedules (chat_id, weekday, hour, minute, timezone, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			weekday = excluded.weekday,
			hour = excluded.hour,
			minute = excluded.minute,
			timezone = excluded.timezone,
			updated_at = excluded.updated_at`,
		sc.ChatID, int(sc.Day), sc.Hour, sc.Minute, sc.Timezone, sc.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert schedule %d: %w", sc.ChatID, err)
	}
	return nil
}

func (s *Store) Get(chatID int64) (Schedule, bool, error) {
	var sc Schedule
	var day int
	err := s.db.QueryRow(`SELECT chat_id, weekday, hour, minute, timezone, updated_at
		FROM chat_schedules WHERE chat_id = ?`, chatID).
		Scan(&sc.ChatID, &day, &sc.Hour, &sc.Minute, &sc.Timezone, &sc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, false, nil
	}
	if err != nil {
		return Schedule{}, false, fmt.Errorf("get schedule %d: %w", chatID, err)
	}
	sc.Day = time.Weekday(day)
	return sc, true, nil
}

func (s *Store) List() ([]Schedule, error) {
	rows, err := s.db.Query(`SELECT chat_id, weekday, hour, minute, timezone, updated_at
		FROM chat_schedules ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		var sc Schedule
		var day int
		if err := rows.Scan(&sc.ChatID, &day, &sc.Hour, &sc.Minute, &sc.Timezone, &sc.UpdatedAt); err != nil {
			return nil, err
		}
		sc.Day = time.Weekday(day)
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Delete removes a chat's schedule and reports whether one existed.
func (s *Store) Delete(chatID int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM chat_schedules WHERE chat_id = ?`, chatID)
	if err != nil {
		return false, fmt.Errorf("delete schedule %d: %w", chatID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RecordRun inserts or updates the ledger row for (chat, action, week).
func (s *Store) RecordRun(r Run) error {
	if r.RunAt.IsZero() {
		r.RunAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO job_runs (chat_id, action, week, status, detail, run_at, run_count)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(chat_id, action, week) DO UPDATE SET
			status = excluded.status,
			detail = excluded.detail,
			run_at = excluded.run_at,
			run_count = job_runs.run_count + 1`,
		r.ChatID, r.Action, r.Week, r.Status, r.Detail, r.RunAt.UTC())
	return err
}

func (s *Store) LastRun(chatID int64, action, week string) (Run, bool, error) {
	var r Run
	err := s.db.QueryRow(`SELECT chat_id, action, week, status, detail, run_at, run_count
		FROM job_runs WHERE chat_id = ? AND action = ? AND week = ?`, chatID, action, week).
		Scan(&r.ChatID, &r.Action, &r.Week, &r.Status, &r.Detail, &r.RunAt, &r.RunCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("get run: %w", err)
	}
	return r, true, nil
}

// Runs returns the most recent ledger rows, newest first.
func (s *Store) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT chat_id, action, week, status, detail, run_at, run_count
		FROM job_runs ORDER BY run_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ChatID, &r.Action, &r.Week, &r.Status, &r.Detail, &r.RunAt, &r.RunCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
