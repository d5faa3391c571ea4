package schedules

import (
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "schedules.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestParse(t *testing.T) {
	sc, err := Parse(-100, "Sunday", "10:00", "Europe/Moscow")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sc.Day != time.Sunday || sc.Hour != 10 || sc.Minute != 0 || sc.Clock() != "10:00" {
		t.Fatalf("unexpected schedule: %+v", sc)
	}
	if sc, err := Parse(1, "пт", "7:05", "UTC"); err != nil || sc.Day != time.Friday || sc.Minute != 5 {
		t.Fatalf("russian abbreviation: %+v %v", sc, err)
	}
	bad := [][3]string{
		{"someday", "10:00", "UTC"},
		{"sun", "25:00", "UTC"},
		{"sun", "10", "UTC"},
		{"sun", "10:00", "Nowhere/City"},
	}
	for _, b := range bad {
		if _, err := Parse(1, b[0], b[1], b[2]); err == nil {
			t.Fatalf("expected error for %v", b)
		}
	}
}

func TestStore_UpsertIsLastWriteWins(t *testing.T) {
	s := newTestStore(t)
	first, _ := Parse(-100, "sun", "10:00", "Europe/Moscow")
	if err := s.Upsert(first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, _ := Parse(-100, "sat", "09:30", "UTC")
	if err := s.Upsert(second); err != nil {
		t.Fatalf("upsert2: %v", err)
	}
	other, _ := Parse(-200, "mon", "08:00", "UTC")
	if err := s.Upsert(other); err != nil {
		t.Fatalf("upsert3: %v", err)
	}

	got, ok, err := s.Get(-100)
	if err != nil || !ok {
		t.Fatalf("get: %v %v", ok, err)
	}
	if got.Day != time.Saturday || got.Hour != 9 || got.Minute != 30 || got.Timezone != "UTC" {
		t.Fatalf("unexpected schedule: %+v", got)
	}
	all, err := s.List()
	if err != nil || len(all) != 2 || all[0].ChatID != -200 {
		t.Fatalf("list: %+v %v", all, err)
	}

	removed, err := s.Delete(-100)
	if err != nil || !removed {
		t.Fatalf("delete: %v %v", removed, err)
	}
	if _, ok, _ := s.Get(-100); ok {
		t.Fatalf("schedule still present")
	}
	if removed, _ := s.Delete(-100); removed {
		t.Fatalf("second delete reported removal")
	}
}

func TestStore_RejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	if err := s.Upsert(Schedule{ChatID: 1, Day: 9, Timezone: "UTC"}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestStore_RunLedger(t *testing.T) {
	s := newTestStore(t)
	if _, ok, err := s.LastRun(1, "publish", "2026-W42"); err != nil || ok {
		t.Fatalf("empty ledger: %v %v", ok, err)
	}
	at := time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC)
	if err := s.RecordRun(Run{ChatID: 1, Action: "publish", Week: "2026-W42", Status: StatusFailed, Detail: "timeout", RunAt: at}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordRun(Run{ChatID: 1, Action: "publish", Week: "2026-W42", Status: StatusDone, RunAt: at.Add(time.Minute)}); err != nil {
		t.Fatalf("record2: %v", err)
	}
	r, ok, err := s.LastRun(1, "publish", "2026-W42")
	if err != nil || !ok {
		t.Fatalf("last run: %v %v", ok, err)
	}
	if r.Status != StatusDone || r.RunCount != 2 || r.Detail != "" {
		t.Fatalf("unexpected run: %+v", r)
	}
	runs, err := s.Runs(10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("runs: %+v %v", runs, err)
	}
}
