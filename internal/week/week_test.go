package week

import (
	"testing"
	"time"
	_ "time/tzdata"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestID(t *testing.T) {
	msk := mustLoc(t, "Europe/Moscow")
	cases := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2026, 10, 16, 15, 0, 0, 0, msk), "2026-W42"},
		{time.Date(2026, 10, 12, 0, 0, 0, 0, msk), "2026-W42"},
		{time.Date(2021, 1, 3, 23, 59, 0, 0, msk), "2020-W53"},
		{time.Date(2024, 12, 30, 8, 0, 0, 0, msk), "2025-W01"},
	}
	for _, c := range cases {
		if got := ID(c.at, msk); got != c.want {
			t.Fatalf("ID(%v) = %s, want %s", c.at, got, c.want)
		}
	}
}

func TestID_UsesLocalCalendar(t *testing.T) {
	msk := mustLoc(t, "Europe/Moscow")
	// Sunday 22:00 UTC is already Monday 01:00 in Moscow.
	at := time.Date(2026, 10, 18, 22, 0, 0, 0, time.UTC)
	if got := ID(at, time.UTC); got != "2026-W42" {
		t.Fatalf("utc week: %s", got)
	}
	if got := ID(at, msk); got != "2026-W43" {
		t.Fatalf("moscow week: %s", got)
	}
}

func TestBounds_StartBelongsToWeek(t *testing.T) {
	msk := mustLoc(t, "Europe/Moscow")
	start, end, err := Bounds("2026-W42", msk)
	if err != nil {
		t.Fatalf("bounds: %v", err)
	}
	if !start.Equal(time.Date(2026, 10, 12, 0, 0, 0, 0, msk)) {
		t.Fatalf("unexpected start: %v", start)
	}
	if !end.Equal(time.Date(2026, 10, 19, 0, 0, 0, 0, msk)) {
		t.Fatalf("unexpected end: %v", end)
	}
	if got := ID(start, msk); got != "2026-W42" {
		t.Fatalf("start belongs to %s", got)
	}
	if got := ID(start.Add(-time.Microsecond), msk); got != "2026-W41" {
		t.Fatalf("start-1µs belongs to %s", got)
	}
	if got := ID(end, msk); got != "2026-W43" {
		t.Fatalf("end belongs to %s", got)
	}
}

func TestBounds_YearBoundary(t *testing.T) {
	start, end, err := Bounds("2020-W53", time.UTC)
	if err != nil {
		t.Fatalf("bounds: %v", err)
	}
	if !start.Equal(time.Date(2020, 12, 28, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected range %v - %v", start, end)
	}
	start, _, err = Bounds("2025-W01", time.UTC)
	if err != nil {
		t.Fatalf("bounds: %v", err)
	}
	if !start.Equal(time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("2025-W01 starts %v", start)
	}
}

func TestBounds_DST(t *testing.T) {
	ber := mustLoc(t, "Europe/Berlin")
	// clocks go forward on 2026-03-29
	start, end, err := Bounds("2026-W13", ber)
	if err != nil {
		t.Fatalf("bounds: %v", err)
	}
	if d := end.Sub(start); d != 167*time.Hour {
		t.Fatalf("spring week length = %v", d)
	}
	if end.Hour() != 0 || end.Weekday() != time.Monday {
		t.Fatalf("end not at local midnight: %v", end)
	}
	// clocks go back on 2026-10-25
	start, end, _ = Bounds("2026-W43", ber)
	if d := end.Sub(start); d != 169*time.Hour {
		t.Fatalf("autumn week length = %v", d)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, id := range []string{"", "2026-42", "2026-W54", "2025-W53", "2026-W00", "2026-U42", "26-W042", "2026-W+4"} {
		if _, _, err := Parse(id); err == nil {
			t.Fatalf("expected error for %q", id)
		}
	}
	if _, _, err := Parse("2020-W53"); err != nil {
		t.Fatalf("2020 has 53 weeks: %v", err)
	}
}

func TestPreviousNext(t *testing.T) {
	prev, err := Previous("2021-W01")
	if err != nil || prev != "2020-W53" {
		t.Fatalf("previous: %s %v", prev, err)
	}
	next, err := Next("2020-W53")
	if err != nil || next != "2021-W01" {
		t.Fatalf("next: %s %v", next, err)
	}
	prev, _ = Previous("2026-W42")
	if prev != "2026-W41" {
		t.Fatalf("previous: %s", prev)
	}
}

func TestStart(t *testing.T) {
	msk := mustLoc(t, "Europe/Moscow")
	got := Start(time.Date(2026, 10, 18, 23, 0, 0, 0, msk), msk)
	if !got.Equal(time.Date(2026, 10, 12, 0, 0, 0, 0, msk)) {
		t.Fatalf("start = %v", got)
	}
}
