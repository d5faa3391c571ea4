// Package week maps instants to ISO-8601 calendar weeks.
//
// A week runs from Monday 00:00 local time up to (but not including) the
// following Monday 00:00 and is identified as "YYYY-Www", e.g. "2026-W42".
// This is the only week naming used across the tracker.
package week

import (
	"fmt"
	"strconv"
	"time"
)

// ID returns the week identifier of t as observed in loc.
func ID(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	y, w := t.In(loc).ISOWeek()
	return format(y, w)
}

// Bounds returns the half-open range [start, end) of the week id in loc.
func Bounds(id string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	y, w, err := Parse(id)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	day := firstMonday(y) + (w-1)*7
	// time.Date normalises day overflow and applies the zone rules of each
	// civil date, so a DST change inside the week only shifts the end by the
	// real offset change.
	start := time.Date(y, time.January, day, 0, 0, 0, 0, loc)
	end := time.Date(y, time.January, day+7, 0, 0, 0, 0, loc)
	return start, end, nil
}

// Parse splits a week id into its ISO year and week number.
func Parse(id string) (int, int, error) {
	if len(id) != 8 || id[4] != '-' || id[5] != 'W' || !digits(id[:4]) || !digits(id[6:]) {
		return 0, 0, fmt.Errorf("invalid week id %q", id)
	}
	y, _ := strconv.Atoi(id[:4])
	w, _ := strconv.Atoi(id[6:])
	if w < 1 || w > WeeksInYear(y) {
		return 0, 0, fmt.Errorf("invalid week id %q: week out of range", id)
	}
	return y, w, nil
}

// Previous returns the id of the week before id.
func Previous(id string) (string, error) { return shift(id, -1) }

// Next returns the id of the week after id.
func Next(id string) (string, error) { return shift(id, 1) }

// WeeksInYear reports whether the ISO year y has 52 or 53 weeks.
func WeeksInYear(y int) int {
	_, w := time.Date(y, time.December, 28, 12, 0, 0, 0, time.UTC).ISOWeek()
	return w
}

// Start returns the Monday 00:00 of the week containing t in loc.
func Start(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	back := (int(lt.Weekday()) + 6) % 7
	return time.Date(lt.Year(), lt.Month(), lt.Day()-back, 0, 0, 0, 0, loc)
}

func shift(id string, n int) (string, error) {
	y, w, err := Parse(id)
	if err != nil {
		return "", err
	}
	// noon UTC keeps the arithmetic away from any day boundary
	t := time.Date(y, time.January, firstMonday(y)+(w-1+n)*7, 12, 0, 0, 0, time.UTC)
	ny, nw := t.ISOWeek()
	return format(ny, nw), nil
}

// firstMonday returns the January day-of-month (possibly <= 0) of the Monday
// that starts ISO week 1 of year y. Week 1 is the week containing January 4th.
func firstMonday(y int) int {
	jan4 := time.Date(y, time.January, 4, 12, 0, 0, 0, time.UTC)
	return 4 - (int(jan4.Weekday())+6)%7
}

func format(y, w int) string {
	return fmt.Sprintf("%04d-W%02d", y, w)
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
