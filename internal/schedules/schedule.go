package schedules

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is when a chat's weekly cycle starts: participants are asked at
// Day/Hour:Minute local time, reminders and publishing follow at offsets.
type Schedule struct {
	ChatID    int64
	Day       time.Weekday
	Hour      int
	Minute    int
	Timezone  string
	UpdatedAt time.Time
}

func (s Schedule) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q", s.Timezone)
	}
	return loc, nil
}

func (s Schedule) Validate() error {
	if s.Day < time.Sunday || s.Day > time.Saturday {
		return fmt.Errorf("invalid weekday %d", s.Day)
	}
	if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("invalid time %02d:%02d", s.Hour, s.Minute)
	}
	_, err := s.Location()
	return err
}

func (s Schedule) Clock() string { return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute) }

var dayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday, "воскресенье": time.Sunday, "вс": time.Sunday,
	"monday": time.Monday, "mon": time.Monday, "понедельник": time.Monday, "пн": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "вторник": time.Tuesday, "вт": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday, "среда": time.Wednesday, "ср": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "четверг": time.Thursday, "чт": time.Thursday,
	"friday": time.Friday, "fri": time.Friday, "пятница": time.Friday, "пт": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday, "суббота": time.Saturday, "сб": time.Saturday,
}

// ParseDay accepts English or Russian day names and abbreviations.
func ParseDay(s string) (time.Weekday, error) {
	d, ok := dayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown day %q", s)
	}
	return d, nil
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time must be HH:MM, got %q", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("time must be HH:MM, got %q", s)
	}
	return h, m, nil
}

// Parse builds a schedule from user input.
func Parse(chatID int64, day, clock, tz string) (Schedule, error) {
	d, err := ParseDay(day)
	if err != nil {
		return Schedule{}, err
	}
	h, m, err := ParseClock(clock)
	if err != nil {
		return Schedule{}, err
	}
	s := Schedule{ChatID: chatID, Day: d, Hour: h, Minute: m, Timezone: tz}
	return s, s.Validate()
}
