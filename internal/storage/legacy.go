package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"habit-tracker/internal/week"
)

// LegacyData is the older weekly-snapshot layout: one materialised bucket
// per week, named with a Sunday-based "%Y-%U" week number, holding the last
// reported pages and workout hours per participant.
type LegacyData struct {
	WeeklyResults []LegacyWeek `json:"weekly_results"`
}

type LegacyWeek struct {
	Week         string                  `json:"week"`
	Participants map[string]LegacyResult `json:"participants"`
}

type LegacyResult struct {
	Pages     float64 `json:"pages"`
	Workout   float64 `json:"workout"`
	Timestamp string  `json:"timestamp"`
}

var legacyTimeLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

// MigrateLegacy converts a weekly-snapshot file into a Document. Workout
// hours become exercise minutes. Each legacy week also becomes an opened
// week keyed by the ISO week of the Sunday that started it. Naive legacy
// timestamps are interpreted in loc.
func MigrateLegacy(data []byte, loc *time.Location) (*Document, error) {
	if loc == nil {
		loc = time.UTC
	}
	var legacy LegacyData
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("decode legacy store: %w", err)
	}
	doc := NewDocument()
	for _, lw := range legacy.WeeklyResults {
		start, err := legacyWeekStart(lw.Week, loc)
		if err != nil {
			return nil, err
		}
		id := week.ID(start, loc)
		if !doc.weekOpen(id) {
			doc.Weeks = append(doc.Weeks, OpenedWeek{Week: id, OpenedAt: start})
		}

		users := make([]string, 0, len(lw.Participants))
		for u := range lw.Participants {
			users = append(users, u)
		}
		sort.Strings(users)
		for _, u := range users {
			res := lw.Participants[u]
			pid, err := strconv.ParseInt(u, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("legacy week %s: bad participant id %q", lw.Week, u)
			}
			at := start.Add(12 * time.Hour)
			if res.Timestamp != "" {
				if at, err = parseLegacyTime(res.Timestamp, loc); err != nil {
					return nil, fmt.Errorf("legacy week %s: %w", lw.Week, err)
				}
			}
			kinds := doc.Participants[pid]
			if kinds == nil {
				kinds = make(map[Kind][]Record)
				doc.Participants[pid] = kinds
			}
			kinds[KindPages] = append(kinds[KindPages], Record{ID: legacyEntryID(lw.Week, pid, KindPages), Date: at, Value: res.Pages})
			kinds[KindExerciseMinutes] = append(kinds[KindExerciseMinutes], Record{ID: legacyEntryID(lw.Week, pid, KindExerciseMinutes), Date: at, Value: res.Workout * 60})
		}
	}
	return doc, nil
}

// legacyEntryID derives a stable id so importing the same legacy file twice
// adds nothing the second time.
func legacyEntryID(weekID string, pid int64, kind Kind) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("legacy/%s/%d/%s", weekID, pid, kind))).String()
}

// legacyWeekStart resolves "%Y-%U": week 1 starts on the year's first Sunday,
// days before it belong to week 0.
func legacyWeekStart(id string, loc *time.Location) (time.Time, error) {
	var y, n int
	if _, err := fmt.Sscanf(id, "%d-%d", &y, &n); err != nil || n < 0 || n > 53 {
		return time.Time{}, fmt.Errorf("invalid legacy week %q", id)
	}
	jan1 := time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	if n == 0 {
		return jan1, nil
	}
	firstSunday := 1 + (7-int(jan1.Weekday()))%7
	return time.Date(y, time.January, firstSunday+(n-1)*7, 0, 0, 0, 0, loc), nil
}

func parseLegacyTime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range legacyTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
