package storage

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Kind names a tracked metric.
type Kind string

const (
	KindPages           Kind = "pages"
	KindExerciseMinutes Kind = "exercise_minutes"
)

// DefaultKinds is the metric set used when no roster overrides it.
var DefaultKinds = []Kind{KindPages, KindExerciseMinutes}

var (
	// ErrInvalidValue is returned for negative or non-finite values.
	ErrInvalidValue = errors.New("invalid metric value")
	ErrInvalidKind  = errors.New("invalid metric kind")
)

// StoreIOError reports a durable write that still failed after retries.
// The in-memory state is left exactly as it was before the call.
type StoreIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreIOError) Unwrap() error { return e.Err }

// MetricEntry is a single self-reported value. Entries are immutable.
type MetricEntry struct {
	ID            string    `json:"id"`
	ParticipantID int64     `json:"participant_id"`
	Kind          Kind      `json:"kind"`
	Value         float64   `json:"value"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// OpenedWeek marks the week as open for reporting. It is written once by the
// ask action and never rewritten.
type OpenedWeek struct {
	Week     string    `json:"week"`
	OpenedAt time.Time `json:"opened_at"`
}

// Reader is the read side of the metric log.
// Implementations return entries ordered by timestamp, equal timestamps in
// append order, and must be safe for concurrent use.
type Reader interface {
	Read(participantID int64) []MetricEntry
	ReadRange(participantID int64, from, to time.Time) []MetricEntry
	IsWeekOpen(weekID string) bool
	OpenedWeeks() []OpenedWeek
}

// Store is the full metric log: append-only entries plus week markers.
type Store interface {
	Reader
	Append(participantID int64, kind Kind, value float64, at time.Time) (MetricEntry, error)
	OpenWeek(weekID string, at time.Time) (bool, error)
}

// OrderKinds flattens a kind set: DefaultKinds first in their order, then
// the rest alphabetically.
func OrderKinds(set map[Kind]bool) []Kind {
	var out []Kind
	for _, k := range DefaultKinds {
		if set[k] {
			out = append(out, k)
		}
	}
	var rest []string
	for k := range set {
		if !isDefaultKind(k) {
			rest = append(rest, string(k))
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, Kind(k))
	}
	return out
}

func isDefaultKind(k Kind) bool {
	for _, d := range DefaultKinds {
		if d == k {
			return true
		}
	}
	return false
}
