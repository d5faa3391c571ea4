package analytics

import (
	"fmt"
	"sort"
	"time"

	"habit-tracker/internal/storage"
	"habit-tracker/internal/week"
)

// Policy selects how several entries of one kind within a week collapse
// into a weekly value.
type Policy string

const (
	PolicySum  Policy = "sum"
	PolicyLast Policy = "last"
)

type Tier string

const (
	TierGold   Tier = "gold"
	TierSilver Tier = "silver"
	TierBronze Tier = "bronze"
	TierNone   Tier = "none"
)

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
)

// MetricResult is one participant's weekly value for a kind.
type MetricResult struct {
	Kind    storage.Kind `json:"kind"`
	Value   float64      `json:"value"`
	Goal    float64      `json:"goal"`
	Percent float64      `json:"percent"`
	Tracked bool         `json:"tracked"`
}

type ParticipantSummary struct {
	ParticipantID int64          `json:"participant_id"`
	Metrics       []MetricResult `json:"metrics"`
	Tier          Tier           `json:"tier"`
	Reported      bool           `json:"reported"`
}

// Metric returns the result for kind.
func (p ParticipantSummary) Metric(kind storage.Kind) (MetricResult, bool) {
	for _, m := range p.Metrics {
		if m.Kind == kind {
			return m, true
		}
	}
	return MetricResult{}, false
}

// WeekTotals are cohort totals for one week.
type WeekTotals struct {
	WeekID string                   `json:"week"`
	Totals map[storage.Kind]float64 `json:"totals"`
}

type WeeklySummary struct {
	WeekID       string                   `json:"week"`
	Start        time.Time                `json:"start"`
	End          time.Time                `json:"end"`
	Policy       Policy                   `json:"policy"`
	Kinds        []storage.Kind           `json:"kinds"`
	Participants []ParticipantSummary     `json:"participants"`
	Totals       map[storage.Kind]float64 `json:"totals"`

	// Previous, Trend and Diff are empty when the previous week has neither
	// been opened nor received any entry.
	Previous *WeekTotals              `json:"previous,omitempty"`
	Trend    Trend                    `json:"trend,omitempty"`
	Diff     map[storage.Kind]float64 `json:"diff,omitempty"`
}

// Request describes one summary computation.
type Request struct {
	WeekID       string
	Location     *time.Location
	Participants []int64
	Goals        map[int64]map[storage.Kind]float64
	Policy       Policy
}

// Summarize computes per-participant results, cohort totals and the trend
// against the previous week. Participants without entries count as zero.
func Summarize(src storage.Reader, req Request) (*WeeklySummary, error) {
	start, end, err := week.Bounds(req.WeekID, req.Location)
	if err != nil {
		return nil, err
	}
	kinds := cohortKinds(req.Goals)
	ids := sortedIDs(req.Participants)

	sum := &WeeklySummary{
		WeekID: req.WeekID,
		Start:  start,
		End:    end,
		Policy: normPolicy(req.Policy),
		Kinds:  kinds,
		Totals: make(map[storage.Kind]float64, len(kinds)),
	}
	for _, k := range kinds {
		sum.Totals[k] = 0
	}

	for _, id := range ids {
		entries := src.ReadRange(id, start, end)
		values := collapse(entries, sum.Policy)
		goals := req.Goals[id]

		ps := ParticipantSummary{ParticipantID: id, Reported: len(entries) > 0}
		var percents []float64
		for _, k := range kinds {
			goal, tracked := goals[k]
			m := MetricResult{Kind: k, Value: values[k], Goal: goal, Percent: Percent(values[k], goal), Tracked: tracked}
			if tracked {
				percents = append(percents, m.Percent)
			}
			ps.Metrics = append(ps.Metrics, m)
			sum.Totals[k] += values[k]
		}
		ps.Tier = TierFor(percents)
		sum.Participants = append(sum.Participants, ps)
	}

	prevID, err := week.Previous(req.WeekID)
	if err != nil {
		return nil, err
	}
	if hasWeek(src, prevID, ids, req.Location) {
		prev, err := Totals(src, prevID, req.Location, ids, kinds, sum.Policy)
		if err != nil {
			return nil, err
		}
		sum.Previous = &prev
		sum.Trend = CompareTrend(sum.Totals, prev.Totals, kinds)
		sum.Diff = make(map[storage.Kind]float64, len(kinds))
		for _, k := range kinds {
			sum.Diff[k] = sum.Totals[k] - prev.Totals[k]
		}
	}
	return sum, nil
}

// Totals sums the weekly values of every participant per kind.
func Totals(src storage.Reader, weekID string, loc *time.Location, participants []int64, kinds []storage.Kind, policy Policy) (WeekTotals, error) {
	start, end, err := week.Bounds(weekID, loc)
	if err != nil {
		return WeekTotals{}, err
	}
	out := WeekTotals{WeekID: weekID, Totals: make(map[storage.Kind]float64, len(kinds))}
	for _, k := range kinds {
		out.Totals[k] = 0
	}
	for _, id := range participants {
		values := collapse(src.ReadRange(id, start, end), normPolicy(policy))
		for _, k := range kinds {
			out.Totals[k] += values[k]
		}
	}
	return out, nil
}

// History returns cohort totals for at most n opened weeks up to and
// including upTo, oldest first.
func History(src storage.Reader, upTo string, n int, loc *time.Location, participants []int64, kinds []storage.Kind, policy Policy) ([]WeekTotals, error) {
	if _, _, err := week.Parse(upTo); err != nil {
		return nil, err
	}
	var ids []string
	for _, w := range src.OpenedWeeks() {
		if w.Week <= upTo {
			ids = append(ids, w.Week)
		}
	}
	sort.Strings(ids)
	if n > 0 && len(ids) > n {
		ids = ids[len(ids)-n:]
	}
	out := make([]WeekTotals, 0, len(ids))
	for _, id := range ids {
		t, err := Totals(src, id, loc, participants, kinds, policy)
		if err != nil {
			return nil, fmt.Errorf("history %s: %w", id, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Percent is value/goal as a fraction; a non-positive goal yields 0.
func Percent(value, goal float64) float64 {
	if goal <= 0 {
		return 0
	}
	return value / goal
}

// TierFor assigns a tier from the percentages of the tracked metrics.
func TierFor(percents []float64) Tier {
	if len(percents) == 0 {
		return TierNone
	}
	all100, all50, any50 := true, true, false
	for _, p := range percents {
		if p < 1 {
			all100 = false
		}
		if p < 0.5 {
			all50 = false
		} else {
			any50 = true
		}
	}
	switch {
	case all100:
		return TierGold
	case all50:
		return TierSilver
	case any50:
		return TierBronze
	default:
		return TierNone
	}
}

// CompareTrend is improving only if no kind's total went down.
func CompareTrend(cur, prev map[storage.Kind]float64, kinds []storage.Kind) Trend {
	for _, k := range kinds {
		if cur[k] < prev[k] {
			return TrendDeclining
		}
	}
	return TrendImproving
}

func collapse(entries []storage.MetricEntry, policy Policy) map[storage.Kind]float64 {
	out := make(map[storage.Kind]float64)
	for _, e := range entries {
		if policy == PolicyLast {
			out[e.Kind] = e.Value
			continue
		}
		out[e.Kind] += e.Value
	}
	return out
}

func hasWeek(src storage.Reader, weekID string, participants []int64, loc *time.Location) bool {
	if src.IsWeekOpen(weekID) {
		return true
	}
	start, end, err := week.Bounds(weekID, loc)
	if err != nil {
		return false
	}
	for _, id := range participants {
		if len(src.ReadRange(id, start, end)) > 0 {
			return true
		}
	}
	return false
}

func cohortKinds(goals map[int64]map[storage.Kind]float64) []storage.Kind {
	seen := make(map[storage.Kind]bool)
	for _, g := range goals {
		for k := range g {
			seen[k] = true
		}
	}
	if len(seen) == 0 {
		return append([]storage.Kind(nil), storage.DefaultKinds...)
	}
	return storage.OrderKinds(seen)
}

func sortedIDs(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func normPolicy(p Policy) Policy {
	if p == PolicyLast {
		return PolicyLast
	}
	return PolicySum
}
