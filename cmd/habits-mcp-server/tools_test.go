package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"habit-tracker/internal/analytics"
	"habit-tracker/internal/config"
	"habit-tracker/internal/storage"
)

const rosterYAML = `participants:
  - id: 1
    name: Аня
    goals:
      pages: 50
      exercise_minutes: 300
  - id: 2
    name: Борис
    goals:
      pages: 20
`

func newTestServer(t *testing.T) *HabitsMCPServer {
	t.Helper()
	dir := t.TempDir()
	data := &config.Data{
		Timezone:             "UTC",
		HistoryWeeks:         5,
		AggregationMode:      "sum",
		StoreFilePath:        filepath.Join(dir, "habits.json"),
		RosterFilePath:       filepath.Join(dir, "roster.yaml"),
		ParticipantsFilePath: filepath.Join(dir, "participants.json"),
	}
	if err := os.WriteFile(data.RosterFilePath, []byte(rosterYAML), 0o644); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	store, err := storage.NewFileStore(data.StoreFilePath)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	at := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	if _, err := store.OpenWeek("2026-W42", at); err != nil {
		t.Fatalf("open week: %v", err)
	}
	for _, e := range []struct {
		id    int64
		kind  storage.Kind
		value float64
	}{{1, storage.KindPages, 30}, {1, storage.KindPages, 25}, {1, storage.KindExerciseMinutes, 120}, {2, storage.KindPages, 5}} {
		if _, err := store.Append(e.id, e.kind, e.value, at); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	s := NewHabitsMCPServer(data)
	s.now = func() time.Time { return at }
	return s
}

func resultText(t *testing.T, res *mcp.CallToolResultFor[any]) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("want one content item, got %d", len(res.Content))
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content %T", res.Content[0])
	}
	return tc.Text
}

func TestWeeklySummaryTool(t *testing.T) {
	s := newTestServer(t)
	res, err := s.WeeklySummary(context.Background(), nil, &mcp.CallToolParamsFor[WeeklySummaryParams]{})
	if err != nil || res.IsError {
		t.Fatalf("summary failed: %v %+v", err, res)
	}
	var sum analytics.WeeklySummary
	if err := json.Unmarshal([]byte(resultText(t, res)), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.WeekID != "2026-W42" || len(sum.Participants) != 2 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.Totals[storage.KindPages] != 60 || sum.Participants[0].Tier != analytics.TierBronze {
		t.Fatalf("unexpected totals/tier: %+v", sum)
	}

	res, _ = s.WeeklySummary(context.Background(), nil, &mcp.CallToolParamsFor[WeeklySummaryParams]{
		Arguments: WeeklySummaryParams{Text: true},
	})
	if text := resultText(t, res); !strings.Contains(text, "Аня: 55 стр. (110%), 120 мин. (40%) 🥉") {
		t.Fatalf("unexpected text summary:\n%s", text)
	}

	res, _ = s.WeeklySummary(context.Background(), nil, &mcp.CallToolParamsFor[WeeklySummaryParams]{
		Arguments: WeeklySummaryParams{Week: "2026-W99"},
	})
	if !res.IsError {
		t.Fatalf("invalid week must be reported as a tool error")
	}
}

func TestParticipantEntriesTool(t *testing.T) {
	s := newTestServer(t)
	res, err := s.ParticipantEntries(context.Background(), nil, &mcp.CallToolParamsFor[ParticipantEntriesParams]{
		Arguments: ParticipantEntriesParams{ParticipantID: 1, Week: "2026-W42"},
	})
	if err != nil || res.IsError {
		t.Fatalf("entries failed: %v %+v", err, res)
	}
	raw := resultText(t, res)
	if !strings.Contains(raw, `"participant_id": 1`) || !strings.Contains(raw, `"recorded_at"`) {
		t.Fatalf("entries must use snake_case keys: %s", raw)
	}
	var entries []storage.MetricEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("want 3 entries, got %+v", entries)
	}

	res, _ = s.ParticipantEntries(context.Background(), nil, &mcp.CallToolParamsFor[ParticipantEntriesParams]{
		Arguments: ParticipantEntriesParams{ParticipantID: 1, Week: "2026-W41"},
	})
	if text := resultText(t, res); strings.TrimSpace(text) != "[]" {
		t.Fatalf("previous week must be empty, got %s", text)
	}

	res, _ = s.ParticipantEntries(context.Background(), nil, &mcp.CallToolParamsFor[ParticipantEntriesParams]{})
	if !res.IsError {
		t.Fatalf("missing participant id must fail")
	}
}

func TestWeekHistoryTool(t *testing.T) {
	s := newTestServer(t)
	res, err := s.WeekHistory(context.Background(), nil, &mcp.CallToolParamsFor[HistoryParams]{})
	if err != nil || res.IsError {
		t.Fatalf("history failed: %v %+v", err, res)
	}
	var hist []analytics.WeekTotals
	if err := json.Unmarshal([]byte(resultText(t, res)), &hist); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hist) != 1 || hist[0].WeekID != "2026-W42" || hist[0].Totals[storage.KindExerciseMinutes] != 120 {
		t.Fatalf("unexpected history: %+v", hist)
	}
}
