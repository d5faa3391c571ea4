package publisher

import (
	"context"
	"errors"
	"strings"
	"testing"

	"habit-tracker/internal/analytics"
	"habit-tracker/internal/llm"
	"habit-tracker/internal/storage"
)

type fakeLLM struct {
	resp llm.Response
	err  error
	msgs []llm.Message
}

func (f *fakeLLM) Generate(ctx context.Context, messages []llm.Message) (llm.Response, error) {
	f.msgs = messages
	return f.resp, f.err
}

func names(id int64) string {
	return map[int64]string{1: "Аня", 2: "Борис"}[id]
}

func sampleSummary() *analytics.WeeklySummary {
	kinds := []storage.Kind{storage.KindPages, storage.KindExerciseMinutes}
	return &analytics.WeeklySummary{
		WeekID: "2026-W42",
		Kinds:  kinds,
		Participants: []analytics.ParticipantSummary{
			{ParticipantID: 1, Tier: analytics.TierGold, Reported: true, Metrics: []analytics.MetricResult{
				{Kind: storage.KindPages, Value: 50, Goal: 50, Percent: 1, Tracked: true},
				{Kind: storage.KindExerciseMinutes, Value: 310.25, Goal: 300, Percent: 310.25 / 300, Tracked: true},
			}},
			{ParticipantID: 2, Tier: analytics.TierNone, Metrics: []analytics.MetricResult{
				{Kind: storage.KindPages, Goal: 50, Tracked: true},
				{Kind: storage.KindExerciseMinutes, Goal: 300, Tracked: true},
			}},
		},
		Totals:   map[storage.Kind]float64{storage.KindPages: 50, storage.KindExerciseMinutes: 310.25},
		Previous: &analytics.WeekTotals{WeekID: "2026-W41"},
		Trend:    analytics.TrendDeclining,
		Diff:     map[storage.Kind]float64{storage.KindPages: 10, storage.KindExerciseMinutes: -5.5},
	}
}

func TestFormatSummary(t *testing.T) {
	history := []analytics.WeekTotals{
		{WeekID: "2026-W41", Totals: map[storage.Kind]float64{storage.KindPages: 40, storage.KindExerciseMinutes: 315.75}},
		{WeekID: "2026-W42", Totals: map[storage.Kind]float64{storage.KindPages: 50, storage.KindExerciseMinutes: 310.25}},
	}
	text := FormatSummary(sampleSummary(), history, names)

	for _, want := range []string{
		"📊 Результаты за неделю 2026-W42:",
		"Аня: 50 стр. (100%), 310.3 мин. (103%) 🥇",
		"Борис: 0 стр. (0%), 0 мин. (0%) (нет данных)",
		"📈 Статистика за последние 2 нед.:",
		"Неделя 2026-W41: всего 40 стр., 315.8 мин.",
		"Тренд по сравнению с предыдущей неделей: 📉 Ухудшение",
		"Страницы: +10",
		"Тренировки (мин.): -5.5",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in:\n%s", want, text)
		}
	}
}

func TestFormatSummary_NoTrend(t *testing.T) {
	sum := sampleSummary()
	sum.Previous, sum.Trend, sum.Diff = nil, "", nil
	text := FormatSummary(sum, nil, names)
	if strings.Contains(text, "Тренд") || strings.Contains(text, "Статистика") {
		t.Fatalf("trend/history must be omitted:\n%s", text)
	}
}

func TestPublisher_CoachNote(t *testing.T) {
	f := &fakeLLM{resp: llm.Response{Content: "  Так держать!  "}}
	p := New(names, NewCoach(f, ""))
	text := p.Render(context.Background(), sampleSummary(), nil)
	if !strings.HasSuffix(text, "\n\n💬 Так держать!") {
		t.Fatalf("coach note not appended:\n%s", text)
	}
	if len(f.msgs) != 2 || f.msgs[0].Role != "system" || f.msgs[0].Content != defaultCoachPrompt {
		t.Fatalf("unexpected prompt: %+v", f.msgs)
	}
}

func TestPublisher_CoachFailureIgnored(t *testing.T) {
	p := New(names, NewCoach(&fakeLLM{err: errors.New("quota")}, "x"))
	text := p.Render(context.Background(), sampleSummary(), nil)
	if text != FormatSummary(sampleSummary(), nil, names) {
		t.Fatalf("failed coach must leave the summary unchanged:\n%s", text)
	}
}

func TestLoadPromptMissingFile(t *testing.T) {
	got, err := LoadPrompt(t.TempDir() + "/none.txt")
	if err != nil || got != defaultCoachPrompt {
		t.Fatalf("got %q, %v", got, err)
	}
}
