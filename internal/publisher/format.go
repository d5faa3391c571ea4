package publisher

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"habit-tracker/internal/analytics"
	"habit-tracker/internal/storage"
)

// NameFunc resolves a participant id to a display name.
type NameFunc func(id int64) string

var medals = map[analytics.Tier]string{
	analytics.TierGold:   "🥇",
	analytics.TierSilver: "🥈",
	analytics.TierBronze: "🥉",
}

// Unit returns the short unit label used after a value.
func Unit(kind storage.Kind) string {
	switch kind {
	case storage.KindPages:
		return "стр."
	case storage.KindExerciseMinutes:
		return "мин."
	default:
		return string(kind)
	}
}

// Title returns the human label of a kind.
func Title(kind storage.Kind) string {
	switch kind {
	case storage.KindPages:
		return "Страницы"
	case storage.KindExerciseMinutes:
		return "Тренировки (мин.)"
	default:
		return string(kind)
	}
}

// FormatValue prints v with at most one decimal.
func FormatValue(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.0f%%", p*100)
}

func formatSigned(v float64) string {
	if v >= 0 {
		return "+" + FormatValue(v)
	}
	return FormatValue(v)
}

// FormatSummary renders the weekly results message. history holds cohort
// totals of recent weeks, oldest first.
func FormatSummary(sum *analytics.WeeklySummary, history []analytics.WeekTotals, name NameFunc) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Результаты за неделю %s:\n\n", sum.WeekID)

	if len(sum.Participants) == 0 {
		b.WriteString("Участников пока нет.\n")
	}
	for _, p := range sum.Participants {
		parts := make([]string, 0, len(p.Metrics))
		for _, m := range p.Metrics {
			s := FormatValue(m.Value) + " " + Unit(m.Kind)
			if m.Tracked {
				s += " (" + formatPercent(m.Percent) + ")"
			}
			parts = append(parts, s)
		}
		line := name(p.ParticipantID) + ": " + strings.Join(parts, ", ")
		if medal, ok := medals[p.Tier]; ok {
			line += " " + medal
		}
		if !p.Reported {
			line += " (нет данных)"
		}
		b.WriteString(line + "\n")
	}

	if len(history) > 0 {
		fmt.Fprintf(&b, "\n📈 Статистика за последние %d нед.:\n", len(history))
		for _, h := range history {
			fmt.Fprintf(&b, "Неделя %s: всего %s\n", h.WeekID, formatTotals(h.Totals, sum.Kinds))
		}
	}

	if sum.Trend != "" {
		trend := "📉 Ухудшение"
		if sum.Trend == analytics.TrendImproving {
			trend = "📈 Улучшение"
		}
		fmt.Fprintf(&b, "\nТренд по сравнению с предыдущей неделей: %s\n", trend)
		for _, k := range sum.Kinds {
			fmt.Fprintf(&b, "%s: %s\n", Title(k), formatSigned(sum.Diff[k]))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTotals(totals map[storage.Kind]float64, kinds []storage.Kind) string {
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, FormatValue(totals[k])+" "+Unit(k))
	}
	return strings.Join(parts, ", ")
}
