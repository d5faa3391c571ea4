package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"habit-tracker/internal/analytics"
	"habit-tracker/internal/publisher"
	"habit-tracker/internal/storage"
	"habit-tracker/internal/week"
)

func summaryCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "summary [week]",
		Short: "Show the weekly summary (default: current week)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			e, err := openEnv()
			if err != nil {
				return err
			}
			weekID := week.ID(time.Now(), e.loc)
			if len(args) == 1 {
				weekID = args[0]
			}
			sum, err := analytics.Summarize(e.store, analytics.Request{
				WeekID:       weekID,
				Location:     e.loc,
				Participants: e.participants(),
				Goals:        e.roster.Goals(),
				Policy:       e.policy,
			})
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			}
			printSummary(out, e, sum)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

var tierColor = map[analytics.Tier]func(format string, a ...interface{}) string{
	analytics.TierGold:   color.YellowString,
	analytics.TierSilver: color.WhiteString,
	analytics.TierBronze: color.RedString,
	analytics.TierNone:   color.HiBlackString,
}

func printSummary(out io.Writer, e *env, sum *analytics.WeeklySummary) {
	state := color.HiBlackString("not opened")
	if e.store.IsWeekOpen(sum.WeekID) {
		state = color.GreenString("open")
	}
	fmt.Fprintf(out, "%s %s (%s .. %s) %s, policy %s\n\n",
		color.CyanString("Week"), sum.WeekID,
		sum.Start.Format("2006-01-02"), sum.End.Add(-time.Nanosecond).Format("2006-01-02"),
		state, sum.Policy)

	for _, p := range sum.Participants {
		fmt.Fprintf(out, "  %-20s", e.name(p.ParticipantID))
		for _, m := range p.Metrics {
			v := publisher.FormatValue(m.Value) + " " + publisher.Unit(m.Kind)
			if m.Tracked {
				v += fmt.Sprintf(" (%.0f%%)", m.Percent*100)
			}
			fmt.Fprintf(out, "  %-22s", v)
		}
		fmt.Fprintln(out, tierColor[p.Tier]("%s", p.Tier))
	}

	fmt.Fprintf(out, "\n%s", color.CyanString("Totals:"))
	for _, k := range sum.Kinds {
		fmt.Fprintf(out, "  %s %s", publisher.FormatValue(sum.Totals[k]), publisher.Unit(k))
	}
	fmt.Fprintln(out)
	if sum.Trend == "" {
		fmt.Fprintln(out, color.HiBlackString("No previous week to compare with."))
		return
	}
	trend := color.RedString(string(sum.Trend))
	if sum.Trend == analytics.TrendImproving {
		trend = color.GreenString(string(sum.Trend))
	}
	fmt.Fprintf(out, "%s %s vs %s:", color.CyanString("Trend:"), trend, sum.Previous.WeekID)
	for _, k := range sum.Kinds {
		fmt.Fprintf(out, "  %s %+g", k, sum.Diff[k])
	}
	fmt.Fprintln(out)
}

func historyCmd() *cobra.Command {
	var weeks int
	cmd := &cobra.Command{
		Use:   "history [week]",
		Short: "Show cohort totals of the last opened weeks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			e, err := openEnv()
			if err != nil {
				return err
			}
			upTo := week.ID(time.Now(), e.loc)
			if len(args) == 1 {
				upTo = args[0]
			}
			kinds := e.roster.Kinds()
			if len(kinds) == 0 {
				kinds = storage.DefaultKinds
			}
			hist, err := analytics.History(e.store, upTo, weeks, e.loc, e.participants(), kinds, e.policy)
			if err != nil {
				return err
			}
			if len(hist) == 0 {
				fmt.Fprintln(out, color.HiBlackString("No opened weeks yet."))
				return nil
			}
			for _, h := range hist {
				fmt.Fprintf(out, "%s", color.CyanString(h.WeekID))
				for _, k := range kinds {
					fmt.Fprintf(out, "  %s %s", publisher.FormatValue(h.Totals[k]), publisher.Unit(k))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&weeks, "weeks", "n", data.HistoryWeeks, "number of weeks")
	return cmd
}
