package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"habit-tracker/internal/schedules"
)

func schedulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedules",
		Short: "List chat schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			store, err := schedules.Open(data.ScheduleDBPath)
			if err != nil {
				return err
			}
			defer store.Close()
			list, err := store.List()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(out, color.HiBlackString("No schedules."))
				return nil
			}
			for _, sc := range list {
				fmt.Fprintf(out, "%s  %-9s %s  %s\n", color.CyanString("%d", sc.ChatID), sc.Day, sc.Clock(), sc.Timezone)
			}
			return nil
		},
	}
}

func runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent ask/remind/publish runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			store, err := schedules.Open(data.ScheduleDBPath)
			if err != nil {
				return err
			}
			defer store.Close()
			runs, err := store.Runs(limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %-8s %d  %s  %s x%d %s\n",
					r.RunAt.Local().Format("2006-01-02 15:04"), r.Action, r.ChatID, r.Week,
					statusColor(r.Status), r.RunCount, color.HiBlackString(r.Detail))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs")
	return cmd
}

func statusColor(status string) string {
	switch status {
	case schedules.StatusDone:
		return color.GreenString(status)
	case schedules.StatusFailed:
		return color.RedString(status)
	default:
		return color.YellowString(status)
	}
}
