package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"habit-tracker/internal/week"
)

func entriesCmd() *cobra.Command {
	var weekID string
	cmd := &cobra.Command{
		Use:   "entries <participant_id>",
		Short: "List a participant's raw metric entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid participant id %q", args[0])
			}
			e, err := openEnv()
			if err != nil {
				return err
			}
			entries := e.store.Read(id)
			if weekID != "" {
				start, end, err := week.Bounds(weekID, e.loc)
				if err != nil {
					return err
				}
				entries = e.store.ReadRange(id, start, end)
			}
			fmt.Fprintf(out, "%s %s\n", color.CyanString("Entries of"), e.name(id))
			if len(entries) == 0 {
				fmt.Fprintln(out, color.HiBlackString("  none"))
				return nil
			}
			for _, en := range entries {
				fmt.Fprintf(out, "  %s  %s  %-17s %v\n",
					en.RecordedAt.In(e.loc).Format(time.RFC3339),
					color.HiBlackString(week.ID(en.RecordedAt, e.loc)),
					en.Kind, en.Value)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&weekID, "week", "w", "", "only entries of this week (YYYY-Www)")
	return cmd
}
