package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"habit-tracker/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <legacy.json>",
		Short: "Append a legacy weekly_results file to the metric store",
		Long: "Converts a legacy weekly_results file and appends its entries and weeks to the store.\n" +
			"Existing entries and opened weeks are never changed; running it twice adds nothing.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := data.Location()
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			doc, err := storage.MigrateLegacy(raw, loc)
			if err != nil {
				return err
			}
			store, err := storage.NewFileStore(data.StoreFilePath)
			if err != nil {
				return err
			}
			res, err := store.Import(doc)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓ appended %d week(s) and %d entries to %s",
				res.Weeks, res.Entries, data.StoreFilePath))
			return nil
		},
	}
}
