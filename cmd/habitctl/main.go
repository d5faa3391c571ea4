package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"habit-tracker/internal/analytics"
	"habit-tracker/internal/config"
	"habit-tracker/internal/roster"
	"habit-tracker/internal/storage"
)

var Version = "dev"

var data *config.Data

func main() {
	_ = godotenv.Load(".env")

	d, err := config.ParseData()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("config: %v", err))
		os.Exit(1)
	}
	if err := newRootCmd(d).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}

func newRootCmd(d *config.Data) *cobra.Command {
	data = d
	rootCmd := &cobra.Command{
		Use:           "habitctl",
		Short:         "Operator tool for the weekly habit tracker",
		Long:          color.CyanString("habitctl") + " inspects and maintains the habit tracker's data files.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&data.StoreFilePath, "store", data.StoreFilePath, "metric store JSON file")
	flags.StringVar(&data.RosterFilePath, "roster", data.RosterFilePath, "static roster YAML file")
	flags.StringVar(&data.ParticipantsFilePath, "participants", data.ParticipantsFilePath, "approved participants JSON file")
	flags.StringVar(&data.ScheduleDBPath, "schedules", data.ScheduleDBPath, "schedule SQLite database")
	flags.StringVar(&data.Timezone, "tz", data.Timezone, "timezone of the reporting week")
	flags.StringVar(&data.AggregationMode, "policy", data.AggregationMode, "aggregation policy: sum or last")

	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(entriesCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(schedulesCmd())
	rootCmd.AddCommand(runsCmd())
	return rootCmd
}

// env bundles what the read-only commands need.
type env struct {
	store  *storage.FileStore
	roster *roster.Service
	loc    *time.Location
	policy analytics.Policy
}

func openEnv() (*env, error) {
	loc, err := data.Location()
	if err != nil {
		return nil, err
	}
	if data.AggregationMode != string(analytics.PolicySum) && data.AggregationMode != string(analytics.PolicyLast) {
		return nil, fmt.Errorf("unknown policy %q", data.AggregationMode)
	}
	store, err := storage.OpenReadOnly(data.StoreFilePath)
	if err != nil {
		return nil, err
	}
	static, err := roster.LoadFile(data.RosterFilePath)
	if err != nil {
		return nil, err
	}
	var repo roster.Repository
	if data.ParticipantsFilePath != "" {
		if _, err := os.Stat(data.ParticipantsFilePath); err == nil {
			r, err := roster.NewFileRepository(data.ParticipantsFilePath)
			if err != nil {
				return nil, err
			}
			repo = r
		}
	}
	rs, err := roster.NewWithRepo(repo, static)
	if err != nil {
		return nil, err
	}
	return &env{store: store, roster: rs, loc: loc, policy: analytics.Policy(data.AggregationMode)}, nil
}

// participants returns roster ids plus anyone who reported but has since
// left the roster.
func (e *env) participants() []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, p := range e.roster.List() {
		seen[p.ID] = true
		ids = append(ids, p.ID)
	}
	for _, id := range e.store.Participants() {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

func (e *env) name(id int64) string {
	if p, ok := e.roster.Get(id); ok {
		return p.DisplayName()
	}
	return fmt.Sprintf("id%d", id)
}
