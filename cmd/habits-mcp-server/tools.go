package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"habit-tracker/internal/analytics"
	"habit-tracker/internal/config"
	"habit-tracker/internal/publisher"
	"habit-tracker/internal/roster"
	"habit-tracker/internal/storage"
	"habit-tracker/internal/week"
)

// WeeklySummaryParams параметры для weekly_summary
type WeeklySummaryParams struct {
	Week string `json:"week,omitempty" mcp:"ISO week like 2026-W42 (default: current week)"`
	Text bool   `json:"text,omitempty" mcp:"if true, return the formatted chat message instead of JSON"`
}

// ParticipantEntriesParams параметры для participant_entries
type ParticipantEntriesParams struct {
	ParticipantID int64  `json:"participant_id" mcp:"participant (Telegram user) id"`
	Week          string `json:"week,omitempty" mcp:"only entries of this ISO week"`
}

// HistoryParams параметры для week_history
type HistoryParams struct {
	Weeks int `json:"weeks,omitempty" mcp:"number of opened weeks to return (default: HISTORY_WEEKS)"`
}

// HabitsMCPServer отдает данные трекера в режиме только для чтения.
type HabitsMCPServer struct {
	data *config.Data
	now  func() time.Time
}

func NewHabitsMCPServer(data *config.Data) *HabitsMCPServer {
	return &HabitsMCPServer{data: data, now: time.Now}
}

type snapshot struct {
	store  *storage.FileStore
	roster *roster.Service
	loc    *time.Location
}

// load re-reads the files on every call so the bot's latest writes are seen.
func (s *HabitsMCPServer) load() (*snapshot, error) {
	loc, err := s.data.Location()
	if err != nil {
		return nil, err
	}
	store, err := storage.OpenReadOnly(s.data.StoreFilePath)
	if err != nil {
		return nil, err
	}
	static, err := roster.LoadFile(s.data.RosterFilePath)
	if err != nil {
		return nil, err
	}
	var repo roster.Repository
	if s.data.ParticipantsFilePath != "" {
		r, err := roster.NewFileRepository(s.data.ParticipantsFilePath)
		if err != nil {
			return nil, err
		}
		repo = r
	}
	rs, err := roster.NewWithRepo(repo, static)
	if err != nil {
		return nil, err
	}
	return &snapshot{store: store, roster: rs, loc: loc}, nil
}

func (sn *snapshot) ids() []int64 {
	list := sn.roster.List()
	out := make([]int64, 0, len(list))
	for _, p := range list {
		out = append(out, p.ID)
	}
	return out
}

func (sn *snapshot) name(id int64) string {
	if p, ok := sn.roster.Get(id); ok {
		return p.DisplayName()
	}
	return fmt.Sprintf("id%d", id)
}

func (s *HabitsMCPServer) WeeklySummary(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[WeeklySummaryParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	sn, err := s.load()
	if err != nil {
		return errorResult("❌ Failed to load data: %v", err), nil
	}
	weekID := args.Week
	if weekID == "" {
		weekID = week.ID(s.now(), sn.loc)
	}
	log.Printf("📊 MCP Server: weekly summary for %s", weekID)

	policy := analytics.Policy(s.data.AggregationMode)
	sum, err := analytics.Summarize(sn.store, analytics.Request{
		WeekID:       weekID,
		Location:     sn.loc,
		Participants: sn.ids(),
		Goals:        sn.roster.Goals(),
		Policy:       policy,
	})
	if err != nil {
		return errorResult("❌ Failed to summarize %s: %v", weekID, err), nil
	}
	if args.Text {
		hist, err := analytics.History(sn.store, weekID, s.data.HistoryWeeks, sn.loc, sn.ids(), sum.Kinds, policy)
		if err != nil {
			return errorResult("❌ Failed to load history: %v", err), nil
		}
		return textResult(publisher.FormatSummary(sum, hist, sn.name)), nil
	}
	return jsonResult(sum)
}

func (s *HabitsMCPServer) ParticipantEntries(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[ParticipantEntriesParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	if args.ParticipantID == 0 {
		return errorResult("❌ participant_id is required"), nil
	}
	sn, err := s.load()
	if err != nil {
		return errorResult("❌ Failed to load data: %v", err), nil
	}
	log.Printf("📝 MCP Server: entries of %d (week %q)", args.ParticipantID, args.Week)
	entries := sn.store.Read(args.ParticipantID)
	if args.Week != "" {
		start, end, err := week.Bounds(args.Week, sn.loc)
		if err != nil {
			return errorResult("❌ %v", err), nil
		}
		entries = sn.store.ReadRange(args.ParticipantID, start, end)
	}
	return jsonResult(entries)
}

func (s *HabitsMCPServer) WeekHistory(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[HistoryParams]) (*mcp.CallToolResultFor[any], error) {
	n := params.Arguments.Weeks
	if n <= 0 {
		n = s.data.HistoryWeeks
	}
	sn, err := s.load()
	if err != nil {
		return errorResult("❌ Failed to load data: %v", err), nil
	}
	kinds := sn.roster.Kinds()
	if len(kinds) == 0 {
		kinds = storage.DefaultKinds
	}
	hist, err := analytics.History(sn.store, week.ID(s.now(), sn.loc), n, sn.loc, sn.ids(), kinds, analytics.Policy(s.data.AggregationMode))
	if err != nil {
		return errorResult("❌ Failed to load history: %v", err), nil
	}
	return jsonResult(hist)
}

func jsonResult(v any) (*mcp.CallToolResultFor[any], error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return textResult(string(b)), nil
}

func textResult(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(format string, a ...any) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, a...)}},
	}
}
