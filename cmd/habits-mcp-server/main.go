package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"habit-tracker/internal/config"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}
	data, err := config.ParseData()
	if err != nil {
		log.Fatalf("❌ invalid config: %v", err)
	}

	log.Printf("🚀 Starting habits MCP Server (store %s)", data.StoreFilePath)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "habit-tracker-mcp",
		Version: "1.0.0",
	}, nil)

	habits := NewHabitsMCPServer(data)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "weekly_summary",
		Description: "Returns per-participant results, tiers, cohort totals and trend for a reporting week",
	}, habits.WeeklySummary)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "participant_entries",
		Description: "Lists raw metric entries of one participant, optionally limited to a week",
	}, habits.ParticipantEntries)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "week_history",
		Description: "Returns cohort totals of the most recent opened weeks, oldest first",
	}, habits.WeekHistory)

	log.Printf("📋 Registered %d tools: weekly_summary, participant_entries, week_history", 3)

	transport := mcp.NewStdioTransport()
	if err := server.Run(context.Background(), transport); err != nil {
		log.Fatalf("❌ Server failed: %v", err)
	}
}
