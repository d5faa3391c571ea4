package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"habit-tracker/internal/analytics"
	"habit-tracker/internal/config"
	"habit-tracker/internal/llm"
	"habit-tracker/internal/pending"
	"habit-tracker/internal/publisher"
	"habit-tracker/internal/roster"
	"habit-tracker/internal/scheduler"
	"habit-tracker/internal/schedules"
	"habit-tracker/internal/session"
	"habit-tracker/internal/storage"
	"habit-tracker/internal/telegram"
	"habit-tracker/internal/tracker"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("invalid timezone: %v", err)
	}

	store, err := storage.NewFileStore(cfg.StoreFilePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}

	static, err := roster.LoadFile(cfg.RosterFilePath)
	if err != nil {
		log.Fatalf("failed to load roster: %v", err)
	}
	var rosterRepo roster.Repository
	if cfg.ParticipantsFilePath != "" {
		repo, err := roster.NewFileRepository(cfg.ParticipantsFilePath)
		if err != nil {
			log.Printf("failed to init participants repo: %v", err)
		} else {
			rosterRepo = repo
		}
	}
	rosterSvc, err := roster.NewWithRepo(rosterRepo, static)
	if err != nil {
		log.Fatalf("failed to init roster: %v", err)
	}

	var pendingRepo roster.Repository
	if cfg.PendingFilePath != "" {
		repo, err := roster.NewFileRepository(cfg.PendingFilePath)
		if err != nil {
			log.Printf("failed to init pending repo: %v", err)
		} else {
			pendingRepo = repo
		}
	}
	pendingSvc, err := pending.New(pendingRepo)
	if err != nil {
		log.Fatalf("failed to init pending requests: %v", err)
	}

	schedStore, err := schedules.Open(cfg.ScheduleDBPath)
	if err != nil {
		log.Fatalf("failed to open schedule db: %v", err)
	}
	defer schedStore.Close()
	seedDefaultSchedule(cfg, schedStore)

	var coach *publisher.Coach
	if cfg.CoachEnabled {
		client, err := llm.NewFromConfig(cfg)
		if err != nil {
			log.Printf("coach disabled: %v", err)
		} else {
			prompt, err := publisher.LoadPrompt(cfg.CoachPromptPath)
			if err != nil {
				log.Printf("coach prompt: %v", err)
			}
			coach = publisher.NewCoach(client, prompt)
		}
	}
	pub := publisher.New(func(id int64) string {
		if p, ok := rosterSvc.Get(id); ok {
			return p.DisplayName()
		}
		return "id" + strconv.FormatInt(id, 10)
	}, coach)

	trackerSvc := tracker.New(store, rosterSvc, nil, schedStore, pub, tracker.Options{
		AdminID:      cfg.AdminUserID,
		Location:     loc,
		Policy:       analytics.Policy(cfg.AggregationMode),
		HistoryWeeks: cfg.HistoryWeeks,
	})
	sessions := session.NewManager(store, trackerSvc.ReportingOpen, cfg.SessionTimeout)

	sched := scheduler.New(trackerSvc, sessions, scheduler.Options{
		RemindAfter:  cfg.RemindAfter,
		PublishAfter: cfg.PublishAfter,
		WeekLocation: loc,
	})

	bot, err := telegram.New(cfg.TelegramBotToken, telegram.Deps{
		Sessions:     sessions,
		Tracker:      trackerSvc,
		Roster:       rosterSvc,
		Pending:      pendingSvc,
		Schedules:    schedStore,
		Scheduler:    sched,
		AdminUserID:  cfg.AdminUserID,
		ReportChatID: cfg.ReportChatID,
		Timezone:     cfg.Timezone,
		DefaultGoals: map[storage.Kind]float64{
			storage.KindPages:           cfg.DefaultPagesGoal,
			storage.KindExerciseMinutes: cfg.DefaultMinutesGoal,
		},
	})
	if err != nil {
		log.Fatalf("failed to create bot: %v", err)
	}
	trackerSvc.SetNotifier(bot)

	if err := sched.Start(schedStore); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("🚀 habit tracker started: %d participant(s), timezone %s", len(rosterSvc.List()), loc)
	bot.Start(ctx)
	log.Println("👋 shutting down")
}

// seedDefaultSchedule stores the configured schedule for the report chat
// unless that chat already has one.
func seedDefaultSchedule(cfg *config.Config, store *schedules.Store) {
	if cfg.ReportChatID == 0 {
		return
	}
	if _, ok, err := store.Get(cfg.ReportChatID); err != nil || ok {
		if err != nil {
			log.Printf("failed to read schedule of chat %d: %v", cfg.ReportChatID, err)
		}
		return
	}
	sc, err := schedules.Parse(cfg.ReportChatID, cfg.DefaultDay, cfg.DefaultTime, cfg.Timezone)
	if err != nil {
		log.Printf("invalid default schedule: %v", err)
		return
	}
	if err := store.Upsert(sc); err != nil {
		log.Printf("failed to store default schedule: %v", err)
		return
	}
	log.Printf("📅 default schedule for chat %d: %s %s", sc.ChatID, sc.Day, sc.Clock())
}
