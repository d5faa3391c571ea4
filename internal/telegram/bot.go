package telegram

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"habit-tracker/internal/pending"
	"habit-tracker/internal/publisher"
	"habit-tracker/internal/roster"
	"habit-tracker/internal/schedules"
	"habit-tracker/internal/session"
	"habit-tracker/internal/storage"
	"habit-tracker/internal/tracker"
)

const (
	reportPrefix  = "report:"
	approvePrefix = "approve:"
	rejectPrefix  = "reject:"
)

// ScheduleStore persists chat schedules.
type ScheduleStore interface {
	Upsert(sc schedules.Schedule) error
	Get(chatID int64) (schedules.Schedule, bool, error)
	Delete(chatID int64) (bool, error)
}

// Scheduler installs chat triggers.
type Scheduler interface {
	Validate(sc schedules.Schedule) error
	Apply(sc schedules.Schedule) error
	Remove(chatID int64) bool
	Next(chatID int64) []time.Time
}

type Deps struct {
	Sessions     *session.Manager
	Tracker      *tracker.Service
	Roster       *roster.Service
	Pending      *pending.Service
	Schedules    ScheduleStore
	Scheduler    Scheduler
	AdminUserID  int64
	ReportChatID int64
	Timezone     string
	DefaultGoals map[storage.Kind]float64
}

type Bot struct {
	api *tgbotapi.BotAPI
	s   sender

	sessions     *session.Manager
	tracker      *tracker.Service
	roster       *roster.Service
	pending      *pending.Service
	schedules    ScheduleStore
	scheduler    Scheduler
	adminUserID  int64
	reportChatID int64
	timezone     string
	defaultGoals map[storage.Kind]float64

	now func() time.Time
}

func New(botToken string, deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	log.Printf("🤖 Authorized on account @%s", api.Self.UserName)
	b := newBot(botAPISender{api: api}, deps)
	b.api = api
	return b, nil
}

func newBot(s sender, deps Deps) *Bot {
	return &Bot{
		s:            s,
		sessions:     deps.Sessions,
		tracker:      deps.Tracker,
		roster:       deps.Roster,
		pending:      deps.Pending,
		schedules:    deps.Schedules,
		scheduler:    deps.Scheduler,
		adminUserID:  deps.AdminUserID,
		reportChatID: deps.ReportChatID,
		timezone:     deps.Timezone,
		defaultGoals: deps.DefaultGoals,
		now:          time.Now,
	}
}

// Start polls for updates until ctx is done. A closed update channel is
// reopened with exponential backoff; pending report sessions are kept
// outside the poller and survive the restart.
func (b *Bot) Start(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0

	for {
		started := time.Now()
		b.poll(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > bo.MaxInterval {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		log.Printf("⚠️ update channel closed, reconnecting in %s", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (b *Bot) poll(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ panic while handling update %d: %v\n%s", update.UpdateID, r, debug.Stack())
		}
	}()
	switch {
	case update.Message != nil && update.Message.From != nil:
		if update.Message.IsCommand() {
			b.handleCommand(ctx, update.Message)
			return
		}
		b.handleIncomingMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

// SendPrompt implements tracker.Notifier.
func (b *Bot) SendPrompt(ctx context.Context, userID int64, text string, kinds []storage.Kind) error {
	msg := tgbotapi.NewMessage(userID, text)
	if len(kinds) > 0 {
		msg.ReplyMarkup = reportKeyboard(kinds)
	}
	_, err := b.s.Send(msg)
	return err
}

// Send implements tracker.Notifier.
func (b *Bot) Send(ctx context.Context, chatID int64, text string) error {
	_, err := b.s.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if _, err := b.s.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.adminUserID != 0 && userID == b.adminUserID
}

func reportKeyboard(kinds []storage.Kind) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kinds))
	for _, k := range kinds {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Ввести: "+publisher.Title(k), reportPrefix+string(k)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

var kindAliases = map[string]storage.Kind{
	"pages":            storage.KindPages,
	"страницы":         storage.KindPages,
	"стр":              storage.KindPages,
	"exercise_minutes": storage.KindExerciseMinutes,
	"exercise":         storage.KindExerciseMinutes,
	"workout":          storage.KindExerciseMinutes,
	"минуты":           storage.KindExerciseMinutes,
	"тренировки":       storage.KindExerciseMinutes,
}

// parseKind resolves user input to one of the allowed kinds.
func parseKind(s string, allowed []storage.Kind) (storage.Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	k, ok := kindAliases[s]
	if !ok {
		k = storage.Kind(s)
	}
	for _, a := range allowed {
		if a == k {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

func (b *Bot) kindsOf(p roster.Participant) []storage.Kind {
	if len(p.Goals) == 0 {
		if kinds := b.roster.Kinds(); len(kinds) > 0 {
			return kinds
		}
		return storage.DefaultKinds
	}
	set := make(map[storage.Kind]bool, len(p.Goals))
	for k := range p.Goals {
		set[k] = true
	}
	return storage.OrderKinds(set)
}
