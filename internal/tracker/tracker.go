package tracker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"habit-tracker/internal/analytics"
	"habit-tracker/internal/publisher"
	"habit-tracker/internal/roster"
	"habit-tracker/internal/schedules"
	"habit-tracker/internal/storage"
	"habit-tracker/internal/week"
)

const (
	ActionAsk     = "ask"
	ActionRemind  = "remind"
	ActionPublish = "publish"
)

// Notifier delivers outbound messages.
type Notifier interface {
	// SendPrompt sends a direct message with one "enter data" button per kind.
	SendPrompt(ctx context.Context, userID int64, text string, kinds []storage.Kind) error
	Send(ctx context.Context, chatID int64, text string) error
}

// Roster is the participant list the actions iterate over.
type Roster interface {
	List() []roster.Participant
	Goals() map[int64]map[storage.Kind]float64
	Kinds() []storage.Kind
}

// Ledger records action runs per chat and week.
type Ledger interface {
	RecordRun(r schedules.Run) error
	LastRun(chatID int64, action, week string) (schedules.Run, bool, error)
}

type Options struct {
	AdminID      int64
	Location     *time.Location
	Policy       analytics.Policy
	HistoryWeeks int
	Now          func() time.Time
}

// Service implements the scheduled and on-demand tracker actions.
type Service struct {
	store     storage.Store
	roster    Roster
	notifier  Notifier
	ledger    Ledger
	publisher *publisher.Publisher
	opts      Options

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func New(store storage.Store, r Roster, n Notifier, ledger Ledger, pub *publisher.Publisher, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HistoryWeeks < 1 {
		opts.HistoryWeeks = 5
	}
	return &Service{
		store:     store,
		roster:    r,
		notifier:  n,
		ledger:    ledger,
		publisher: pub,
		opts:      opts,
		locks:     make(map[int64]*sync.Mutex),
	}
}

type AskResult struct {
	WeekID string
	Opened bool
	Sent   int
	Failed []*DeliveryError
}

type RemindResult struct {
	WeekID string
	Sent   int
	Failed []*DeliveryError
}

type PublishResult struct {
	WeekID  string
	Skipped bool
}

// SetNotifier устанавливает канал доставки сообщений.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

func (s *Service) Location() *time.Location { return s.opts.Location }

// CurrentWeek returns the week id of now in the configured timezone.
func (s *Service) CurrentWeek() string {
	return week.ID(s.opts.Now(), s.opts.Location)
}

// ReportingOpen reports whether entries recorded at now are accepted.
func (s *Service) ReportingOpen(now time.Time) bool {
	return s.store.IsWeekOpen(week.ID(now, s.opts.Location))
}

func (s *Service) IsAdmin(userID int64) bool {
	return s.opts.AdminID != 0 && userID == s.opts.AdminID
}

// Ask opens the current week and asks every participant for their numbers.
// A week that is already open is left alone and nobody is asked twice.
func (s *Service) Ask(ctx context.Context, chatID int64) (AskResult, error) {
	now := s.opts.Now()
	res := AskResult{WeekID: week.ID(now, s.opts.Location)}

	opened, err := s.store.OpenWeek(res.WeekID, now)
	if err != nil {
		s.record(chatID, ActionAsk, res.WeekID, schedules.StatusFailed, err.Error())
		s.NotifyAdmin(ctx, fmt.Sprintf("❌ Не удалось открыть неделю %s: %v", res.WeekID, err))
		return res, fmt.Errorf("open week %s: %w", res.WeekID, err)
	}
	if !opened {
		log.Printf("ℹ️ week %s already open, ask skipped for chat %d", res.WeekID, chatID)
		s.record(chatID, ActionAsk, res.WeekID, schedules.StatusSkipped, "already open")
		return res, nil
	}
	res.Opened = true

	for _, p := range s.roster.List() {
		text := askText(p, res.WeekID)
		if err := s.notifier.SendPrompt(ctx, p.ID, text, s.kindsFor(p)); err != nil {
			res.Failed = append(res.Failed, &DeliveryError{RecipientID: p.ID, Action: ActionAsk, Err: err})
			continue
		}
		res.Sent++
	}
	s.reportFailures(ctx, "запроса результатов", res.Failed)
	s.record(chatID, ActionAsk, res.WeekID, schedules.StatusDone, batchDetail(res.Sent, res.Failed))
	log.Printf("📨 ask %s: sent=%d failed=%d", res.WeekID, res.Sent, len(res.Failed))
	return res, nil
}

// Remind pings participants that have no entry in the current week. It only
// runs while that week accepts reports.
func (s *Service) Remind(ctx context.Context, chatID int64) (RemindResult, error) {
	now := s.opts.Now()
	res := RemindResult{WeekID: week.ID(now, s.opts.Location)}
	if !s.store.IsWeekOpen(res.WeekID) {
		s.record(chatID, ActionRemind, res.WeekID, schedules.StatusSkipped, "week not open")
		return res, ErrWeekNotOpen
	}
	start, end, err := week.Bounds(res.WeekID, s.opts.Location)
	if err != nil {
		return res, err
	}
	for _, p := range s.roster.List() {
		if len(s.store.ReadRange(p.ID, start, end)) > 0 {
			continue
		}
		if err := s.notifier.SendPrompt(ctx, p.ID, remindText, s.kindsFor(p)); err != nil {
			res.Failed = append(res.Failed, &DeliveryError{RecipientID: p.ID, Action: ActionRemind, Err: err})
			continue
		}
		res.Sent++
	}
	s.reportFailures(ctx, "напоминания", res.Failed)
	s.record(chatID, ActionRemind, res.WeekID, schedules.StatusDone, batchDetail(res.Sent, res.Failed))
	log.Printf("🔔 remind %s: sent=%d failed=%d", res.WeekID, res.Sent, len(res.Failed))
	return res, nil
}

// Publish posts the summary of the live week to chatID once. The live week
// is the one the last ask opened, so a publish that fires shortly after
// Monday 00:00 still reports the week that was just asked.
func (s *Service) Publish(ctx context.Context, chatID int64) (PublishResult, error) {
	weekID, ok := s.liveWeek(s.opts.Now())
	if !ok {
		s.record(chatID, ActionPublish, weekID, schedules.StatusSkipped, "week not open")
		return PublishResult{WeekID: weekID}, ErrWeekNotOpen
	}
	return s.publishOnce(ctx, chatID, weekID)
}

// ForcePublish publishes immediately on the admin's request. Only the
// timing is bypassed: the live week must be open and a week already
// published to chatID is not posted again.
func (s *Service) ForcePublish(ctx context.Context, actorID, chatID int64) (PublishResult, error) {
	if !s.IsAdmin(actorID) {
		return PublishResult{}, ErrPermissionDenied
	}
	weekID, ok := s.liveWeek(s.opts.Now())
	if !ok {
		return PublishResult{WeekID: weekID}, ErrWeekNotOpen
	}
	return s.publishOnce(ctx, chatID, weekID)
}

// liveWeek returns the latest opened week if it is the current week or the
// one right before it. Otherwise it returns the current week id and false.
func (s *Service) liveWeek(now time.Time) (string, bool) {
	cur := week.ID(now, s.opts.Location)
	prev, err := week.Previous(cur)
	if err != nil {
		return cur, false
	}
	live := ""
	for _, w := range s.store.OpenedWeeks() {
		if (w.Week == cur || w.Week == prev) && w.Week > live {
			live = w.Week
		}
	}
	if live == "" {
		return cur, false
	}
	return live, true
}

// publishOnce serialises publishes per chat and consults the ledger, so the
// scheduled and the forced path never post the same week twice.
func (s *Service) publishOnce(ctx context.Context, chatID int64, weekID string) (PublishResult, error) {
	lock := s.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	res := PublishResult{WeekID: weekID}
	if s.ledger != nil {
		last, ok, err := s.ledger.LastRun(chatID, ActionPublish, weekID)
		if err != nil {
			log.Printf("⚠️ ledger lookup failed: %v", err)
		} else if ok && last.Status == schedules.StatusDone {
			log.Printf("ℹ️ summary for %s already published to %d", weekID, chatID)
			res.Skipped = true
			return res, nil
		}
	}
	return res, s.publish(ctx, chatID, weekID)
}

func (s *Service) chatLock(chatID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chatID] = l
	}
	return l
}

// Summary computes the summary and history of weekID for the roster.
func (s *Service) Summary(weekID string) (*analytics.WeeklySummary, []analytics.WeekTotals, error) {
	goals := s.roster.Goals()
	list := s.roster.List()
	ids := make([]int64, 0, len(list))
	for _, p := range list {
		ids = append(ids, p.ID)
	}
	sum, err := analytics.Summarize(s.store, analytics.Request{
		WeekID:       weekID,
		Location:     s.opts.Location,
		Participants: ids,
		Goals:        goals,
		Policy:       s.opts.Policy,
	})
	if err != nil {
		return nil, nil, err
	}
	history, err := analytics.History(s.store, weekID, s.opts.HistoryWeeks, s.opts.Location, ids, sum.Kinds, s.opts.Policy)
	if err != nil {
		return nil, nil, err
	}
	return sum, history, nil
}

// Results renders the current week's summary on request. It has no side
// effects and works whether or not the week is open.
func (s *Service) Results() (string, error) {
	sum, history, err := s.Summary(s.CurrentWeek())
	if err != nil {
		return "", err
	}
	return publisher.FormatSummary(sum, history, s.DisplayName), nil
}

// NotifyAdmin forwards an operational problem to the admin chat.
func (s *Service) NotifyAdmin(ctx context.Context, text string) {
	if s.opts.AdminID == 0 {
		log.Printf("⚠️ %s", text)
		return
	}
	if err := s.notifier.Send(ctx, s.opts.AdminID, text); err != nil {
		log.Printf("❌ failed to notify admin: %v (message: %s)", err, text)
	}
}

func (s *Service) publish(ctx context.Context, chatID int64, weekID string) error {
	sum, history, err := s.Summary(weekID)
	if err != nil {
		s.record(chatID, ActionPublish, weekID, schedules.StatusFailed, err.Error())
		return fmt.Errorf("summarize %s: %w", weekID, err)
	}
	text := s.publisher.Render(ctx, sum, history)
	if err := s.notifier.Send(ctx, chatID, text); err != nil {
		derr := &DeliveryError{RecipientID: chatID, Action: ActionPublish, Err: err}
		s.record(chatID, ActionPublish, weekID, schedules.StatusFailed, err.Error())
		s.NotifyAdmin(ctx, fmt.Sprintf("❌ Ошибка при отправке результатов в чат %d: %v", chatID, err))
		return derr
	}
	s.record(chatID, ActionPublish, weekID, schedules.StatusDone, "")
	log.Printf("📊 published %s to chat %d", weekID, chatID)
	return nil
}

func (s *Service) record(chatID int64, action, weekID, status, detail string) {
	if s.ledger == nil {
		return
	}
	err := s.ledger.RecordRun(schedules.Run{
		ChatID: chatID,
		Action: action,
		Week:   weekID,
		Status: status,
		Detail: detail,
		RunAt:  s.opts.Now(),
	})
	if err != nil {
		log.Printf("⚠️ failed to record %s run for chat %d: %v", action, chatID, err)
	}
}

func (s *Service) reportFailures(ctx context.Context, what string, failed []*DeliveryError) {
	if len(failed) == 0 {
		return
	}
	lines := make([]string, 0, len(failed))
	for _, f := range failed {
		log.Printf("❌ %v", f)
		lines = append(lines, fmt.Sprintf("• %d: %v", f.RecipientID, f.Err))
	}
	s.NotifyAdmin(ctx, fmt.Sprintf("⚠️ Ошибка при отправке %s:\n%s", what, strings.Join(lines, "\n")))
}

func (s *Service) kindsFor(p roster.Participant) []storage.Kind {
	if len(p.Goals) > 0 {
		set := make(map[storage.Kind]bool, len(p.Goals))
		for k := range p.Goals {
			set[k] = true
		}
		return storage.OrderKinds(set)
	}
	if kinds := s.roster.Kinds(); len(kinds) > 0 {
		return kinds
	}
	return storage.DefaultKinds
}

// DisplayName resolves a participant id for messages.
func (s *Service) DisplayName(id int64) string {
	for _, p := range s.roster.List() {
		if p.ID == id {
			return p.DisplayName()
		}
	}
	return fmt.Sprintf("%d", id)
}

const remindText = "Напоминание: пожалуйста, отправь свои результаты за неделю!"

func askText(p roster.Participant, weekID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Привет, %s! Пожалуйста, отправь свои результаты за неделю %s.", p.DisplayName(), weekID)
	if len(p.Goals) > 0 {
		set := make(map[storage.Kind]bool, len(p.Goals))
		for k := range p.Goals {
			set[k] = true
		}
		goals := make([]string, 0, len(set))
		for _, k := range storage.OrderKinds(set) {
			goals = append(goals, publisher.FormatValue(p.Goals[k])+" "+publisher.Unit(k))
		}
		fmt.Fprintf(&b, "\nЦели на неделю: %s.", strings.Join(goals, ", "))
	}
	b.WriteString("\nНажми кнопку ниже, чтобы ввести данные.")
	return b.String()
}

func batchDetail(sent int, failed []*DeliveryError) string {
	return fmt.Sprintf("sent=%d failed=%d", sent, len(failed))
}
