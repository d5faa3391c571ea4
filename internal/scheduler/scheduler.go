package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"habit-tracker/internal/schedules"
	"habit-tracker/internal/tracker"
	"habit-tracker/internal/week"
)

const (
	minutesPerWeek   = 7 * 24 * 60
	housekeepingSpec = "@every 10m"
)

// Actions are the tracker operations the scheduler triggers.
type Actions interface {
	Ask(ctx context.Context, chatID int64) (tracker.AskResult, error)
	Remind(ctx context.Context, chatID int64) (tracker.RemindResult, error)
	Publish(ctx context.Context, chatID int64) (tracker.PublishResult, error)
}

// Expirer drops stale report sessions.
type Expirer interface {
	Expire(now time.Time) []int64
}

// Source lists the persisted chat schedules.
type Source interface {
	List() ([]schedules.Schedule, error)
}

type Options struct {
	RemindAfter  time.Duration
	PublishAfter time.Duration
	// WeekLocation is the timezone the tracker computes week ids in.
	WeekLocation *time.Location
	Now          func() time.Time
}

// Scheduler управляет cron-задачами чатов: ask, remind и publish.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	actions Actions
	expirer Expirer
	opts    Options

	mu      sync.Mutex
	entries map[int64][]cron.EntryID
	locks   map[int64]*sync.Mutex
}

// New создает новый планировщик. expirer may be nil.
func New(actions Actions, expirer Expirer, opts Options) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.WeekLocation == nil {
		opts.WeekLocation = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		ctx:     ctx,
		cancel:  cancel,
		actions: actions,
		expirer: expirer,
		opts:    opts,
		entries: make(map[int64][]cron.EntryID),
		locks:   make(map[int64]*sync.Mutex),
	}
}

// Start loads every stored schedule, catches up on asks whose time has
// already passed this week and starts the cron loop.
func (s *Scheduler) Start(src Source) error {
	if s.expirer != nil {
		if _, err := s.cron.AddFunc(housekeepingSpec, s.housekeeping); err != nil {
			return err
		}
	}
	list, err := src.List()
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	for _, sc := range list {
		if err := s.Apply(sc); err != nil {
			log.Printf("⚠️ skipping schedule for chat %d: %v", sc.ChatID, err)
			continue
		}
		if s.askDue(sc) {
			chatID := sc.ChatID
			log.Printf("⏰ catch-up ask for chat %d", chatID)
			go s.run(chatID, tracker.ActionAsk, s.ask(chatID))
		}
	}
	s.cron.Start()
	log.Printf("📅 Scheduler started with %d chat schedule(s)", len(list))
	return nil
}

// Apply installs or replaces the triggers of one chat.
func (s *Scheduler) Apply(sc schedules.Schedule) error {
	if err := s.Validate(sc); err != nil {
		return err
	}
	ask, remind, publish, err := Specs(sc, s.opts.RemindAfter, s.opts.PublishAfter)
	if err != nil {
		return err
	}
	chatID := sc.ChatID

	s.mu.Lock()
	defer s.mu.Unlock()

	var added []cron.EntryID
	for _, job := range []struct {
		spec   string
		action string
		fn     func(context.Context) error
	}{
		{ask, tracker.ActionAsk, s.ask(chatID)},
		{remind, tracker.ActionRemind, s.remind(chatID)},
		{publish, tracker.ActionPublish, s.publish(chatID)},
	} {
		action, fn := job.action, job.fn
		id, err := s.cron.AddFunc(job.spec, func() { s.run(chatID, action, fn) })
		if err != nil {
			for _, a := range added {
				s.cron.Remove(a)
			}
			return fmt.Errorf("add %s trigger: %w", action, err)
		}
		added = append(added, id)
	}
	for _, old := range s.entries[chatID] {
		s.cron.Remove(old)
	}
	s.entries[chatID] = added
	log.Printf("📅 chat %d scheduled: %s %s (%s)", chatID, sc.Day, sc.Clock(), sc.Timezone)
	return nil
}

// Remove drops the triggers of a chat. It reports whether any existed.
func (s *Scheduler) Remove(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, ok := s.entries[chatID]
	for _, id := range ids {
		s.cron.Remove(id)
	}
	delete(s.entries, chatID)
	return ok
}

// Next returns the next ask, remind and publish times of a chat.
func (s *Scheduler) Next(chatID int64) []time.Time {
	s.mu.Lock()
	ids := append([]cron.EntryID(nil), s.entries[chatID]...)
	s.mu.Unlock()
	out := make([]time.Time, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.cron.Entry(id).Next)
	}
	return out
}

// Stop останавливает планировщик и ждет завершения запущенных задач.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	log.Println("📅 Scheduler stopped")
}

// Validate checks that the reminder of sc falls into the week its ask opens,
// while the participants can still report, and that the publish lands no
// later than the following week.
func (s *Scheduler) Validate(sc schedules.Schedule) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	askAt, err := askTime(sc, s.opts.Now())
	if err != nil {
		return err
	}
	wl := s.opts.WeekLocation
	opened := week.ID(askAt, wl)
	remindAt := askAt.Add(s.opts.RemindAfter).In(wl)
	if got := week.ID(remindAt, wl); got != opened {
		return fmt.Errorf("reminder at %s %s falls into week %s, after week %s is closed",
			remindAt.Weekday(), remindAt.Format("15:04"), got, opened)
	}
	next, err := week.Next(opened)
	if err != nil {
		return err
	}
	if got := week.ID(askAt.Add(s.opts.PublishAfter), wl); got != opened && got != next {
		return fmt.Errorf("publish falls into week %s, more than a week after %s", got, opened)
	}
	return nil
}

// Specs builds the cron specs of a schedule. Remind and publish are offset
// from the ask time and wrap across midnight and the end of the week.
func Specs(sc schedules.Schedule, remindAfter, publishAfter time.Duration) (ask, remind, publish string, err error) {
	if err := sc.Validate(); err != nil {
		return "", "", "", err
	}
	tz := sc.Timezone
	if tz == "" {
		tz = "UTC"
	}
	base := int(sc.Day)*24*60 + sc.Hour*60 + sc.Minute
	spec := func(offset time.Duration) string {
		m := (base + int(offset/time.Minute)) % minutesPerWeek
		if m < 0 {
			m += minutesPerWeek
		}
		return fmt.Sprintf("CRON_TZ=%s %d %d * * %d", tz, m%60, (m/60)%24, m/(24*60))
	}
	return spec(0), spec(remindAfter), spec(publishAfter), nil
}

func (s *Scheduler) ask(chatID int64) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.actions.Ask(ctx, chatID)
		return err
	}
}

func (s *Scheduler) remind(chatID int64) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.actions.Remind(ctx, chatID)
		return err
	}
}

func (s *Scheduler) publish(chatID int64) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.actions.Publish(ctx, chatID)
		return err
	}
}

// run executes one job; jobs of the same chat never overlap.
func (s *Scheduler) run(chatID int64, action string, fn func(context.Context) error) {
	lock := s.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	log.Printf("🕘 %s triggered for chat %d", action, chatID)
	err := fn(s.ctx)
	switch {
	case err == nil:
	case errors.Is(err, tracker.ErrWeekNotOpen):
		log.Printf("ℹ️ %s for chat %d skipped: %v", action, chatID, err)
	default:
		log.Printf("❌ %s for chat %d failed: %v", action, chatID, err)
	}
}

func (s *Scheduler) chatLock(chatID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chatID] = l
	}
	return l
}

func (s *Scheduler) housekeeping() {
	if ids := s.expirer.Expire(s.opts.Now()); len(ids) > 0 {
		log.Printf("🧹 expired %d idle report session(s)", len(ids))
	}
}

// askDue reports whether this week's ask time of sc is already behind us.
func (s *Scheduler) askDue(sc schedules.Schedule) bool {
	now := s.opts.Now()
	askAt, err := askTime(sc, now)
	if err != nil {
		return false
	}
	return !now.Before(askAt)
}

// askTime returns the ask instant of sc in the week containing now, in the
// schedule's own timezone.
func askTime(sc schedules.Schedule, now time.Time) (time.Time, error) {
	loc, err := sc.Location()
	if err != nil {
		return time.Time{}, err
	}
	monday := week.Start(now, loc)
	day := (int(sc.Day) + 6) % 7
	return time.Date(monday.Year(), monday.Month(), monday.Day()+day, sc.Hour, sc.Minute, 0, 0, loc), nil
}
