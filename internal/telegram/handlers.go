package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"habit-tracker/internal/publisher"
	"habit-tracker/internal/roster"
	"habit-tracker/internal/schedules"
	"habit-tracker/internal/session"
	"habit-tracker/internal/storage"
	"habit-tracker/internal/tracker"
)

const helpText = `Я собираю еженедельные результаты: прочитанные страницы и минуты тренировок.

/report [pages|exercise_minutes] — отправить результат
/cancel — отменить ввод
/results — результаты текущей недели
/goal <метрика> <число> — изменить свою цель
/join — попроситься в участники

Для администратора:
/schedule <день> <ЧЧ:ММ> [часовой пояс] — расписание чата
/unschedule — снять расписание
/publish — опубликовать результаты сейчас
/participants, /approve <id>, /reject <id>, /remove <id>`

const (
	notParticipantText = "Вы не являетесь участником этого отслеживания. Отправьте /join, чтобы подать заявку."
	closedWeekText     = "Сейчас не время для отправки результатов: неделя ещё не открыта. Ждите запроса от бота!"
	adminOnlyText      = "У вас нет прав для этой команды."
	repromptText       = "Пожалуйста, отправьте неотрицательное число, например 45 или 3,5."
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.sendMessage(msg.Chat.ID, helpText)
	case "report":
		b.handleReportCommand(msg)
	case "cancel":
		b.handleCancel(msg)
	case "results":
		b.handleResults(msg)
	case "goal":
		b.handleGoal(msg)
	case "join":
		b.handleJoin(msg)
	case "publish":
		b.handlePublish(ctx, msg)
	case "schedule", "unschedule", "participants", "approve", "reject", "remove":
		if !b.isAdmin(msg.From.ID) {
			b.sendMessage(msg.Chat.ID, adminOnlyText)
			return
		}
		b.handleAdminCommand(msg)
	default:
		b.sendMessage(msg.Chat.ID, "Неизвестная команда. /help — список команд.")
	}
}

func (b *Bot) handleAdminCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "schedule":
		b.handleSchedule(msg)
	case "unschedule":
		b.handleUnschedule(msg)
	case "participants":
		var bld strings.Builder
		bld.WriteString("Участники:\n")
		for _, p := range b.roster.List() {
			bld.WriteString(fmt.Sprintf("- id=%d %s %s\n", p.ID, p.DisplayName(), formatGoals(p.Goals)))
		}
		if reqs := b.pending.List(); len(reqs) > 0 {
			bld.WriteString("\nЗаявки:\n")
			for _, p := range reqs {
				bld.WriteString(fmt.Sprintf("- id=%d %s\n", p.ID, p.DisplayName()))
			}
		}
		b.sendMessage(msg.Chat.ID, bld.String())
	case "approve", "reject", "remove":
		args := strings.Fields(msg.CommandArguments())
		if len(args) != 1 {
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("Usage: /%s <user_id>", msg.Command()))
			return
		}
		uid, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			b.sendMessage(msg.Chat.ID, "Некорректный user_id")
			return
		}
		switch msg.Command() {
		case "approve":
			b.approveUser(uid)
		case "reject":
			b.rejectUser(uid)
		default:
			b.removeUser(uid)
		}
	}
}

func (b *Bot) handleReportCommand(msg *tgbotapi.Message) {
	p, ok := b.roster.Get(msg.From.ID)
	if !ok {
		b.sendMessage(msg.Chat.ID, notParticipantText)
		return
	}
	kinds := b.kindsOf(p)
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" && len(kinds) > 1 {
		if !b.tracker.ReportingOpen(b.now()) {
			b.sendMessage(msg.Chat.ID, closedWeekText)
			return
		}
		b.sendWithKeyboard(msg.Chat.ID, "Что хотите отправить?", reportKeyboard(kinds))
		return
	}
	kind := kinds[0]
	if arg != "" {
		k, err := parseKind(arg, kinds)
		if err != nil {
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("Неизвестная метрика %q. Доступно: %s", arg, joinKinds(kinds)))
			return
		}
		kind = k
	}
	b.startReport(msg.Chat.ID, msg.From.ID, kind)
}

func (b *Bot) startReport(chatID, userID int64, kind storage.Kind) {
	res, err := b.sessions.Start(userID, kind, b.now())
	if errors.Is(err, session.ErrNotReportingPeriod) {
		b.sendMessage(chatID, closedWeekText)
		return
	}
	if err != nil {
		log.Printf("failed to start report for %d: %v", userID, err)
		return
	}
	text := fmt.Sprintf("%s за неделю: отправьте число, например 45 или 3,5.", publisher.Title(kind))
	if res.Replaced != "" {
		text = fmt.Sprintf("Ввод «%s» отменён.\n", publisher.Title(res.Replaced)) + text
	}
	b.sendMessage(chatID, text)
}

func (b *Bot) handleCancel(msg *tgbotapi.Message) {
	res := b.sessions.Cancel(msg.From.ID)
	if res.Outcome != session.OutcomeCancelled {
		b.sendMessage(msg.Chat.ID, "Нечего отменять.")
		return
	}
	b.sendMessage(msg.Chat.ID, fmt.Sprintf("Ввод «%s» отменён, ничего не сохранено.", publisher.Title(res.Kind)))
}

func (b *Bot) handleResults(msg *tgbotapi.Message) {
	text, err := b.tracker.Results()
	if err != nil {
		log.Printf("failed to build results: %v", err)
		b.sendMessage(msg.Chat.ID, "Не удалось посчитать результаты, попробуйте позже.")
		return
	}
	b.sendMessage(msg.Chat.ID, text)
}

func (b *Bot) handleGoal(msg *tgbotapi.Message) {
	p, ok := b.roster.Get(msg.From.ID)
	if !ok {
		b.sendMessage(msg.Chat.ID, notParticipantText)
		return
	}
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		b.sendMessage(msg.Chat.ID, "Usage: /goal <pages|exercise_minutes> <число>\nТекущие цели: "+formatGoals(p.Goals))
		return
	}
	kind, err := parseKind(args[0], storage.DefaultKinds)
	if err != nil {
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("Неизвестная метрика %q", args[0]))
		return
	}
	target, err := session.ParseValue(args[1])
	if err != nil {
		b.sendMessage(msg.Chat.ID, repromptText)
		return
	}
	if err := b.roster.SetGoal(p.ID, kind, target); err != nil {
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("Не удалось сохранить цель: %v", err))
		return
	}
	b.sendMessage(msg.Chat.ID, fmt.Sprintf("Цель обновлена: %s %s в неделю.", publisher.FormatValue(target), publisher.Unit(kind)))
}

func (b *Bot) handleJoin(msg *tgbotapi.Message) {
	if b.roster.IsParticipant(msg.From.ID) {
		b.sendMessage(msg.Chat.ID, "Вы уже участвуете.")
		return
	}
	name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	added, err := b.pending.Add(roster.Participant{ID: msg.From.ID, Name: name, Username: msg.From.UserName})
	if err != nil {
		log.Printf("failed to store join request: %v", err)
		b.sendMessage(msg.Chat.ID, "Не удалось отправить заявку, попробуйте позже.")
		return
	}
	if !added {
		b.sendMessage(msg.Chat.ID, "Ваша заявка уже отправлена администратору. Пожалуйста, ожидайте подтверждения.")
		return
	}
	b.sendMessage(msg.Chat.ID, "Заявка отправлена администратору. Как только он подтвердит, вы получите уведомление.")
	b.notifyAdminRequest(msg.From.ID, name, msg.From.UserName)
}

func (b *Bot) notifyAdminRequest(userID int64, name, username string) {
	if b.adminUserID == 0 {
		return
	}
	text := fmt.Sprintf("Пользователь %s (@%s, id %d) хочет участвовать", name, username, userID)
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("принять", approvePrefix+strconv.FormatInt(userID, 10)),
			tgbotapi.NewInlineKeyboardButtonData("отклонить", rejectPrefix+strconv.FormatInt(userID, 10)),
		),
	)
	b.sendWithKeyboard(b.adminUserID, text, kb)
}

func (b *Bot) approveUser(id int64) {
	p, ok, err := b.pending.Take(id)
	if err != nil {
		b.sendMessage(b.adminUserID, fmt.Sprintf("Ошибка: %v", err))
		return
	}
	if !ok {
		b.sendMessage(b.adminUserID, fmt.Sprintf("Заявка %d не найдена", id))
		return
	}
	p.Goals = make(map[storage.Kind]float64, len(b.defaultGoals))
	for k, v := range b.defaultGoals {
		p.Goals[k] = v
	}
	if err := b.roster.Upsert(p); err != nil {
		b.sendMessage(b.adminUserID, fmt.Sprintf("Ошибка сохранения участника: %v", err))
		return
	}
	b.sendMessage(b.adminUserID, fmt.Sprintf("%s добавлен в участники", p.DisplayName()))
	b.sendMessage(id, "Вы добавлены в участники! Цели на неделю: "+formatGoals(p.Goals)+". Изменить: /goal")
}

func (b *Bot) rejectUser(id int64) {
	p, ok, err := b.pending.Take(id)
	if err != nil {
		b.sendMessage(b.adminUserID, fmt.Sprintf("Ошибка: %v", err))
		return
	}
	if !ok {
		b.sendMessage(b.adminUserID, fmt.Sprintf("Заявка %d не найдена", id))
		return
	}
	b.sendMessage(b.adminUserID, fmt.Sprintf("Заявка %s отклонена", p.DisplayName()))
	b.sendMessage(id, "Администратор отклонил заявку.")
}

func (b *Bot) removeUser(id int64) {
	p, ok := b.roster.Get(id)
	if !ok {
		b.sendMessage(b.adminUserID, fmt.Sprintf("Участник %d не найден", id))
		return
	}
	if err := b.roster.Remove(id); err != nil {
		b.sendMessage(b.adminUserID, fmt.Sprintf("Ошибка удаления участника: %v", err))
		return
	}
	b.sessions.Cancel(id)
	b.sendMessage(b.adminUserID, fmt.Sprintf("%s удалён из участников", p.DisplayName()))
	b.sendMessage(id, "Администратор исключил вас из участников. Записанные результаты сохранены.")
}

func (b *Bot) handlePublish(ctx context.Context, msg *tgbotapi.Message) {
	target := msg.Chat.ID
	if msg.Chat.IsPrivate() && b.reportChatID != 0 {
		target = b.reportChatID
	}
	res, err := b.tracker.ForcePublish(ctx, msg.From.ID, target)
	switch {
	case errors.Is(err, tracker.ErrPermissionDenied):
		b.sendMessage(msg.Chat.ID, adminOnlyText)
	case errors.Is(err, tracker.ErrWeekNotOpen):
		b.sendMessage(msg.Chat.ID, "Неделя ещё не открыта: публиковать нечего.")
	case err != nil:
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("Не удалось опубликовать результаты: %v", err))
	case res.Skipped:
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("Результаты за неделю %s уже опубликованы.", res.WeekID))
	case target != msg.Chat.ID:
		b.sendMessage(msg.Chat.ID, "Результаты опубликованы.")
	}
}

func (b *Bot) handleSchedule(msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		sc, ok, err := b.schedules.Get(msg.Chat.ID)
		switch {
		case err != nil:
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("Ошибка: %v", err))
		case !ok:
			b.sendMessage(msg.Chat.ID, "Расписание не задано. Usage: /schedule <день> <ЧЧ:ММ> [часовой пояс]")
		default:
			b.sendMessage(msg.Chat.ID, b.describeSchedule(sc))
		}
		return
	}
	if len(args) < 2 || len(args) > 3 {
		b.sendMessage(msg.Chat.ID, "Usage: /schedule <день> <ЧЧ:ММ> [часовой пояс]")
		return
	}
	tz := b.timezone
	if len(args) == 3 {
		tz = args[2]
	}
	sc, err := schedules.Parse(msg.Chat.ID, args[0], args[1], tz)
	if err == nil {
		err = b.scheduler.Validate(sc)
	}
	if err != nil {
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("Некорректное расписание: %v", err))
		return
	}
	sc.UpdatedAt = b.now()
	if err := b.schedules.Upsert(sc); err != nil {
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("Не удалось сохранить расписание: %v", err))
		return
	}
	if err := b.scheduler.Apply(sc); err != nil {
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("Не удалось применить расписание: %v", err))
		return
	}
	b.sendMessage(msg.Chat.ID, "Расписание сохранено.\n"+b.describeSchedule(sc))
}

func (b *Bot) handleUnschedule(msg *tgbotapi.Message) {
	removed, err := b.schedules.Delete(msg.Chat.ID)
	if err != nil {
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("Ошибка: %v", err))
		return
	}
	b.scheduler.Remove(msg.Chat.ID)
	if !removed {
		b.sendMessage(msg.Chat.ID, "Расписание не было задано.")
		return
	}
	b.sendMessage(msg.Chat.ID, "Расписание снято.")
}

func (b *Bot) describeSchedule(sc schedules.Schedule) string {
	text := fmt.Sprintf("Запрос результатов: %s %s (%s)", sc.Day, sc.Clock(), sc.Timezone)
	if b.scheduler == nil {
		return text
	}
	labels := []string{"запрос", "напоминание", "публикация"}
	for i, next := range b.scheduler.Next(sc.ChatID) {
		if i < len(labels) && !next.IsZero() {
			text += fmt.Sprintf("\nСледующий %s: %s", labels[i], next.Format("02.01.2006 15:04 MST"))
		}
	}
	return text
}

// handleIncomingMessage feeds private free text into the report session.
func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.Chat.IsPrivate() {
		return
	}
	res, err := b.sessions.Input(msg.From.ID, msg.Text, b.now())
	var ioErr *storage.StoreIOError
	switch {
	case errors.Is(err, session.ErrNotReportingPeriod):
		b.sendMessage(msg.Chat.ID, closedWeekText)
	case errors.As(err, &ioErr):
		log.Printf("❌ failed to save entry of %d: %v", msg.From.ID, err)
		b.sendMessage(msg.Chat.ID, "Не удалось сохранить результат, попробуйте отправить число ещё раз чуть позже.")
		b.tracker.NotifyAdmin(ctx, fmt.Sprintf("❌ Ошибка записи результата участника %d: %v", msg.From.ID, err))
	case err != nil:
		log.Printf("failed to record input of %d: %v", msg.From.ID, err)
		b.sendMessage(msg.Chat.ID, "Что-то пошло не так, попробуйте ещё раз.")
	case res.Outcome == session.OutcomeReprompt:
		b.sendMessage(msg.Chat.ID, repromptText)
	case res.Outcome == session.OutcomeSaved:
		log.Printf("📝 %d recorded %s=%v", msg.From.ID, res.Kind, res.Entry.Value)
		b.sendSaved(msg.Chat.ID, msg.From.ID, res)
	case b.roster.IsParticipant(msg.From.ID):
		b.sendMessage(msg.Chat.ID, "Чтобы отправить результаты, используйте /report.")
	default:
		b.sendMessage(msg.Chat.ID, notParticipantText)
	}
}

func (b *Bot) sendSaved(chatID, userID int64, res session.Result) {
	text := fmt.Sprintf("Спасибо! Записано: %s %s.", publisher.FormatValue(res.Entry.Value), publisher.Unit(res.Kind))
	p, _ := b.roster.Get(userID)
	var rest []storage.Kind
	for _, k := range b.kindsOf(p) {
		if k != res.Kind {
			rest = append(rest, k)
		}
	}
	if len(rest) == 0 {
		b.sendMessage(chatID, text)
		return
	}
	b.sendWithKeyboard(chatID, text+"\nОтправить ещё:", reportKeyboard(rest))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := b.s.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("failed to answer callback: %v", err)
	}
	switch {
	case strings.HasPrefix(cb.Data, reportPrefix):
		p, ok := b.roster.Get(cb.From.ID)
		if !ok {
			b.sendMessage(cb.From.ID, notParticipantText)
			return
		}
		kind, err := parseKind(strings.TrimPrefix(cb.Data, reportPrefix), b.kindsOf(p))
		if err != nil {
			b.sendMessage(cb.From.ID, "Эта метрика больше не отслеживается.")
			return
		}
		b.startReport(cb.From.ID, cb.From.ID, kind)
	case strings.HasPrefix(cb.Data, approvePrefix), strings.HasPrefix(cb.Data, rejectPrefix):
		if !b.isAdmin(cb.From.ID) {
			return
		}
		approve := strings.HasPrefix(cb.Data, approvePrefix)
		idStr := strings.TrimPrefix(strings.TrimPrefix(cb.Data, approvePrefix), rejectPrefix)
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return
		}
		if approve {
			b.approveUser(id)
		} else {
			b.rejectUser(id)
		}
	}
}

func formatGoals(goals map[storage.Kind]float64) string {
	if len(goals) == 0 {
		return "не заданы"
	}
	set := make(map[storage.Kind]bool, len(goals))
	for k := range goals {
		set[k] = true
	}
	parts := make([]string, 0, len(goals))
	for _, k := range storage.OrderKinds(set) {
		parts = append(parts, publisher.FormatValue(goals[k])+" "+publisher.Unit(k))
	}
	return strings.Join(parts, ", ")
}

func joinKinds(kinds []storage.Kind) string {
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, string(k))
	}
	return strings.Join(parts, ", ")
}
