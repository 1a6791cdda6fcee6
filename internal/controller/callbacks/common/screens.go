package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/hallpass/internal/controller/callbacks/common/keyboard"
	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/Freeeeeet/hallpass/internal/service"
	"github.com/Freeeeeet/hallpass/internal/stats"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
)

// Билдеры экранов: текст + клавиатура

// FormatCapacity вместимость места для показа
func FormatCapacity(dest *model.Destination) string {
	if !dest.HasCapacity() {
		return "без ограничения"
	}
	return fmt.Sprintf("мест: %d", *dest.Capacity)
}

func displayName(names map[uuid.UUID]string, id uuid.UUID) string {
	if name := names[id]; name != "" {
		return name
	}
	return "ученик " + id.String()[:8]
}

// BuildQueueScreen очередь места с кнопками действий учителя
func BuildQueueScreen(dest *model.Destination, entries []*model.WaitListEntry, names map[uuid.UUID]string) (string, *models.InlineKeyboardMarkup) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🚪 %s (%s)\n\n", dest.Name, FormatCapacity(dest))

	kb := keyboard.NewBuilder()

	if len(entries) == 0 {
		sb.WriteString("Очередь пуста")
	}

	for _, e := range entries {
		name := displayName(names, e.StudentID)
		if e.IsApproved() {
			fmt.Fprintf(&sb, "%d. ✅ %s - может выходить\n", e.Position, name)
		} else {
			fmt.Fprintf(&sb, "%d. ⏳ %s\n", e.Position, name)
		}

		row := []models.InlineKeyboardButton{
			keyboard.Button(fmt.Sprintf("⏭ %d", e.Position), WaitlistActionData(model.WaitlistActionSkip, e.ID)),
		}
		if e.IsWaiting() {
			row = append(row, keyboard.Button(fmt.Sprintf("✅ %d", e.Position), WaitlistActionData(model.WaitlistActionApprove, e.ID)))
		}
		row = append(row, keyboard.Button(fmt.Sprintf("❌ %d", e.Position), WaitlistActionData(model.WaitlistActionRemove, e.ID)))
		kb.Row(row...)
	}

	kb.Row(keyboard.Button("🔄 Обновить", RefreshData(dest.ID)))

	return sb.String(), kb.Build()
}

// BuildDestinationsScreen выбор места при выходе
func BuildDestinationsScreen(dests []*model.Destination) (string, *models.InlineKeyboardMarkup) {
	buttons := make([]models.InlineKeyboardButton, 0, len(dests))
	for _, d := range dests {
		if !d.IsActive {
			continue
		}
		buttons = append(buttons, keyboard.Button(d.Name, OutData(d.ID)))
	}

	if len(buttons) == 0 {
		return "Куда выходите? Напишите название места.", nil
	}

	return "Куда выходите? Выберите место или напишите его название.",
		keyboard.NewBuilder().Grid(2, buttons...).Build()
}

// AdmissionText ответ ученику на попытку выхода
func AdmissionText(res *service.AdmissionResult) string {
	switch res.Outcome {
	case service.OutcomeAdmitted:
		if res.Record != nil && res.Record.Destination != "" {
			return fmt.Sprintf("✅ Можно идти: %s.\nКогда вернётесь, отправьте /in", res.Record.Destination)
		}
		return "✅ Можно идти.\nКогда вернётесь, отправьте /in"
	case service.OutcomeWaitlisted:
		return fmt.Sprintf("⏳ Сейчас занято. Вы в очереди под номером %d.\nКогда подойдёт очередь, снова отправьте /out", res.Position)
	case service.OutcomeAlreadyWaiting:
		return fmt.Sprintf("⏳ Вы уже в очереди, ваш номер %d", res.Position)
	}
	return "❌ Произошла ошибка"
}

// StatusText состояние ученика; destinationName имя места записи очереди
func StatusText(status *service.StudentStatus, destinationName string, now time.Time) string {
	switch {
	case status.Record != nil:
		minutes := int(now.Sub(status.Record.CheckedOutAt).Minutes())
		where := status.Record.Destination
		if where == "" {
			where = "вне класса"
		}
		return fmt.Sprintf("🚶 Вы вышли: %s, %d мин назад.\nВернулись? Отправьте /in", where, minutes)
	case status.Entry != nil && status.Entry.IsApproved():
		return fmt.Sprintf("✅ Место освободилось: %s. Отправьте /out, чтобы выйти", destinationName)
	case status.Entry != nil:
		return fmt.Sprintf("⏳ Вы в очереди в %s под номером %d", destinationName, status.Entry.Position)
	}
	return "🏫 Вы в классе"
}

// BuildOutListText кто сейчас вне класса
func BuildOutListText(records []*model.CheckInRecord, names map[uuid.UUID]string, now time.Time) string {
	if len(records) == 0 {
		return "🏫 Все в классе"
	}

	var sb strings.Builder
	sb.WriteString("🚶 Сейчас вне класса:\n\n")
	for _, r := range records {
		where := r.Destination
		if where == "" {
			where = "без места"
		}
		fmt.Fprintf(&sb, "• %s - %s, %d мин\n", displayName(names, r.StudentID), where, int(now.Sub(r.CheckedOutAt).Minutes()))
	}
	return sb.String()
}

// BuildStatsText счётчики допусков по местам
func BuildStatsText(dests []*model.Destination, counters map[uuid.UUID]stats.Counters) string {
	if len(dests) == 0 {
		return "📊 Мест пока нет"
	}

	var sb strings.Builder
	sb.WriteString("📊 Статистика по местам:\n")
	for _, d := range dests {
		c := counters[d.ID]
		fmt.Fprintf(&sb, "\n🚪 %s (%s)\n", d.Name, FormatCapacity(d))
		fmt.Fprintf(&sb, "вышли: %d, в очередь: %d, продвинуты: %d, вернулись: %d\n",
			c[stats.KindAdmitted], c[stats.KindWaitlisted], c[stats.KindPromoted], c[stats.KindCheckedIn])
		if n := c[stats.KindSkipped] + c[stats.KindRemoved] + c[stats.KindExpired]; n > 0 {
			fmt.Fprintf(&sb, "сняты учителем или по времени: %d\n", n)
		}
	}
	return sb.String()
}
