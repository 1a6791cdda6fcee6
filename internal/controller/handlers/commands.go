package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/hallpass/internal/controller/callbacks/common"
	"github.com/Freeeeeet/hallpass/internal/controller/state"
	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// HandleStart обрабатывает команду /start. Deep link cls_<uuid> выбирает класс.
func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	from := update.Message.From
	chatID := update.Message.Chat.ID

	// Регистрируем пользователя
	user, err := h.userService.RegisterUser(
		ctx,
		from.ID,
		from.Username,
		from.FirstName,
		from.LastName,
		from.LanguageCode,
	)
	if err != nil {
		h.logger.Error("Failed to register user", zap.Error(err))
		h.sendError(ctx, b, chatID, "❌ Произошла ошибка при регистрации. Попробуйте позже.")
		return
	}

	classroomID, action, ok := parseStartPayload(commandArgs(update))
	if !ok {
		// единственный класс выбираем без QR-кода
		classrooms, err := h.userService.Classrooms(ctx, user)
		if err != nil {
			h.logger.Warn("Failed to list user classrooms", zap.Stringer("user_id", user.ID), zap.Error(err))
		}
		if len(classrooms) == 1 {
			h.selectClassroom(ctx, b, update, user, classrooms[0])
			return
		}

		h.sendMessage(ctx, b, chatID, fmt.Sprintf(
			"👋 Привет, %s!\n\nЧтобы начать, отсканируйте QR-код своего класса.\n\n/help - Справка",
			user.FirstName,
		), nil)
		return
	}

	classroom, err := h.userService.Classroom(ctx, classroomID)
	if err != nil {
		h.logger.Warn("Classroom from deep link not found", zap.Stringer("classroom_id", classroomID), zap.Error(err))
		h.sendError(ctx, b, chatID, "❌ Класс не найден")
		return
	}

	if !h.selectClassroom(ctx, b, update, user, classroom) {
		return
	}

	// QR-код на двери может сразу отмечать выход или возвращение
	switch action {
	case model.ScanActionOut:
		h.startOut(ctx, b, update, user, classroom.ID, "")
	case model.ScanActionIn:
		h.checkIn(ctx, b, chatID, user, classroom.ID)
	}
}

// selectClassroom запоминает класс, если пользователь его учитель или ученик
func (h *Handlers) selectClassroom(ctx context.Context, b *bot.Bot, update *models.Update, user *model.User, classroom *model.Classroom) bool {
	chatID := update.Message.Chat.ID
	telegramID := update.Message.From.ID

	manager, err := h.userService.CanManage(ctx, user, classroom.ID)
	if err != nil {
		h.logger.Error("Failed to check classroom owner", zap.Error(err))
		h.sendError(ctx, b, chatID, common.ErrorMessage(err))
		return false
	}

	if !manager {
		enrolled, err := h.userService.IsEnrolled(ctx, user.ID, classroom.ID)
		if err != nil {
			h.logger.Error("Failed to check enrollment", zap.Error(err))
			h.sendError(ctx, b, chatID, common.ErrorMessage(err))
			return false
		}
		if !enrolled {
			h.sendError(ctx, b, chatID, "❌ Вы не числитесь в классе «"+classroom.Name+"»")
			return false
		}
	}

	h.stateManager.SetClassroom(telegramID, classroom.ID)
	h.stateManager.ClearState(telegramID)

	h.logger.Info("Classroom selected",
		zap.Stringer("user_id", user.ID),
		zap.Stringer("classroom_id", classroom.ID),
		zap.Bool("manager", manager),
	)

	text := fmt.Sprintf("🏫 Класс «%s»\n\n/out - Выйти из класса\n/in - Вернуться\n/status - Где я", classroom.Name)
	if manager {
		text = fmt.Sprintf("🏫 Класс «%s» (учитель)\n\n/waitlist - Очереди\n/whoisout - Кто вне класса\n/capacity <место> <n|off> - Вместимость\n/stats - Статистика", classroom.Name)
	}
	h.sendMessage(ctx, b, chatID, text, nil)
	return true
}

// HandleHelp обрабатывает команду /help
func (h *Handlers) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	helpText := "📚 Справка по командам:\n\n" +
		"Для учеников:\n" +
		"/out <место> - Выйти из класса (туалет, медпункт...)\n" +
		"/in - Вернуться в класс\n" +
		"/status - Где я и мой номер в очереди\n" +
		"/cancel - Отменить выбор места\n\n" +
		"Для учителей:\n" +
		"/waitlist - Очереди мест с кнопками управления\n" +
		"/whoisout - Кто сейчас вне класса\n" +
		"/capacity <место> <n|off> - Ограничить вместимость места\n" +
		"/addplace <место> [n] - Добавить место\n" +
		"/stats - Статистика выходов по местам\n\n" +
		"Класс выбирается QR-кодом на двери класса."

	h.sendMessage(ctx, b, update.Message.Chat.ID, helpText, nil)
}

// HandleCancel обрабатывает команду /cancel - отмена текущего диалога
func (h *Handlers) HandleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	telegramID := update.Message.From.ID
	if h.stateManager.GetState(telegramID) == state.StateNone {
		h.sendMessage(ctx, b, update.Message.Chat.ID, "❌ Нет активных операций для отмены.", nil)
		return
	}

	h.stateManager.ClearState(telegramID)
	h.sendMessage(ctx, b, update.Message.Chat.ID, "✅ Операция отменена.", nil)
}

// HandleTextMessage обрабатывает текстовые сообщения в зависимости от состояния пользователя
func (h *Handlers) HandleTextMessage(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Text == "" {
		return
	}

	// Игнорируем команды (они обрабатываются другими handlers)
	if strings.HasPrefix(update.Message.Text, "/") {
		return
	}

	switch h.stateManager.GetState(update.Message.From.ID) {
	case state.StateChoosingDestination:
		user, classroomID, ok := h.requireClassroom(ctx, b, update)
		if !ok {
			return
		}
		h.dropPrompt(ctx, b, update.Message.From.ID, update.Message.Chat.ID)
		h.stateManager.ClearState(update.Message.From.ID)
		h.Checkout(ctx, b, update.Message.Chat.ID, user, classroomID, update.Message.Text)
	case state.StateNone:
		h.sendMessage(ctx, b, update.Message.Chat.ID, "Не понимаю. /help - список команд", nil)
	}
}
