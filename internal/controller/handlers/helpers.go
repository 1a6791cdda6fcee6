package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/Freeeeeet/hallpass/internal/controller/callbacks/common"
	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// startPayloadPrefix deep link класса: t.me/<bot>?start=cls_<uuid>
const startPayloadPrefix = "cls_"

// dataPromptMessageID сообщение с кнопками выбора места
const dataPromptMessageID = "prompt_message_id"

var errBadCapacity = errors.New("capacity must be a number or off")

// MatchCommand совпадает с "/name", "/name args" и "/name@bot args"
func MatchCommand(name string) bot.MatchFunc {
	return func(update *models.Update) bool {
		if update.Message == nil {
			return false
		}
		cmd, _ := splitCommand(update.Message.Text)
		return cmd == name
	}
}

// splitCommand отделяет команду без упоминания бота от аргументов
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}

	cmd, args, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd[1:], "@")
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

// commandArgs аргументы команды
func commandArgs(update *models.Update) string {
	_, args := splitCommand(update.Message.Text)
	return args
}

// parseStartPayload извлекает класс и действие сканирования из deep link:
// cls_<uuid>, cls_<uuid>_out, cls_<uuid>_in
func parseStartPayload(args string) (uuid.UUID, model.ScanAction, bool) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(args), startPayloadPrefix)
	if !ok {
		return uuid.Nil, "", false
	}

	var action model.ScanAction
	if rawID, rawAction, found := strings.Cut(raw, "_"); found {
		if action, ok = model.ParseScanAction(rawAction); !ok {
			return uuid.Nil, "", false
		}
		raw = rawID
	}

	id, err := uuid.Parse(raw)
	if err != nil || len(raw) != 36 {
		return uuid.Nil, "", false
	}
	return id, action, true
}

// parseCapacityArgs разбирает "<место> <n|off>"; имя места может содержать пробелы
func parseCapacityArgs(args string) (string, *int, error) {
	idx := strings.LastIndex(args, " ")
	if idx < 0 {
		return "", nil, errBadCapacity
	}

	name := strings.TrimSpace(args[:idx])
	raw := strings.ToLower(strings.TrimSpace(args[idx+1:]))
	if name == "" {
		return "", nil, errBadCapacity
	}

	switch raw {
	case "off", "-", "0":
		return name, nil, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return "", nil, errBadCapacity
	}
	return name, &n, nil
}

// requireUser проверяет что пользователь существует
// Возвращает user и true если OK, nil и false если нет
func (h *Handlers) requireUser(ctx context.Context, b *bot.Bot, update *models.Update) (*model.User, bool) {
	if update.Message == nil || update.Message.From == nil {
		return nil, false
	}

	telegramID := update.Message.From.ID
	user, err := h.userService.GetByTelegramID(ctx, telegramID)

	if err != nil {
		h.logger.Error("Failed to get user", zap.Int64("telegram_id", telegramID), zap.Error(err))
		h.sendError(ctx, b, update.Message.Chat.ID, "❌ Произошла ошибка. Попробуйте позже.")
		return nil, false
	}

	if user == nil {
		h.sendError(ctx, b, update.Message.Chat.ID, common.ErrorMessage(common.ErrUserNotFound))
		return nil, false
	}

	return user, true
}

// requireClassroom проверяет пользователя и выбранный класс
func (h *Handlers) requireClassroom(ctx context.Context, b *bot.Bot, update *models.Update) (*model.User, uuid.UUID, bool) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return nil, uuid.Nil, false
	}

	classroomID, ok := h.stateManager.Classroom(update.Message.From.ID)
	if !ok {
		h.sendError(ctx, b, update.Message.Chat.ID, common.ErrorMessage(common.ErrNoClassroom))
		return nil, uuid.Nil, false
	}

	return user, classroomID, true
}

// requireManager проверяет что пользователь - учитель выбранного класса
func (h *Handlers) requireManager(ctx context.Context, b *bot.Bot, update *models.Update) (*model.User, uuid.UUID, bool) {
	user, classroomID, ok := h.requireClassroom(ctx, b, update)
	if !ok {
		return nil, uuid.Nil, false
	}

	allowed, err := h.userService.CanManage(ctx, user, classroomID)
	if err != nil {
		h.logger.Error("Failed to check classroom owner", zap.Stringer("classroom_id", classroomID), zap.Error(err))
		h.sendError(ctx, b, update.Message.Chat.ID, common.ErrorMessage(err))
		return nil, uuid.Nil, false
	}
	if !allowed {
		h.sendError(ctx, b, update.Message.Chat.ID, common.ErrorMessage(common.ErrNotATeacher))
		return nil, uuid.Nil, false
	}

	return user, classroomID, true
}

// sendError отправляет сообщение об ошибке и логирует если не удалось
func (h *Handlers) sendError(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.logger.Error("Failed to send error message",
			zap.Int64("chat_id", chatID),
			zap.String("text", text),
			zap.Error(err),
		)
	}
}

// sendMessage отправляет сообщение и логирует если не удалось
func (h *Handlers) sendMessage(ctx context.Context, b *bot.Bot, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	if _, err := b.SendMessage(ctx, params); err != nil {
		h.logger.Error("Failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}
