package common

import (
	"context"

	"github.com/Freeeeeet/hallpass/internal/controller/callbacks/callbacktypes"
	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandlerContext содержит общие данные для обработки callback
type HandlerContext struct {
	Ctx         context.Context
	Bot         *bot.Bot
	Callback    *models.CallbackQuery
	Handler     *callbacktypes.Handler
	Message     *models.Message
	User        *model.User
	ClassroomID uuid.UUID
	TelegramID  int64
	ChatID      int64
}

// NewHandlerContext создаёт новый контекст обработчика
func NewHandlerContext(
	ctx context.Context,
	b *bot.Bot,
	callback *models.CallbackQuery,
	h *callbacktypes.Handler,
) *HandlerContext {
	msg := GetMessageFromCallback(callback)
	var chatID int64
	if msg != nil {
		chatID = msg.Chat.ID
	}

	return &HandlerContext{
		Ctx:        ctx,
		Bot:        b,
		Callback:   callback,
		Handler:    h,
		Message:    msg,
		TelegramID: callback.From.ID,
		ChatID:     chatID,
	}
}

// LoadUser загружает пользователя и выбранный класс в контекст
func (hc *HandlerContext) LoadUser() error {
	user, err := hc.Handler.UserService.GetByTelegramID(hc.Ctx, hc.TelegramID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	hc.User = user

	classroomID, ok := hc.Handler.StateManager.Classroom(hc.TelegramID)
	if !ok {
		return ErrNoClassroom
	}
	hc.ClassroomID = classroomID
	return nil
}

// RequireManager проверяет что пользователь - учитель выбранного класса
func (hc *HandlerContext) RequireManager() error {
	if hc.User == nil {
		if err := hc.LoadUser(); err != nil {
			return err
		}
	}

	ok, err := hc.Handler.UserService.CanManage(hc.Ctx, hc.User, hc.ClassroomID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotATeacher
	}
	return nil
}

// Answer отвечает на callback query
func (hc *HandlerContext) Answer(text string) {
	AnswerCallback(hc.Ctx, hc.Bot, hc.Callback.ID, text)
}

// AnswerAlert отвечает на callback query с alert
func (hc *HandlerContext) AnswerAlert(text string) {
	AnswerCallbackAlert(hc.Ctx, hc.Bot, hc.Callback.ID, text)
}

// EditMessage редактирует сообщение
func (hc *HandlerContext) EditMessage(text string, keyboard *models.InlineKeyboardMarkup) error {
	if hc.Message == nil {
		return ErrNoMessage
	}

	params := &bot.EditMessageTextParams{
		ChatID:    hc.ChatID,
		MessageID: hc.Message.ID,
		Text:      text,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := hc.Bot.EditMessageText(hc.Ctx, params)

	// Игнорируем ошибку "message is not modified" - это не настоящая ошибка
	if IsMessageNotModifiedError(err) {
		return nil
	}

	return err
}

// EditMessageOrLog редактирует сообщение и пишет в лог неудачу; what - что правили
func (hc *HandlerContext) EditMessageOrLog(text string, keyboard *models.InlineKeyboardMarkup, what string) {
	if err := hc.EditMessage(text, keyboard); err != nil {
		hc.Handler.Logger.Warn("Failed to edit message",
			zap.String("message", what),
			zap.Int64("chat_id", hc.ChatID),
			zap.Error(err),
		)
	}
}
