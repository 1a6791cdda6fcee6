package handlers

import (
	"context"
	"strconv"

	"github.com/Freeeeeet/hallpass/internal/controller/callbacks/common"
	"github.com/Freeeeeet/hallpass/internal/controller/state"
	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/Freeeeeet/hallpass/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandleOut обрабатывает команду /out [место]
func (h *Handlers) HandleOut(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, classroomID, ok := h.requireClassroom(ctx, b, update)
	if !ok {
		return
	}

	h.startOut(ctx, b, update, user, classroomID, commandArgs(update))
}

// startOut выпускает в названное место или предлагает выбрать его
func (h *Handlers) startOut(ctx context.Context, b *bot.Bot, update *models.Update, user *model.User, classroomID uuid.UUID, destination string) {
	chatID := update.Message.Chat.ID
	if destination != "" {
		h.Checkout(ctx, b, chatID, user, classroomID, destination)
		return
	}

	// Если ученик уже в очереди, место не нужно: результат определит его запись
	status, err := h.checkoutService.Status(ctx, user.ID, classroomID)
	if err != nil {
		h.logger.Error("Failed to get student status", zap.Error(err))
		h.sendError(ctx, b, chatID, common.ErrorMessage(err))
		return
	}
	if status.Entry != nil {
		dest, err := h.destinationService.Get(ctx, status.Entry.DestinationID)
		if err != nil {
			h.sendError(ctx, b, chatID, common.ErrorMessage(err))
			return
		}
		h.Checkout(ctx, b, chatID, user, classroomID, dest.Name)
		return
	}

	dests, err := h.destinationService.List(ctx, classroomID)
	if err != nil {
		h.logger.Error("Failed to list destinations", zap.Error(err))
		h.sendError(ctx, b, chatID, common.ErrorMessage(err))
		return
	}

	text, kb := common.BuildDestinationsScreen(dests)
	params := &bot.SendMessageParams{ChatID: chatID, Text: text}
	if kb != nil {
		params.ReplyMarkup = kb
	}

	msg, err := b.SendMessage(ctx, params)
	if err != nil {
		h.logger.Error("Failed to send destinations", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}

	h.stateManager.SetState(update.Message.From.ID, state.StateChoosingDestination)
	if kb != nil {
		h.stateManager.SetData(update.Message.From.ID, dataPromptMessageID, msg.ID)
	}
}

// dropPrompt убирает кнопки выбора места, если ученик ответил текстом
func (h *Handlers) dropPrompt(ctx context.Context, b *bot.Bot, telegramID, chatID int64) {
	v, ok := h.stateManager.GetData(telegramID, dataPromptMessageID)
	if !ok {
		return
	}
	messageID, ok := v.(int)
	if !ok {
		return
	}

	_, err := b.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	if err != nil && !common.IsMessageNotModifiedError(err) {
		h.logger.Debug("Failed to drop destinations keyboard", zap.Error(err))
	}
}

// Checkout выпускает ученика или ставит в очередь и отвечает в чат
func (h *Handlers) Checkout(ctx context.Context, b *bot.Bot, chatID int64, user *model.User, classroomID uuid.UUID, destination string) {
	res, err := h.checkoutService.AttemptCheckout(ctx, service.CheckoutRequest{
		StudentID:   user.ID,
		ClassroomID: classroomID,
		Destination: destination,
	})
	if err != nil {
		h.logger.Info("Checkout refused",
			zap.Stringer("student_id", user.ID),
			zap.String("destination", destination),
			zap.Error(err),
		)
		h.sendError(ctx, b, chatID, common.ErrorMessage(err))
		return
	}

	h.sendMessage(ctx, b, chatID, common.AdmissionText(res), nil)
}

// HandleIn обрабатывает команду /in
func (h *Handlers) HandleIn(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, classroomID, ok := h.requireClassroom(ctx, b, update)
	if !ok {
		return
	}

	h.checkIn(ctx, b, update.Message.Chat.ID, user, classroomID)
}

func (h *Handlers) checkIn(ctx context.Context, b *bot.Bot, chatID int64, user *model.User, classroomID uuid.UUID) {
	record, err := h.checkoutService.CompleteCheckIn(ctx, user.ID, classroomID, false)
	if err != nil {
		h.sendError(ctx, b, chatID, common.ErrorMessage(err))
		return
	}

	var minutes int
	if record.CheckedInAt != nil {
		minutes = int(record.CheckedInAt.Sub(record.CheckedOutAt).Minutes())
	}
	h.sendMessage(ctx, b, chatID, "👋 С возвращением! Вас не было "+strconv.Itoa(minutes)+" мин.", nil)
}

// HandleStatus обрабатывает команду /status
func (h *Handlers) HandleStatus(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, classroomID, ok := h.requireClassroom(ctx, b, update)
	if !ok {
		return
	}

	status, err := h.checkoutService.Status(ctx, user.ID, classroomID)
	if err != nil {
		h.logger.Error("Failed to get student status", zap.Error(err))
		h.sendError(ctx, b, update.Message.Chat.ID, common.ErrorMessage(err))
		return
	}

	var destinationName string
	if status.Entry != nil {
		if dest, err := h.destinationService.Get(ctx, status.Entry.DestinationID); err == nil {
			destinationName = dest.Name
		}
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, common.StatusText(status, destinationName, h.now()), nil)
}
