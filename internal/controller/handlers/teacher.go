package handlers

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/hallpass/internal/controller/callbacks/common"
	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/Freeeeeet/hallpass/internal/stats"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandleWaitlist обрабатывает команду /waitlist: по сообщению на каждую очередь
func (h *Handlers) HandleWaitlist(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, classroomID, ok := h.requireManager(ctx, b, update)
	if !ok {
		return
	}

	chatID := update.Message.Chat.ID

	dests, err := h.destinationService.List(ctx, classroomID)
	if err != nil {
		h.logger.Error("Failed to list destinations", zap.Stringer("classroom_id", classroomID), zap.Error(err))
		h.sendError(ctx, b, chatID, common.ErrorMessage(err))
		return
	}

	shown := 0
	for _, dest := range dests {
		entries, err := h.waitlistService.Queue(ctx, dest.ID)
		if err != nil {
			h.logger.Error("Failed to get queue", zap.Stringer("destination_id", dest.ID), zap.Error(err))
			continue
		}
		if !dest.HasCapacity() && len(entries) == 0 {
			continue
		}

		text, kb := common.BuildQueueScreen(dest, entries, h.studentNames(ctx, entries))
		h.sendMessage(ctx, b, chatID, text, kb)
		shown++
	}

	if shown == 0 {
		h.sendMessage(ctx, b, chatID, "📭 Ограниченных мест нет, очередей нет.\n\n/capacity <место> <n> - ограничить место", nil)
	}
}

// HandleCapacity обрабатывает команду /capacity <место> <n|off>
func (h *Handlers) HandleCapacity(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, classroomID, ok := h.requireManager(ctx, b, update)
	if !ok {
		return
	}

	chatID := update.Message.Chat.ID

	name, capacity, err := parseCapacityArgs(commandArgs(update))
	if err != nil {
		h.sendError(ctx, b, chatID, "❌ Формат: /capacity <место> <число|off>")
		return
	}

	dest, err := h.destinationService.FindByName(ctx, classroomID, name)
	if err != nil {
		h.sendError(ctx, b, chatID, common.ErrorMessage(err))
		return
	}

	updated, err := h.destinationService.SetCapacity(ctx, dest.ID, capacity)
	if err != nil {
		h.logger.Info("Capacity change refused", zap.Stringer("destination_id", dest.ID), zap.Error(err))
		h.sendError(ctx, b, chatID, common.ErrorMessage(err))
		return
	}

	h.sendMessage(ctx, b, chatID, fmt.Sprintf("✅ %s: %s", updated.Name, common.FormatCapacity(updated)), nil)
}

// HandleAddDestination обрабатывает команду /addplace <место> [n|off]
func (h *Handlers) HandleAddDestination(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, classroomID, ok := h.requireManager(ctx, b, update)
	if !ok {
		return
	}

	chatID := update.Message.Chat.ID
	args := commandArgs(update)
	if args == "" {
		h.sendError(ctx, b, chatID, "❌ Формат: /addplace <место> [число|off]")
		return
	}

	// без числа в конце вся строка - имя неограниченного места
	name, capacity, err := parseCapacityArgs(args)
	if err != nil {
		name, capacity = args, nil
	}

	dest, err := h.destinationService.Create(ctx, classroomID, name, capacity)
	if err != nil {
		h.sendError(ctx, b, chatID, common.ErrorMessage(err))
		return
	}

	h.sendMessage(ctx, b, chatID, fmt.Sprintf("✅ Место добавлено: %s (%s)", dest.Name, common.FormatCapacity(dest)), nil)
}

// HandleWhoIsOut обрабатывает команду /whoisout
func (h *Handlers) HandleWhoIsOut(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, classroomID, ok := h.requireManager(ctx, b, update)
	if !ok {
		return
	}

	records, err := h.checkoutService.ListOut(ctx, classroomID)
	if err != nil {
		h.logger.Error("Failed to list open records", zap.Stringer("classroom_id", classroomID), zap.Error(err))
		h.sendError(ctx, b, update.Message.Chat.ID, common.ErrorMessage(err))
		return
	}

	ids := make([]uuid.UUID, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.StudentID)
	}
	names, err := h.userService.NamesByID(ctx, ids)
	if err != nil {
		h.logger.Warn("Failed to load student names", zap.Error(err))
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, common.BuildOutListText(records, names, h.now()), nil)
}

// HandleStats обрабатывает команду /stats: счётчики допусков по местам класса
func (h *Handlers) HandleStats(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, classroomID, ok := h.requireManager(ctx, b, update)
	if !ok {
		return
	}

	chatID := update.Message.Chat.ID

	dests, err := h.destinationService.List(ctx, classroomID)
	if err != nil {
		h.logger.Error("Failed to list destinations", zap.Stringer("classroom_id", classroomID), zap.Error(err))
		h.sendError(ctx, b, chatID, common.ErrorMessage(err))
		return
	}

	counters := make(map[uuid.UUID]stats.Counters, len(dests))
	for _, dest := range dests {
		c, err := h.stats.Destination(ctx, dest.ID)
		if err != nil {
			h.logger.Warn("Failed to read destination stats", zap.Stringer("destination_id", dest.ID), zap.Error(err))
			continue
		}
		counters[dest.ID] = c
	}

	h.sendMessage(ctx, b, chatID, common.BuildStatsText(dests, counters), nil)
}

func (h *Handlers) studentNames(ctx context.Context, entries []*model.WaitListEntry) map[uuid.UUID]string {
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.StudentID)
	}

	names, err := h.userService.NamesByID(ctx, ids)
	if err != nil {
		h.logger.Warn("Failed to load student names", zap.Error(err))
	}
	return names
}
