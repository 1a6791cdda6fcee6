package callbacks

import (
	"context"

	"github.com/Freeeeeet/hallpass/internal/controller/callbacks/callbacktypes"
	"github.com/Freeeeeet/hallpass/internal/controller/callbacks/common"
	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var actionAnswers = map[model.WaitlistAction]string{
	model.WaitlistActionSkip:    "⏭ Перенесён в конец очереди",
	model.WaitlistActionRemove:  "❌ Удалён из очереди",
	model.WaitlistActionApprove: "✅ Одобрен",
}

// HandleWaitlistAction skip/remove/approve над записью очереди
func HandleWaitlistAction(ctx context.Context, b *bot.Bot, callback *models.CallbackQuery, h *callbacktypes.Handler) {
	action, entryID, err := common.ParseWaitlistActionData(callback.Data)
	if err != nil {
		h.Logger.Warn("Invalid waitlist callback", zap.String("data", callback.Data), zap.Error(err))
		common.AnswerCallbackAlert(ctx, b, callback.ID, common.ErrorMessage(err))
		return
	}

	common.WithManager(ctx, b, callback, h, func(hc *common.HandlerContext) {
		entry, err := h.WaitlistService.Apply(hc.Ctx, hc.ClassroomID, entryID, action)
		if err != nil {
			common.HandleError(hc, err, "waitlist_"+string(action))
			return
		}

		hc.Answer(actionAnswers[action])
		renderQueue(hc, entry.DestinationID)
	})
}

// HandleWaitlistRefresh перерисовывает очередь места
func HandleWaitlistRefresh(ctx context.Context, b *bot.Bot, callback *models.CallbackQuery, h *callbacktypes.Handler) {
	destinationID, err := common.ParseIDData(callback.Data, common.PrefixRefresh)
	if err != nil {
		common.AnswerCallbackAlert(ctx, b, callback.ID, common.ErrorMessage(err))
		return
	}

	common.WithManager(ctx, b, callback, h, func(hc *common.HandlerContext) {
		hc.Answer("")
		renderQueue(hc, destinationID)
	})
}

func renderQueue(hc *common.HandlerContext, destinationID uuid.UUID) {
	h := hc.Handler

	dest, err := h.DestinationService.Get(hc.Ctx, destinationID)
	if err != nil {
		h.Logger.Error("Failed to get destination", zap.Stringer("destination_id", destinationID), zap.Error(err))
		return
	}
	if dest.ClassroomID != hc.ClassroomID {
		return
	}

	entries, err := h.WaitlistService.Queue(hc.Ctx, destinationID)
	if err != nil {
		h.Logger.Error("Failed to get queue", zap.Stringer("destination_id", destinationID), zap.Error(err))
		return
	}

	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.StudentID)
	}
	names, err := h.UserService.NamesByID(hc.Ctx, ids)
	if err != nil {
		h.Logger.Warn("Failed to load student names", zap.Error(err))
	}

	text, kb := common.BuildQueueScreen(dest, entries, names)
	hc.EditMessageOrLog(text, kb, "queue")
}
