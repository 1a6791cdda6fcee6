package callbacks

import (
	"context"

	"github.com/Freeeeeet/hallpass/internal/controller/callbacks/callbacktypes"
	"github.com/Freeeeeet/hallpass/internal/controller/callbacks/common"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// HandleOutChoice ученик выбрал место кнопкой после /out
func HandleOutChoice(ctx context.Context, b *bot.Bot, callback *models.CallbackQuery, h *callbacktypes.Handler) {
	destinationID, err := common.ParseIDData(callback.Data, common.PrefixOut)
	if err != nil {
		common.AnswerCallbackAlert(ctx, b, callback.ID, common.ErrorMessage(err))
		return
	}

	common.WithUser(ctx, b, callback, h, func(hc *common.HandlerContext) {
		dest, err := h.DestinationService.Get(hc.Ctx, destinationID)
		if err != nil {
			common.HandleError(hc, err, "out_choice")
			return
		}

		hc.Handler.StateManager.ClearState(hc.TelegramID)
		hc.Answer("")

		// кнопки выбора больше не нужны
		hc.EditMessageOrLog("Выход: "+dest.Name, nil, "out_choice")

		h.Checkout(hc.Ctx, hc.Bot, hc.ChatID, hc.User, hc.ClassroomID, dest.Name)
	})
}
