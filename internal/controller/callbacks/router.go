package callbacks

import (
	"context"
	"strings"

	"github.com/Freeeeeet/hallpass/internal/controller/callbacks/callbacktypes"
	"github.com/Freeeeeet/hallpass/internal/controller/callbacks/common"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Route распределяет callback query по соответствующим обработчикам
func Route(ctx context.Context, b *bot.Bot, callback *models.CallbackQuery, h *callbacktypes.Handler) {
	data := callback.Data

	switch {
	// ===== Teacher: waitlist =====
	case strings.HasPrefix(data, common.PrefixWaitlist):
		HandleWaitlistAction(ctx, b, callback, h)
	case strings.HasPrefix(data, common.PrefixRefresh):
		HandleWaitlistRefresh(ctx, b, callback, h)

	// ===== Student: checkout =====
	case strings.HasPrefix(data, common.PrefixOut):
		HandleOutChoice(ctx, b, callback, h)

	case data == "noop":
		common.AnswerCallback(ctx, b, callback.ID, "")

	default:
		h.Logger.Warn("Unknown callback data",
			zap.String("data", data),
			zap.Int64("user_id", callback.From.ID))
		common.AnswerCallbackAlert(ctx, b, callback.ID, common.ErrorMessage(common.ErrInvalidFormat))
	}
}
