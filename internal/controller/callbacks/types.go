package callbacks

import (
	"context"

	"github.com/Freeeeeet/hallpass/internal/controller/callbacks/callbacktypes"
	"github.com/Freeeeeet/hallpass/internal/controller/state"
	"github.com/Freeeeeet/hallpass/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Handler обертка для callbacktypes.Handler с методами
type Handler struct {
	*callbacktypes.Handler
}

// NewHandler создаёт новый обработчик callbacks с зависимостями
func NewHandler(
	userService *service.UserService,
	destinationService *service.DestinationService,
	checkoutService *service.CheckoutService,
	waitlistService *service.WaitlistService,
	stateManager *state.Manager,
	logger *zap.Logger,
	checkout callbacktypes.CheckoutFunc,
) *Handler {
	inner := &callbacktypes.Handler{
		UserService:        userService,
		DestinationService: destinationService,
		CheckoutService:    checkoutService,
		WaitlistService:    waitlistService,
		StateManager:       stateManager,
		Logger:             logger,
		Checkout:           checkout,
	}
	return &Handler{Handler: inner}
}

// HandleCallbackQuery обрабатывает нажатия на inline кнопки
func (h *Handler) HandleCallbackQuery(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	callback := update.CallbackQuery

	h.Logger.Debug("Callback received",
		zap.String("data", callback.Data),
		zap.Int64("user_id", callback.From.ID),
	)

	Route(ctx, b, callback, h.Handler)
}
