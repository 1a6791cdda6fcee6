package callbacktypes

import (
	"context"

	"github.com/Freeeeeet/hallpass/internal/controller/state"
	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/Freeeeeet/hallpass/internal/service"
	"github.com/go-telegram/bot"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutFunc выпускает ученика и отвечает ему в чат; общий путь для /out и кнопок
type CheckoutFunc func(ctx context.Context, b *bot.Bot, chatID int64, user *model.User, classroomID uuid.UUID, destination string)

// Handler содержит общие зависимости для всех callback handlers
type Handler struct {
	UserService        *service.UserService
	DestinationService *service.DestinationService
	CheckoutService    *service.CheckoutService
	WaitlistService    *service.WaitlistService
	StateManager       *state.Manager
	Logger             *zap.Logger

	// Функции-хэндлеры из основного контроллера
	Checkout CheckoutFunc
}
