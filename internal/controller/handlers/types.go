package handlers

import (
	"time"

	"github.com/Freeeeeet/hallpass/internal/controller/state"
	"github.com/Freeeeeet/hallpass/internal/service"
	"github.com/Freeeeeet/hallpass/internal/stats"
	"go.uber.org/zap"
)

// Handlers содержит все зависимости для обработки команд
type Handlers struct {
	userService        *service.UserService
	destinationService *service.DestinationService
	checkoutService    *service.CheckoutService
	waitlistService    *service.WaitlistService
	stats              stats.Reader
	stateManager       *state.Manager
	logger             *zap.Logger
	now                func() time.Time
}

// NewHandlers создаёт новый обработчик команд
func NewHandlers(
	userService *service.UserService,
	destinationService *service.DestinationService,
	checkoutService *service.CheckoutService,
	waitlistService *service.WaitlistService,
	statsReader stats.Reader,
	stateManager *state.Manager,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		userService:        userService,
		destinationService: destinationService,
		checkoutService:    checkoutService,
		waitlistService:    waitlistService,
		stats:              statsReader,
		stateManager:       stateManager,
		logger:             logger,
		now:                time.Now,
	}
}
