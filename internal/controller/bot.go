package controller

import (
	"context"
	"strings"

	"github.com/Freeeeeet/hallpass/internal/controller/callbacks"
	"github.com/Freeeeeet/hallpass/internal/controller/handlers"
	"github.com/Freeeeeet/hallpass/internal/controller/state"
	"github.com/Freeeeeet/hallpass/internal/service"
	"github.com/Freeeeeet/hallpass/internal/stats"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

type BotController struct {
	bot             *bot.Bot
	handlers        *handlers.Handlers
	callbackHandler *callbacks.Handler
	logger          *zap.Logger
}

func NewBotController(
	botInstance *bot.Bot,
	userService *service.UserService,
	destinationService *service.DestinationService,
	checkoutService *service.CheckoutService,
	waitlistService *service.WaitlistService,
	statsReader stats.Reader,
	logger *zap.Logger,
) *BotController {
	// Создаём менеджер состояний
	stateManager := state.NewManager()

	// Создаём обработчики команд
	cmdHandlers := handlers.NewHandlers(
		userService,
		destinationService,
		checkoutService,
		waitlistService,
		statsReader,
		stateManager,
		logger,
	)

	// Создаём callback handler с зависимостями
	callbackHandler := callbacks.NewHandler(
		userService,
		destinationService,
		checkoutService,
		waitlistService,
		stateManager,
		logger,
		cmdHandlers.Checkout,
	)

	return &BotController{
		bot:             botInstance,
		handlers:        cmdHandlers,
		callbackHandler: callbackHandler,
		logger:          logger,
	}
}

// plainText совпадает с текстом, который не является командой
func plainText(update *models.Update) bool {
	return update.Message != nil && update.Message.Text != "" && !strings.HasPrefix(update.Message.Text, "/")
}

// RegisterHandlers регистрирует все обработчики команд
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	commands := []struct {
		name    string
		handler bot.HandlerFunc
	}{
		{"start", c.handlers.HandleStart},
		{"help", c.handlers.HandleHelp},
		{"cancel", c.handlers.HandleCancel},

		// Команды для учеников
		{"out", c.handlers.HandleOut},
		{"in", c.handlers.HandleIn},
		{"status", c.handlers.HandleStatus},

		// Команды для учителей
		{"waitlist", c.handlers.HandleWaitlist},
		{"capacity", c.handlers.HandleCapacity},
		{"addplace", c.handlers.HandleAddDestination},
		{"whoisout", c.handlers.HandleWhoIsOut},
		{"stats", c.handlers.HandleStats},
	}
	for _, cmd := range commands {
		c.bot.RegisterHandlerMatchFunc(handlers.MatchCommand(cmd.name), cmd.handler)
	}

	// Обработчик текстовых сообщений (для диалогов с состояниями)
	c.bot.RegisterHandlerMatchFunc(plainText, c.handlers.HandleTextMessage)

	// Обработчик нажатий на inline кнопки
	c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, c.callbackHandler.HandleCallbackQuery)

	// Устанавливаем меню команд
	return c.setCommands(ctx)
}

// setCommands устанавливает список команд в меню бота
func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "out", Description: "🚶 Выйти из класса"},
		{Command: "in", Description: "🏫 Вернуться в класс"},
		{Command: "status", Description: "📍 Где я и мой номер в очереди"},
		{Command: "cancel", Description: "❌ Отменить выбор места"},
		{Command: "waitlist", Description: "⏳ Очереди (учитель)"},
		{Command: "whoisout", Description: "📋 Кто вне класса (учитель)"},
		{Command: "capacity", Description: "🚪 Вместимость места (учитель)"},
		{Command: "addplace", Description: "➕ Добавить место (учитель)"},
		{Command: "stats", Description: "📊 Статистика (учитель)"},
		{Command: "help", Description: "❓ Справка по командам"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})

	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("✅ Bot commands menu set")
	return nil
}

// Start запускает бота
func (c *BotController) Start(ctx context.Context) error {
	c.logger.Info("Starting bot...")
	c.bot.Start(ctx)
	return nil
}
