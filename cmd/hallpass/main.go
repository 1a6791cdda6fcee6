package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Freeeeeet/hallpass/internal/app"
	"github.com/Freeeeeet/hallpass/internal/config"
	"github.com/Freeeeeet/hallpass/internal/controller"
	"github.com/Freeeeeet/hallpass/internal/controller/ratelimit"
	"github.com/Freeeeeet/hallpass/internal/repository"
	"github.com/Freeeeeet/hallpass/internal/service"
	"github.com/Freeeeeet/hallpass/internal/stats"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting hallpass bot", zap.String("environment", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.GetDBDSN())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}

	migrator, err := app.NewMigrator(pool, cfg.MigrationsDir, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	if err := migrator.Close(); err != nil {
		logger.Warn("Failed to close migrator", zap.Error(err))
	}

	// Статистика допусков: Redis если настроен, иначе в памяти
	var recorder stats.Store = stats.NewMemoryRecorder()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unavailable, stats will be dropped until it recovers", zap.Error(err))
		}
		recorder = stats.NewRedisRecorder(rdb,
			stats.WithPrefix(cfg.Stats.Prefix),
			stats.WithDailyTTL(cfg.Stats.DailyTTL),
		)
	}

	// Репозитории
	userRepo := repository.NewUserRepository(pool)
	classroomRepo := repository.NewClassroomRepository(pool)
	store := repository.NewPostgresStore(pool)

	// Сервисы
	expiry := service.ExpiryPolicy{
		WaitingTTL:  cfg.Waitlist.WaitingTTL,
		ApprovedTTL: cfg.Waitlist.ApprovedTTL,
	}
	userService := service.NewUserService(userRepo, classroomRepo, logger)
	waitlistService := service.NewWaitlistService(store, recorder, expiry, logger)
	destinationService := service.NewDestinationService(store, waitlistService, logger)
	checkoutService := service.NewCheckoutService(store, userService, waitlistService, recorder, logger)

	if expiry.Enabled() {
		scheduler := app.NewScheduler(waitlistService, cfg.Waitlist.SweepInterval, logger)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	limiter := ratelimit.New(cfg.Bot.RatePerSecond, cfg.Bot.RateBurst, logger)
	limiter.StartJanitor(ctx)

	b, err := bot.New(cfg.TelegramToken, bot.WithMiddlewares(limiter.Middleware))
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	botController := controller.NewBotController(b, userService, destinationService, checkoutService, waitlistService, recorder, logger)
	if err := botController.RegisterHandlers(ctx); err != nil {
		logger.Warn("Failed to register bot commands menu", zap.Error(err))
	}

	if err := botController.Start(ctx); err != nil {
		logger.Error("Bot stopped with error", zap.Error(err))
	}

	logger.Info("Shutting down")
}
