package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter token-bucket на каждого пользователя Telegram с очисткой неактивных
type Limiter struct {
	mu           sync.Mutex
	entries      map[int64]*entry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type Option func(*Limiter)

func WithIdleTTL(d time.Duration) Option {
	return func(l *Limiter) { l.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) Option {
	return func(l *Limiter) { l.cleanupEvery = d }
}

// New создаёт лимитер; rps <= 0 отключает ограничение
func New(rps float64, burst int, logger *zap.Logger, opts ...Option) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		entries:      make(map[int64]*entry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) enabled() bool {
	return l.rps > 0
}

// Allow проверяет, можно ли обработать ещё одно обновление пользователя
func (l *Limiter) Allow(userID int64) bool {
	if !l.enabled() {
		return true
	}

	now := l.now()

	l.mu.Lock()
	ent, ok := l.entries[userID]
	if !ok {
		ent = &entry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.entries[userID] = ent
	}
	ent.lastSeen = now
	l.mu.Unlock()

	return ent.lim.AllowN(now, 1)
}

// Cleanup удаляет лимитеры пользователей, неактивных дольше idleTTL
func (l *Limiter) Cleanup() {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	for id, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, id)
		}
	}
}

// StartJanitor периодически вызывает Cleanup до отмены ctx
func (l *Limiter) StartJanitor(ctx context.Context) {
	if !l.enabled() || l.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(l.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}

// Middleware отбрасывает обновления сверх лимита
func (l *Limiter) Middleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		userID, ok := updateUserID(update)
		if !ok || l.Allow(userID) {
			next(ctx, b, update)
			return
		}

		if update.CallbackQuery != nil {
			_, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
				CallbackQueryID: update.CallbackQuery.ID,
				Text:            "⏱ Слишком часто, подождите немного",
				ShowAlert:       true,
			})
			if err != nil {
				l.logger.Warn("Failed to answer rate limited callback", zap.Error(err))
			}
			return
		}

		l.logger.Debug("Update dropped by rate limiter", zap.Int64("telegram_id", userID))
	}
}

func updateUserID(update *models.Update) (int64, bool) {
	switch {
	case update == nil:
		return 0, false
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID, true
	case update.CallbackQuery != nil:
		return update.CallbackQuery.From.ID, true
	}
	return 0, false
}
