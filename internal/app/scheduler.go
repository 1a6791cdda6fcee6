package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Expirer отменяет устаревшие записи очереди
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	expirer  Expirer
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewScheduler создаёт новый планировщик
func NewScheduler(expirer Expirer, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		expirer:  expirer,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Duration("sweep_interval", s.interval))

	go s.runExpiryTask(ctx)
}

// Stop останавливает фоновые задачи и ждёт завершения текущего прохода
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	<-s.done
}

// runExpiryTask периодически отменяет устаревшие записи очереди
func (s *Scheduler) runExpiryTask(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.expire(ctx)
		case <-s.stopChan:
			s.logger.Info("Waitlist expiry task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Waitlist expiry task cancelled")
			return
		}
	}
}

func (s *Scheduler) expire(ctx context.Context) {
	n, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		s.logger.Error("Failed to expire waitlist entries", zap.Int("expired", n), zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Debug("Waitlist sweep completed", zap.Int("expired", n))
	}
}
