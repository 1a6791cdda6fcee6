package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (e *countingExpirer) ExpireStale(context.Context) (int, error) {
	e.calls.Add(1)
	return 1, e.err
}

func TestScheduler_SweepsUntilStopped(t *testing.T) {
	expirer := &countingExpirer{}
	s := NewScheduler(expirer, 5*time.Millisecond, zaptest.NewLogger(t))

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return expirer.calls.Load() >= 3 }, time.Second, time.Millisecond)

	s.Stop()
	stopped := expirer.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, expirer.calls.Load())

	// повторный Stop не паникует
	s.Stop()
}

func TestScheduler_KeepsRunningAfterErrors(t *testing.T) {
	expirer := &countingExpirer{err: errors.New("db down")}
	s := NewScheduler(expirer, 5*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	assert.Eventually(t, func() bool { return expirer.calls.Load() >= 2 }, time.Second, time.Millisecond)

	cancel()
	s.Stop()
}
